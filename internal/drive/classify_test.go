package drive

import (
	"errors"
	"testing"
)

func TestClassify_Taxonomy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		raw       string
		wantType  ErrorType
		retryable bool
	}{
		{name: "forbidden", raw: "403 Forbidden: insufficient permission", wantType: ErrorPermission, retryable: false},
		{name: "timeout", raw: "ETIMEDOUT", wantType: ErrorNetwork, retryable: true},
		{name: "unauthorized", raw: "401 unauthorized", wantType: ErrorAuthentication, retryable: false},
		{name: "not found", raw: "requested entity does not exist", wantType: ErrorNotFound, retryable: false},
		{name: "quota", raw: "storage full", wantType: ErrorQuota, retryable: false},
		{name: "validation", raw: "bad request: malformed field", wantType: ErrorValidation, retryable: false},
		{name: "unknown", raw: "something odd happened", wantType: ErrorUnknown, retryable: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(errors.New(tc.raw), "do the thing")
			if got == nil {
				t.Fatalf("expected classified error")
			}
			if got.Type != tc.wantType {
				t.Fatalf("type=%q, want=%q", got.Type, tc.wantType)
			}
			if got.Retryable != tc.retryable {
				t.Fatalf("retryable=%v, want=%v", got.Retryable, tc.retryable)
			}
			if len(got.Suggestions) == 0 {
				t.Fatalf("expected suggestions")
			}
		})
	}
}

func TestClassify_OrderMatters(t *testing.T) {
	t.Parallel()

	// "connection forbidden" contains both a permission and a network keyword.
	// Permission comes first in the table, so it must win.
	got := Classify(errors.New("connection forbidden"), "")
	if got.Type != ErrorPermission {
		t.Fatalf("type=%q, want=%q", got.Type, ErrorPermission)
	}
}

func TestClassify_NilError(t *testing.T) {
	t.Parallel()

	if got := Classify(nil, "anything"); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestClassify_KeepsRawDetail(t *testing.T) {
	t.Parallel()

	got := Classify(errors.New("404 not found: file abc"), "read the file")
	if got.Details != "404 not found: file abc" {
		t.Fatalf("details=%q", got.Details)
	}
	if got.Message == got.Details {
		t.Fatalf("message should be user-facing, not the raw error")
	}
}
