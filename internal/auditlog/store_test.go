package auditlog

import (
	"fmt"
	"strings"
	"testing"
)

func newTestStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	s, err := New(Options{StateDir: t.TempDir(), MaxBytes: maxBytes})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStore_AppendAndList(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 0)
	s.Append(Entry{Operation: "create_file", UserID: "u1", Parameters: map[string]any{"fileName": "a.txt"}})
	s.Append(Entry{Operation: "share_file", Status: "failure", Error: "file not found"})

	entries, err := s.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Newest first.
	if entries[0].Operation != "share_file" || entries[0].Status != "failure" {
		t.Fatalf("entries[0] = %+v", entries[0])
	}
	if entries[1].Status != "success" {
		t.Fatalf("default status = %q, want success", entries[1].Status)
	}
	if entries[0].CreatedAt == "" {
		t.Fatal("missing created_at")
	}
}

func TestStore_RotationKeepsRecentEntries(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 512)
	for i := 0; i < 50; i++ {
		s.Append(Entry{
			Operation:  "list_files",
			Parameters: map[string]any{"folderId": strings.Repeat("x", 64), "n": i},
		})
	}

	entries, err := s.List(5)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(entries))
	}
	if got := entries[0].Parameters["n"]; fmt.Sprintf("%v", got) != "49" {
		t.Fatalf("newest entry n = %v, want 49", got)
	}
}

func TestStore_NilStoreIsSafe(t *testing.T) {
	t.Parallel()

	var s *Store
	s.Append(Entry{Operation: "noop"})
	if entries, err := s.List(5); err != nil || entries != nil {
		t.Fatalf("nil store List = %v, %v", entries, err)
	}
}
