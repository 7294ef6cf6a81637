package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSecretsStore_SetGetClear(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "secrets.json")
	s := NewSecretsStore(path)

	if _, ok, err := s.GetProviderAPIKey("anthropic-main"); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	if err := s.SetProviderAPIKey("anthropic-main", "  sk-test-123  "); err != nil {
		t.Fatalf("Set: %v", err)
	}
	key, ok, err := s.GetProviderAPIKey("anthropic-main")
	if err != nil || !ok || key != "sk-test-123" {
		t.Fatalf("Get = %q, %v, %v", key, ok, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("secrets perm = %o, want 600", perm)
	}

	if err := s.ClearProviderAPIKey("anthropic-main"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := s.GetProviderAPIKey("anthropic-main"); ok {
		t.Fatal("key survived clear")
	}
}

func TestSecretsStore_KeySetDoesNotLeakKeys(t *testing.T) {
	t.Parallel()

	s := NewSecretsStore(filepath.Join(t.TempDir(), "secrets.json"))
	if err := s.SetProviderAPIKey("p1", "sk-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := s.KeySet([]string{"p1", "p2", " "})
	if err != nil {
		t.Fatalf("KeySet: %v", err)
	}
	if len(got) != 2 || !got["p1"] || got["p2"] {
		t.Fatalf("KeySet = %v", got)
	}
}

func TestSecretsStore_RejectsBlankInputs(t *testing.T) {
	t.Parallel()

	s := NewSecretsStore(filepath.Join(t.TempDir(), "secrets.json"))
	if err := s.SetProviderAPIKey(" ", "k"); err == nil {
		t.Fatal("blank provider id accepted")
	}
	if err := s.SetProviderAPIKey("p1", "  "); err == nil {
		t.Fatal("blank api key accepted")
	}
}
