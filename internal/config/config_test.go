package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cadencehq/driveassist/internal/provider"
)

func validConfig() *Config {
	return &Config{
		DBPath:    "/tmp/chat.db",
		LogFormat: "text",
		LogLevel:  "info",
		Providers: []provider.Config{
			{
				ID:     "anthropic-main",
				Name:   "Anthropic",
				Type:   "anthropic",
				APIKey: "test-key",
				Models: []provider.Model{
					{ModelName: "claude-sonnet-4-5", IsDefault: true},
				},
			},
			{
				ID:     "mistral-main",
				Name:   "Mistral",
				Type:   "mistral",
				APIKey: "test-key",
				Models: []provider.Model{
					{ModelName: "mistral-large-latest"},
				},
			},
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "invalid log_format"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log_level"},
		{"missing provider id", func(c *Config) { c.Providers[0].ID = " " }, "missing id"},
		{"duplicate provider id", func(c *Config) { c.Providers[1].ID = c.Providers[0].ID }, "duplicate id"},
		{"unsupported type", func(c *Config) { c.Providers[0].Type = "gemini" }, "unsupported type"},
		{"no models", func(c *Config) { c.Providers[0].Models = nil }, "no models"},
		{"blank model name", func(c *Config) { c.Providers[0].Models[0].ModelName = "" }, "missing model_name"},
		{"two default models", func(c *Config) {
			c.Providers[0].Models = append(c.Providers[0].Models, provider.Model{ModelName: "claude-haiku-4", IsDefault: true})
		}, "more than one default"},
		{"negative op cap", func(c *Config) { c.Agent.MaxOperationsPerRequest = -1 }, "must not be negative"},
		{"negative settle delay", func(c *Config) { c.Chat.SettleDelayMs = -5 }, "must not be negative"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate: err = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestConfig_SaveLoadRoundTripJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	want := validConfig()
	want.Agent.MaxOperationsPerRequest = 7

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("config perm = %o, want 600", perm)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Agent.MaxOperationsPerRequest != 7 {
		t.Fatalf("round-trip lost agent settings: %+v", got.Agent)
	}
	if len(got.Providers) != 2 || got.Providers[0].ID != "anthropic-main" {
		t.Fatalf("round-trip lost providers: %+v", got.Providers)
	}
}

func TestConfig_SaveLoadRoundTripYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	want := validConfig()
	want.Chat.SettleDelayMs = 250

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Chat.SettleDelayMs != 250 {
		t.Fatalf("round-trip lost chat settings: %+v", got.Chat)
	}
	if got.Providers[1].Type != "mistral" {
		t.Fatalf("round-trip lost provider type: %+v", got.Providers[1])
	}
}

func TestConfig_LoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"providers":[{"id":"p","type":"gemini","models":[{"model_name":"m"}]}]}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("Load: err = %v, want invalid config", err)
	}
}
