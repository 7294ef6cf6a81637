package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cadencehq/driveassist/internal/provider"
)

// Config is the on-disk configuration for driveassist.
//
// NOTE: This file may contain provider API keys. Always keep it chmod 0600.
type Config struct {
	// DBPath is the SQLite database holding chat threads and messages.
	// If empty, a default under the config directory is used.
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	Providers []provider.Config `json:"providers,omitempty" yaml:"providers,omitempty"`

	Agent AgentConfig `json:"agent" yaml:"agent"`
	Chat  ChatConfig  `json:"chat" yaml:"chat"`
}

type AgentConfig struct {
	// MaxOperationsPerRequest caps how many operations one utterance may
	// trigger. Zero means the built-in default of 5.
	MaxOperationsPerRequest int `json:"max_operations_per_request,omitempty" yaml:"max_operations_per_request,omitempty"`
	// TimeoutMs bounds a single request end to end. Zero means 30000.
	TimeoutMs int `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	// RetryAttempts applies to retryable operation failures. Zero means 3.
	RetryAttempts int `json:"retry_attempts,omitempty" yaml:"retry_attempts,omitempty"`
}

type ChatConfig struct {
	// SettleDelayMs is how long an assistant message must stop growing
	// before it is persisted. Zero means 1000.
	SettleDelayMs int `json:"settle_delay_ms,omitempty" yaml:"settle_delay_ms,omitempty"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch strings.TrimSpace(c.LogFormat) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	switch strings.TrimSpace(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}

	seen := map[string]bool{}
	for i := range c.Providers {
		p := &c.Providers[i]
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("providers[%d]: missing id", i)
		}
		if seen[id] {
			return fmt.Errorf("providers[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
		if !provider.IsSupportedType(p.Type) {
			return fmt.Errorf("providers[%d]: unsupported type %q (supported: %s)", i, p.Type, strings.Join(provider.SupportedTypes(), ", "))
		}
		if len(p.Models) == 0 {
			return fmt.Errorf("providers[%d]: no models configured", i)
		}
		defaults := 0
		for j, m := range p.Models {
			if strings.TrimSpace(m.ModelName) == "" {
				return fmt.Errorf("providers[%d].models[%d]: missing model_name", i, j)
			}
			if m.IsDefault {
				defaults++
			}
		}
		if defaults > 1 {
			return fmt.Errorf("providers[%d]: more than one default model", i)
		}
	}

	if c.Agent.MaxOperationsPerRequest < 0 {
		return errors.New("agent.max_operations_per_request must not be negative")
	}
	if c.Agent.TimeoutMs < 0 {
		return errors.New("agent.timeout_ms must not be negative")
	}
	if c.Agent.RetryAttempts < 0 {
		return errors.New("agent.retry_attempts must not be negative")
	}
	if c.Chat.SettleDelayMs < 0 {
		return errors.New("chat.settle_delay_ms must not be negative")
	}
	return nil
}

// DefaultConfigPath returns the default config path:
//
//	~/.driveassist/config.json
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "driveassist.config.json"
	}
	return filepath.Join(home, ".driveassist", "config.json")
}

// DefaultDBPath is used when db_path is not configured.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "driveassist.db"
	}
	return filepath.Join(home, ".driveassist", "chat.db")
}

// Load reads and validates a config file. The format follows the file
// extension: .yaml/.yml decode as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if isYAMLPath(path) {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, err
		}
	} else {
		if err := json.Unmarshal(b, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	var b []byte
	var err error
	if isYAMLPath(path) {
		b, err = yaml.Marshal(cfg)
	} else {
		b, err = json.MarshalIndent(cfg, "", "  ")
		if err == nil {
			b = append(b, '\n')
		}
	}
	if err != nil {
		return err
	}

	// Write atomically.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(path))) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
