// Package provider adapts the supported AI chat backends behind a single
// streaming interface. Selection is closed: unknown provider types fail at
// construction time rather than at first use.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// mistralBaseURL is used when a mistral provider omits an explicit base URL.
const mistralBaseURL = "https://api.mistral.ai/v1"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type ChatRequest struct {
	Model    string
	Messages []Message

	// MaxOutputTokens caps the reply length; 0 uses the adapter default.
	MaxOutputTokens int64
	Temperature     *float64
}

// Client streams a single assistant turn. onDelta receives text fragments in
// order; the returned string is the full accumulated reply.
type Client interface {
	StreamChat(ctx context.Context, req ChatRequest, onDelta func(string)) (string, error)
}

type Config struct {
	ID      string  `json:"id" yaml:"id"`
	Name    string  `json:"name" yaml:"name"`
	Type    string  `json:"type" yaml:"type"`
	BaseURL string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey  string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Models  []Model `json:"models" yaml:"models"`
}

type Model struct {
	ModelName string `json:"model_name" yaml:"model_name"`
	IsDefault bool   `json:"is_default,omitempty" yaml:"is_default,omitempty"`
}

// DefaultModel returns the model flagged as default, or the first model.
func (c Config) DefaultModel() string {
	for _, m := range c.Models {
		if m.IsDefault {
			return strings.TrimSpace(m.ModelName)
		}
	}
	if len(c.Models) > 0 {
		return strings.TrimSpace(c.Models[0].ModelName)
	}
	return ""
}

// SupportedTypes lists the provider types New accepts.
func SupportedTypes() []string {
	return []string{"openai", "openai_compatible", "anthropic", "mistral"}
}

func IsSupportedType(providerType string) bool {
	switch strings.ToLower(strings.TrimSpace(providerType)) {
	case "openai", "openai_compatible", "anthropic", "mistral":
		return true
	default:
		return false
	}
}

// New builds a streaming client for the configured provider.
func New(cfg Config) (Client, error) {
	providerType := strings.ToLower(strings.TrimSpace(cfg.Type))
	apiKey := strings.TrimSpace(cfg.APIKey)
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if apiKey == "" {
		return nil, errors.New("missing provider api key")
	}

	switch providerType {
	case "openai", "openai_compatible":
		return newOpenAIClient(baseURL, apiKey), nil
	case "mistral":
		// Mistral exposes an OpenAI-compatible API surface.
		if baseURL == "" {
			baseURL = mistralBaseURL
		}
		return newOpenAIClient(baseURL, apiKey), nil
	case "anthropic":
		return newAnthropicClient(baseURL, apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", providerType)
	}
}
