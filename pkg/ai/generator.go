package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers (Gemini, Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// StructuredGenerator is an optional capability for providers that can be
// constrained to emit JSON matching a schema.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema JSONSchema) (string, error)
}

// JSONSchema names a response schema. Schema is the raw JSON Schema document.
type JSONSchema struct {
	Name   string
	Strict bool
	Schema json.RawMessage
}

// Config selects and configures a provider.
type Config struct {
	Provider string // openai | gemini | ollama
	BaseURL  string
	APIKey   string
	Model    string
}

// NewTextGenerator builds the configured provider. httpClient may be nil.
func NewTextGenerator(cfg Config, httpClient *http.Client) (TextGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewOpenAICompatGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model, httpClient), nil
	case "gemini":
		client, err := NewGeminiClient(cfg.APIKey, httpClient)
		if err != nil {
			return nil, err
		}
		if cfg.BaseURL != "" {
			client.baseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		return NewGeminiGenerator(client, cfg.Model), nil
	case "ollama":
		return NewOllamaGenerator(NewOllamaClient(cfg.BaseURL, httpClient), cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown text provider %q", cfg.Provider)
	}
}
