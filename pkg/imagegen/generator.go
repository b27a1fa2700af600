package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"marketgen/pkg/storage"
)

var (
	// ErrNotConfigured means no image provider has credentials.
	ErrNotConfigured = errors.New("image generation not configured")
	// ErrGenerationFailed wraps the last provider error once the chain is exhausted.
	ErrGenerationFailed = errors.New("image generation failed")
)

// ReferenceImage is an optional source image for edit-style requests.
type ReferenceImage struct {
	URL      string `json:"url,omitempty"`
	B64JSON  string `json:"b64Json,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Request describes one image to produce.
type Request struct {
	Prompt         string
	OriginalImages []ReferenceImage
}

// Provider is one image backend. Generate returns a URL a browser can load.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Options carries provider credentials and shared dependencies.
type Options struct {
	CogViewAPIKey string
	CogViewModel  string
	ForgeAPIURL   string
	ForgeAPIKey   string
	Store         storage.ObjectStore
	HTTPClient    *http.Client
}

// Generator walks an ordered provider chain fixed at construction.
type Generator struct {
	providers []Provider
}

// New resolves the provider chain from which credentials are present.
// CogView wins over Forge; CogView failures degrade to a placeholder image.
func New(opts Options) *Generator {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	var chain []Provider
	switch {
	case strings.TrimSpace(opts.CogViewAPIKey) != "":
		chain = []Provider{
			NewCogView(opts.CogViewAPIKey, opts.CogViewModel, opts.Store, client),
			Placeholder{},
		}
	case strings.TrimSpace(opts.ForgeAPIURL) != "" && strings.TrimSpace(opts.ForgeAPIKey) != "":
		chain = []Provider{NewForge(opts.ForgeAPIURL, opts.ForgeAPIKey, opts.Store, client)}
	}
	return NewWithProviders(chain...)
}

// NewWithProviders builds a generator over an explicit chain.
func NewWithProviders(providers ...Provider) *Generator {
	return &Generator{providers: providers}
}

// Configured reports whether any provider is available.
func (g *Generator) Configured() bool { return len(g.providers) > 0 }

// ProviderNames lists the chain in order.
func (g *Generator) ProviderNames() []string {
	names := make([]string, 0, len(g.providers))
	for _, p := range g.providers {
		names = append(names, p.Name())
	}
	return names
}

// Generate returns the first URL produced by the chain.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	if len(g.providers) == 0 {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, ErrNotConfigured)
	}
	var lastErr error
	for _, p := range g.providers {
		url, err := p.Generate(ctx, req)
		if err == nil && url != "" {
			return url, nil
		}
		if err == nil {
			err = errors.New("empty image url")
		}
		lastErr = err
		slog.Warn("image provider failed", "provider", p.Name(), "err", err)
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%w: %w", ErrGenerationFailed, lastErr)
}
