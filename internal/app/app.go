package app

import (
	"context"
	"errors"
	"time"

	"marketgen/pkg/ai"
	"marketgen/pkg/imagegen"
	"marketgen/pkg/storage"
	"marketgen/pkg/store"
)

const defaultMaxUploadBytes = 5 * 1024 * 1024

// ImageGenerator produces a browser-loadable image URL for a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, req imagegen.Request) (string, error)
}

// Config holds runtime dependencies for the core application.
type Config struct {
	Store          store.Store
	Objects        storage.ObjectStore
	Text           ai.TextGenerator
	Images         ImageGenerator
	OwnerOpenID    string
	MaxUploadBytes int64
}

// App is the core application service wiring storage and generation logic.
type App struct {
	store          store.Store
	objects        storage.ObjectStore
	text           ai.TextGenerator
	images         ImageGenerator
	ownerOpenID    string
	maxUploadBytes int64
	now            func() time.Time
}

// New constructs the application from injected dependencies.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("record store required")
	}
	if cfg.Text == nil {
		return nil, errors.New("text generator required")
	}
	if cfg.Images == nil {
		cfg.Images = imagegen.NewWithProviders()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &App{
		store:          cfg.Store,
		objects:        cfg.Objects,
		text:           cfg.Text,
		images:         cfg.Images,
		ownerOpenID:    cfg.OwnerOpenID,
		maxUploadBytes: maxUpload,
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

// MaxUploadBytes is the largest decoded upload accepted.
func (a *App) MaxUploadBytes() int64 { return a.maxUploadBytes }
