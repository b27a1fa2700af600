package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"marketgen/internal/util"
	"marketgen/pkg/ai"
	"marketgen/pkg/domain"
	"marketgen/pkg/imagegen"
	"marketgen/pkg/store"
)

const maxPromptRunes = 2000

// ContentResult is the response of a content generation.
type ContentResult struct {
	ID int64 `json:"id"`
	domain.MarketingContent
}

// PosterInput carries the texts rendered onto a poster.
type PosterInput struct {
	HistoryID    int64
	MainHeadline string
	SubHeadline  string
	BodyText     string
	Style        domain.Style
}

type PosterResult struct {
	PosterURL string `json:"posterUrl"`
}

// PlatformInput requests adaptations of content for social platforms.
type PlatformInput struct {
	HistoryID       int64
	OriginalContent string
	Platforms       []domain.Platform
	Style           domain.Style
}

// GenerateContent produces a prospectus, video script and poster elements for
// prompt and stores them as one history row. Nothing is stored on failure.
func (a *App) GenerateContent(ctx context.Context, user domain.User, prompt string, style domain.Style) (ContentResult, error) {
	if err := requireUser(user); err != nil {
		return ContentResult{}, err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ContentResult{}, fmt.Errorf("%w: prompt required", ErrValidation)
	}
	if utf8.RuneCountInString(prompt) > maxPromptRunes {
		return ContentResult{}, fmt.Errorf("%w: prompt exceeds %d characters", ErrValidation, maxPromptRunes)
	}
	if !style.Valid() {
		return ContentResult{}, fmt.Errorf("%w: unknown style", ErrValidation)
	}

	systemPrompt := contentSystemPrompt(style)
	userPrompt := contentUserPrefix + prompt
	var (
		text string
		err  error
	)
	if sg, ok := a.text.(ai.StructuredGenerator); ok {
		text, err = sg.GenerateStructured(ctx, systemPrompt, userPrompt, contentResponseSchema())
	} else {
		text, err = a.text.GenerateText(ctx, systemPrompt, userPrompt)
	}
	if err != nil {
		return ContentResult{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	content, err := decodeContent(text)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("content decode failed", "user_id", user.ID, "err", err)
		return ContentResult{}, err
	}

	row, err := a.store.CreateHistory(domain.GenerationHistory{
		UserID:         user.ID,
		Prompt:         prompt,
		Style:          style,
		Prospectus:     &content.Prospectus,
		VideoScript:    &content.VideoScript,
		PosterElements: &content.PosterElements,
		CreatedAt:      a.now(),
	})
	if err != nil {
		return ContentResult{}, fmt.Errorf("save history: %w", err)
	}
	return ContentResult{ID: row.ID, MarketingContent: content}, nil
}

// GeneratePoster renders a poster image for an owned history row and
// overwrites its poster URL.
func (a *App) GeneratePoster(ctx context.Context, user domain.User, in PosterInput) (PosterResult, error) {
	if err := requireUser(user); err != nil {
		return PosterResult{}, err
	}
	if !in.Style.Valid() {
		return PosterResult{}, fmt.Errorf("%w: unknown style", ErrValidation)
	}
	if _, err := a.ownedHistory(user, in.HistoryID); err != nil {
		return PosterResult{}, err
	}

	prompt := posterPrompt(in.Style, in.MainHeadline, in.SubHeadline, in.BodyText)
	url, err := a.images.Generate(ctx, imagegen.Request{Prompt: prompt})
	if err != nil {
		return PosterResult{}, fmt.Errorf("%w: %v", ErrImageGeneration, err)
	}
	if err := a.store.UpdateHistory(in.HistoryID, store.HistoryUpdate{PosterURL: &url}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return PosterResult{}, ErrHistoryNotFound
		}
		return PosterResult{}, fmt.Errorf("save poster url: %w", err)
	}
	slog.Info("poster generated", "user_id", user.ID, "history_id", in.HistoryID)
	return PosterResult{PosterURL: url}, nil
}

// GeneratePlatformContent adapts content for the requested platforms and
// replaces the row's platform adaptations wholesale.
func (a *App) GeneratePlatformContent(ctx context.Context, user domain.User, in PlatformInput) (domain.PlatformContents, error) {
	if err := requireUser(user); err != nil {
		return domain.PlatformContents{}, err
	}
	if !in.Style.Valid() {
		return domain.PlatformContents{}, fmt.Errorf("%w: unknown style", ErrValidation)
	}
	platforms, err := dedupePlatforms(in.Platforms)
	if err != nil {
		return domain.PlatformContents{}, err
	}
	row, err := a.ownedHistory(user, in.HistoryID)
	if err != nil {
		return domain.PlatformContents{}, err
	}
	original := in.OriginalContent
	if strings.TrimSpace(original) == "" {
		original = flattenProspectus(row.Prospectus)
	}
	if strings.TrimSpace(original) == "" {
		return domain.PlatformContents{}, fmt.Errorf("%w: original content required", ErrValidation)
	}

	text, err := a.text.GenerateText(ctx, platformSystemPrompt(in.Style, platforms), platformUserPrefix+original)
	if err != nil {
		return domain.PlatformContents{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	contents, err := decodePlatforms(text, platforms)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("platform content decode failed", "user_id", user.ID, "err", err)
		return domain.PlatformContents{}, err
	}
	if err := a.store.UpdateHistory(in.HistoryID, store.HistoryUpdate{PlatformContents: &contents}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.PlatformContents{}, ErrHistoryNotFound
		}
		return domain.PlatformContents{}, fmt.Errorf("save platform contents: %w", err)
	}
	return contents, nil
}

// dedupePlatforms keeps first-seen order and rejects empty or unknown input.
func dedupePlatforms(in []domain.Platform) ([]domain.Platform, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: at least one platform required", ErrValidation)
	}
	seen := make(map[domain.Platform]bool, len(in))
	out := make([]domain.Platform, 0, len(in))
	for _, p := range in {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: unknown platform", ErrValidation)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}
