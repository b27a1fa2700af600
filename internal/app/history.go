package app

import (
	"errors"
	"fmt"

	"marketgen/pkg/domain"
	"marketgen/pkg/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryPatch holds user-editable history payloads; nil fields are kept.
type HistoryPatch struct {
	Prospectus     *domain.Prospectus     `json:"prospectusContent,omitempty"`
	VideoScript    *domain.VideoScript    `json:"videoScriptContent,omitempty"`
	PosterElements *domain.PosterElements `json:"posterElements,omitempty"`
}

// ListHistory returns the caller's most recent generations. limit 0 means the default.
func (a *App) ListHistory(user domain.User, limit int) ([]domain.GenerationHistory, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	if limit < 1 || limit > maxHistoryLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrValidation, maxHistoryLimit)
	}
	items, err := a.store.ListHistoryByUser(user.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return items, nil
}

// GetHistory returns one owned history row.
func (a *App) GetHistory(user domain.User, id int64) (domain.GenerationHistory, error) {
	if err := requireUser(user); err != nil {
		return domain.GenerationHistory{}, err
	}
	return a.ownedHistory(user, id)
}

// UpdateHistory overwrites the payloads present in patch.
func (a *App) UpdateHistory(user domain.User, id int64, patch HistoryPatch) error {
	if err := requireUser(user); err != nil {
		return err
	}
	if _, err := a.ownedHistory(user, id); err != nil {
		return err
	}
	update := store.HistoryUpdate{
		Prospectus:     patch.Prospectus,
		VideoScript:    patch.VideoScript,
		PosterElements: patch.PosterElements,
	}
	if update.Empty() {
		return nil
	}
	if err := a.store.UpdateHistory(id, update); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrHistoryNotFound
		}
		return fmt.Errorf("update history: %w", err)
	}
	return nil
}

// DeleteHistory removes one owned history row.
func (a *App) DeleteHistory(user domain.User, id int64) error {
	if err := requireUser(user); err != nil {
		return err
	}
	if _, err := a.ownedHistory(user, id); err != nil {
		return err
	}
	if err := a.store.DeleteHistory(id); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}

// ownedHistory fails with ErrHistoryNotFound for both absent and foreign rows.
func (a *App) ownedHistory(user domain.User, id int64) (domain.GenerationHistory, error) {
	row, ok, err := a.store.GetHistory(id)
	if err != nil {
		return domain.GenerationHistory{}, fmt.Errorf("fetch history: %w", err)
	}
	if !ok || row.UserID != user.ID {
		return domain.GenerationHistory{}, ErrHistoryNotFound
	}
	return row, nil
}
