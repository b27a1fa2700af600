package store

import (
	"errors"

	"marketgen/pkg/domain"
)

// ErrNotFound is returned by updates that target a missing row.
var ErrNotFound = errors.New("record not found")

// Store defines persistence operations for users, generation history and brand assets.
type Store interface {
	// users
	UpsertUser(domain.User) (domain.User, error)
	GetUserByOpenID(openID string) (domain.User, bool, error)
	GetUserByID(id int64) (domain.User, bool, error)

	// history
	CreateHistory(domain.GenerationHistory) (domain.GenerationHistory, error)
	GetHistory(id int64) (domain.GenerationHistory, bool, error)
	ListHistoryByUser(userID int64, limit int) ([]domain.GenerationHistory, error)
	UpdateHistory(id int64, update HistoryUpdate) error
	DeleteHistory(id int64) error

	// assets
	CreateAsset(domain.BrandAsset) (domain.BrandAsset, error)
	GetAsset(id int64) (domain.BrandAsset, bool, error)
	ListAssetsByUser(userID int64) ([]domain.BrandAsset, error)
	UpdateAsset(id int64, update AssetUpdate) error
	DeleteAsset(id int64) error
}

// HistoryUpdate carries the fields to overwrite; nil fields are left untouched.
type HistoryUpdate struct {
	Prospectus       *domain.Prospectus
	VideoScript      *domain.VideoScript
	PosterElements   *domain.PosterElements
	PosterURL        *string
	PlatformContents *domain.PlatformContents
}

// Empty reports whether the update carries no fields.
func (u HistoryUpdate) Empty() bool {
	return u.Prospectus == nil && u.VideoScript == nil && u.PosterElements == nil &&
		u.PosterURL == nil && u.PlatformContents == nil
}

// AssetUpdate carries the whitelisted mutable asset fields.
type AssetUpdate struct {
	Name        *string
	Value       *string
	Description *string
}
