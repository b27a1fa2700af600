package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"marketgen/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and applies pending SQL migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertUser inserts or refreshes a user keyed by open id. Role is only
// written on insert; empty profile fields never overwrite stored ones.
func (s *GormStore) UpsertUser(u domain.User) (domain.User, error) {
	now := time.Now().UTC()
	model := userToModel(u)
	model.ID = 0
	model.CreatedAt = now
	model.UpdatedAt = now
	model.LastSignedIn = now

	updates := []string{"updated_at", "last_signed_in"}
	if u.Name != "" {
		updates = append(updates, "name")
	}
	if u.Email != "" {
		updates = append(updates, "email")
	}
	if u.LoginMethod != "" {
		updates = append(updates, "login_method")
	}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "open_id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&model).Error; err != nil {
		return domain.User{}, err
	}
	user, ok, err := s.GetUserByOpenID(u.OpenID)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, fmt.Errorf("upsert user %q: row missing after write", u.OpenID)
	}
	return user, nil
}

// GetUserByOpenID looks up a user by external login id.
func (s *GormStore) GetUserByOpenID(openID string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("open_id = ?", openID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id int64) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateHistory inserts one generation with all its payloads.
func (s *GormStore) CreateHistory(h domain.GenerationHistory) (domain.GenerationHistory, error) {
	model, err := historyToModel(h)
	if err != nil {
		return domain.GenerationHistory{}, fmt.Errorf("encode history: %w", err)
	}
	model.ID = 0
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.GenerationHistory{}, err
	}
	return historyFromModel(model)
}

// GetHistory returns one history row.
func (s *GormStore) GetHistory(id int64) (domain.GenerationHistory, bool, error) {
	var model HistoryModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.GenerationHistory{}, false, nil
		}
		return domain.GenerationHistory{}, false, err
	}
	h, err := historyFromModel(model)
	if err != nil {
		return domain.GenerationHistory{}, false, fmt.Errorf("decode history %d: %w", id, err)
	}
	return h, true, nil
}

// ListHistoryByUser returns a user's latest generations, newest first.
func (s *GormStore) ListHistoryByUser(userID int64, limit int) ([]domain.GenerationHistory, error) {
	if limit <= 0 {
		return []domain.GenerationHistory{}, nil
	}
	var models []HistoryModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.GenerationHistory, 0, len(models))
	for _, model := range models {
		h, err := historyFromModel(model)
		if err != nil {
			return nil, fmt.Errorf("decode history %d: %w", model.ID, err)
		}
		items = append(items, h)
	}
	return items, nil
}

// UpdateHistory writes only the fields present in update.
func (s *GormStore) UpdateHistory(id int64, update HistoryUpdate) error {
	updates := map[string]any{}
	if update.Prospectus != nil {
		data, err := encodeJSON(update.Prospectus)
		if err != nil {
			return err
		}
		updates["prospectus_content"] = data
	}
	if update.VideoScript != nil {
		data, err := encodeJSON(update.VideoScript)
		if err != nil {
			return err
		}
		updates["video_script_content"] = data
	}
	if update.PosterElements != nil {
		data, err := encodeJSON(update.PosterElements)
		if err != nil {
			return err
		}
		updates["poster_elements"] = data
	}
	if update.PosterURL != nil {
		updates["poster_url"] = *update.PosterURL
	}
	if update.PlatformContents != nil {
		data, err := encodeJSON(update.PlatformContents)
		if err != nil {
			return err
		}
		updates["platform_contents"] = data
	}
	if len(updates) == 0 {
		return nil
	}
	res := s.db.Model(&HistoryModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteHistory removes a history row.
func (s *GormStore) DeleteHistory(id int64) error {
	return s.db.Delete(&HistoryModel{}, "id = ?", id).Error
}

// CreateAsset inserts a brand asset.
func (s *GormStore) CreateAsset(a domain.BrandAsset) (domain.BrandAsset, error) {
	now := time.Now().UTC()
	model := assetToModel(a)
	model.ID = 0
	model.CreatedAt = now
	model.UpdatedAt = now
	if err := s.db.Create(&model).Error; err != nil {
		return domain.BrandAsset{}, err
	}
	return assetFromModel(model), nil
}

// GetAsset returns one asset.
func (s *GormStore) GetAsset(id int64) (domain.BrandAsset, bool, error) {
	var model AssetModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.BrandAsset{}, false, nil
		}
		return domain.BrandAsset{}, false, err
	}
	return assetFromModel(model), true, nil
}

// ListAssetsByUser returns a user's assets, newest first.
func (s *GormStore) ListAssetsByUser(userID int64) ([]domain.BrandAsset, error) {
	var models []AssetModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.BrandAsset, 0, len(models))
	for _, model := range models {
		items = append(items, assetFromModel(model))
	}
	return items, nil
}

// UpdateAsset writes the whitelisted fields and bumps updated_at.
func (s *GormStore) UpdateAsset(id int64, update AssetUpdate) error {
	updates := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if update.Name != nil {
		updates["name"] = *update.Name
	}
	if update.Value != nil {
		updates["value"] = *update.Value
	}
	if update.Description != nil {
		updates["description"] = *update.Description
	}
	res := s.db.Model(&AssetModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAsset removes an asset row.
func (s *GormStore) DeleteAsset(id int64) error {
	return s.db.Delete(&AssetModel{}, "id = ?", id).Error
}
