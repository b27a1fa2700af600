package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"marketgen/pkg/domain"
)

// GORM models used for persistence. Table names match the SQL migrations.
type UserModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	OpenID       string `gorm:"column:open_id;uniqueIndex;not null"`
	Name         string
	Email        string
	LoginMethod  string
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
	LastSignedIn time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type HistoryModel struct {
	ID                 int64  `gorm:"primaryKey;autoIncrement"`
	UserID             int64  `gorm:"not null;index"`
	Prompt             string `gorm:"type:text;not null"`
	Style              string `gorm:"not null"`
	ProspectusContent  datatypes.JSON `gorm:"type:jsonb"`
	VideoScriptContent datatypes.JSON `gorm:"type:jsonb"`
	PosterElements     datatypes.JSON `gorm:"type:jsonb"`
	PosterURL          string
	VideoURL           string
	PlatformContents   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt          time.Time      `gorm:"not null;index"`
}

func (HistoryModel) TableName() string { return "generation_history" }

type AssetModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	UserID      int64  `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Type        string `gorm:"not null"`
	URL         string
	Value       string
	Description string
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (AssetModel) TableName() string { return "brand_assets" }

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		OpenID:       u.OpenID,
		Name:         u.Name,
		Email:        u.Email,
		LoginMethod:  u.LoginMethod,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		LastSignedIn: u.LastSignedIn,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		OpenID:       m.OpenID,
		Name:         m.Name,
		Email:        m.Email,
		LoginMethod:  m.LoginMethod,
		Role:         domain.UserRole(m.Role),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		LastSignedIn: m.LastSignedIn,
	}
}

func historyToModel(h domain.GenerationHistory) (HistoryModel, error) {
	m := HistoryModel{
		ID:        h.ID,
		UserID:    h.UserID,
		Prompt:    h.Prompt,
		Style:     h.Style.String(),
		PosterURL: h.PosterURL,
		VideoURL:  h.VideoURL,
		CreatedAt: h.CreatedAt,
	}
	var err error
	if m.ProspectusContent, err = encodeJSON(h.Prospectus); err != nil {
		return m, err
	}
	if m.VideoScriptContent, err = encodeJSON(h.VideoScript); err != nil {
		return m, err
	}
	if m.PosterElements, err = encodeJSON(h.PosterElements); err != nil {
		return m, err
	}
	if m.PlatformContents, err = encodeJSON(h.PlatformContents); err != nil {
		return m, err
	}
	return m, nil
}

func historyFromModel(m HistoryModel) (domain.GenerationHistory, error) {
	h := domain.GenerationHistory{
		ID:        m.ID,
		UserID:    m.UserID,
		Prompt:    m.Prompt,
		PosterURL: m.PosterURL,
		VideoURL:  m.VideoURL,
		CreatedAt: m.CreatedAt,
	}
	// Rows written by older clients may carry a style outside the current set.
	h.Style, _ = domain.ParseStyle(m.Style)
	if err := decodeJSON(m.ProspectusContent, &h.Prospectus); err != nil {
		return h, err
	}
	if err := decodeJSON(m.VideoScriptContent, &h.VideoScript); err != nil {
		return h, err
	}
	if err := decodeJSON(m.PosterElements, &h.PosterElements); err != nil {
		return h, err
	}
	if err := decodeJSON(m.PlatformContents, &h.PlatformContents); err != nil {
		return h, err
	}
	return h, nil
}

func assetToModel(a domain.BrandAsset) AssetModel {
	return AssetModel{
		ID:          a.ID,
		UserID:      a.UserID,
		Name:        a.Name,
		Type:        string(a.Type),
		URL:         a.URL,
		Value:       a.Value,
		Description: a.Description,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func assetFromModel(m AssetModel) domain.BrandAsset {
	return domain.BrandAsset{
		ID:          m.ID,
		UserID:      m.UserID,
		Name:        m.Name,
		Type:        domain.AssetType(m.Type),
		URL:         m.URL,
		Value:       m.Value,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// encodeJSON returns nil for nil pointers so the column stays NULL.
func encodeJSON[T any](v *T) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func decodeJSON[T any](data datatypes.JSON, dst **T) error {
	if len(data) == 0 || string(data) == "null" {
		*dst = nil
		return nil
	}
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	*dst = v
	return nil
}
