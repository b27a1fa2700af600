package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"unicode/utf8"

	"marketgen/internal/util"
	"marketgen/pkg/domain"
	"marketgen/pkg/store"
)

const maxAssetNameRunes = 255

// AssetInput creates an asset from a URL or a color value.
type AssetInput struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	URL         string `json:"url,omitempty"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

// UploadInput creates a binary asset from base64 file data.
type UploadInput struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	FileData    string `json:"fileData"`
	MimeType    string `json:"mimeType"`
	Description string `json:"description,omitempty"`
}

// AssetPatch holds the editable asset fields; nil fields are kept.
type AssetPatch struct {
	Name        *string `json:"name,omitempty"`
	Value       *string `json:"value,omitempty"`
	Description *string `json:"description,omitempty"`
}

type UploadResult struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// ListAssets returns the caller's assets, newest first.
func (a *App) ListAssets(user domain.User) ([]domain.BrandAsset, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	items, err := a.store.ListAssetsByUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return items, nil
}

// CreateAsset stores an asset. Colors keep only their value, binary types only their URL.
func (a *App) CreateAsset(user domain.User, in AssetInput) (domain.BrandAsset, error) {
	if err := requireUser(user); err != nil {
		return domain.BrandAsset{}, err
	}
	name, err := validAssetName(in.Name)
	if err != nil {
		return domain.BrandAsset{}, err
	}
	kind, ok := domain.ParseAssetType(in.Type)
	if !ok {
		return domain.BrandAsset{}, fmt.Errorf("%w: unknown asset type %q", ErrValidation, in.Type)
	}
	asset := domain.BrandAsset{
		UserID:      user.ID,
		Name:        name,
		Type:        kind,
		Description: in.Description,
	}
	if kind.UsesValue() {
		if strings.TrimSpace(in.Value) == "" {
			return domain.BrandAsset{}, fmt.Errorf("%w: color value required", ErrValidation)
		}
		asset.Value = strings.TrimSpace(in.Value)
	} else {
		asset.URL = strings.TrimSpace(in.URL)
	}
	created, err := a.store.CreateAsset(asset)
	if err != nil {
		return domain.BrandAsset{}, fmt.Errorf("create asset: %w", err)
	}
	return created, nil
}

// UploadAsset decodes base64 file data, stores it and creates a logo or image asset.
// The stored object is removed again if the asset row cannot be written.
func (a *App) UploadAsset(ctx context.Context, user domain.User, in UploadInput) (UploadResult, error) {
	if err := requireUser(user); err != nil {
		return UploadResult{}, err
	}
	name, err := validAssetName(in.Name)
	if err != nil {
		return UploadResult{}, err
	}
	kind, ok := domain.ParseAssetType(in.Type)
	if !ok || (kind != domain.AssetLogo && kind != domain.AssetImage) {
		return UploadResult{}, fmt.Errorf("%w: upload type must be logo or image", ErrValidation)
	}
	if int64(base64.StdEncoding.DecodedLen(len(in.FileData))) > a.maxUploadBytes+1024 {
		return UploadResult{}, fmt.Errorf("%w: file exceeds %d bytes", ErrValidation, a.maxUploadBytes)
	}
	data, err := decodeBase64(in.FileData)
	if err != nil {
		return UploadResult{}, fmt.Errorf("%w: invalid base64 file data", ErrValidation)
	}
	if len(data) == 0 {
		return UploadResult{}, fmt.Errorf("%w: empty file", ErrValidation)
	}
	if int64(len(data)) > a.maxUploadBytes {
		return UploadResult{}, fmt.Errorf("%w: file exceeds %d bytes", ErrValidation, a.maxUploadBytes)
	}
	if a.objects == nil {
		return UploadResult{}, errors.New("object storage not configured")
	}

	key := fmt.Sprintf("brand-assets/%d/%s.%s", user.ID, util.NewID(), extensionFor(in.MimeType))
	url, err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), in.MimeType)
	if err != nil {
		return UploadResult{}, fmt.Errorf("store upload: %w", err)
	}
	created, err := a.store.CreateAsset(domain.BrandAsset{
		UserID:      user.ID,
		Name:        name,
		Type:        kind,
		URL:         url,
		Description: in.Description,
	})
	if err != nil {
		if delErr := a.objects.Delete(ctx, key); delErr != nil {
			slog.Error("rollback upload failed", "key", key, "err", delErr)
		}
		return UploadResult{}, fmt.Errorf("create asset: %w", err)
	}
	return UploadResult{ID: created.ID, URL: url}, nil
}

// UpdateAsset writes the fields present in patch to an owned asset.
func (a *App) UpdateAsset(user domain.User, id int64, patch AssetPatch) error {
	if err := requireUser(user); err != nil {
		return err
	}
	if _, err := a.ownedAsset(user, id); err != nil {
		return err
	}
	update := store.AssetUpdate{Value: patch.Value, Description: patch.Description}
	if patch.Name != nil {
		name, err := validAssetName(*patch.Name)
		if err != nil {
			return err
		}
		update.Name = &name
	}
	if err := a.store.UpdateAsset(id, update); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAssetNotFound
		}
		return fmt.Errorf("update asset: %w", err)
	}
	return nil
}

// DeleteAsset removes an owned asset row. Stored objects are left in place.
func (a *App) DeleteAsset(user domain.User, id int64) error {
	if err := requireUser(user); err != nil {
		return err
	}
	if _, err := a.ownedAsset(user, id); err != nil {
		return err
	}
	if err := a.store.DeleteAsset(id); err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return nil
}

func (a *App) ownedAsset(user domain.User, id int64) (domain.BrandAsset, error) {
	asset, ok, err := a.store.GetAsset(id)
	if err != nil {
		return domain.BrandAsset{}, fmt.Errorf("fetch asset: %w", err)
	}
	if !ok || asset.UserID != user.ID {
		return domain.BrandAsset{}, ErrAssetNotFound
	}
	return asset, nil
}

func validAssetName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: name required", ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxAssetNameRunes {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrValidation, maxAssetNameRunes)
	}
	return name, nil
}

// decodeBase64 accepts padded or unpadded data, optionally as a data: URL.
func decodeBase64(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		if i := strings.Index(raw, ","); i >= 0 {
			raw = raw[i+1:]
		}
	}
	if data, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
}

// extensionFor takes the mime subtype ("image/svg+xml" -> "svg+xml"), defaulting to png.
func extensionFor(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = mimeType
	}
	_, sub, ok := strings.Cut(mediaType, "/")
	sub = strings.TrimSpace(sub)
	if !ok || sub == "" {
		return "png"
	}
	return sub
}
