package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"marketgen/pkg/domain"
)

// MemoryStore is an in-process Store. Rows are kept in their persisted model
// form so callers never share payload pointers with stored state.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	users    map[int64]UserModel
	byOpenID map[string]int64
	history  map[int64]HistoryModel
	assets   map[int64]AssetModel
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]UserModel),
		byOpenID: make(map[string]int64),
		history:  make(map[int64]HistoryModel),
		assets:   make(map[int64]AssetModel),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) allocID() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) UpsertUser(u domain.User) (domain.User, error) {
	if u.OpenID == "" {
		return domain.User{}, fmt.Errorf("upsert user: open id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if id, ok := s.byOpenID[u.OpenID]; ok {
		m := s.users[id]
		if u.Name != "" {
			m.Name = u.Name
		}
		if u.Email != "" {
			m.Email = u.Email
		}
		if u.LoginMethod != "" {
			m.LoginMethod = u.LoginMethod
		}
		m.UpdatedAt = now
		m.LastSignedIn = now
		s.users[id] = m
		return userFromModel(m), nil
	}
	m := userToModel(u)
	m.ID = s.allocID()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.LastSignedIn = now
	s.users[m.ID] = m
	s.byOpenID[m.OpenID] = m.ID
	return userFromModel(m), nil
}

func (s *MemoryStore) GetUserByOpenID(openID string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byOpenID[openID]
	if !ok {
		return domain.User{}, false, nil
	}
	return userFromModel(s.users[id]), true, nil
}

func (s *MemoryStore) GetUserByID(id int64) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.users[id]
	if !ok {
		return domain.User{}, false, nil
	}
	return userFromModel(m), true, nil
}

func (s *MemoryStore) CreateHistory(h domain.GenerationHistory) (domain.GenerationHistory, error) {
	m, err := historyToModel(h)
	if err != nil {
		return domain.GenerationHistory{}, fmt.Errorf("encode history: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.allocID()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.history[m.ID] = m
	return historyFromModel(m)
}

func (s *MemoryStore) GetHistory(id int64) (domain.GenerationHistory, bool, error) {
	s.mu.RLock()
	m, ok := s.history[id]
	s.mu.RUnlock()
	if !ok {
		return domain.GenerationHistory{}, false, nil
	}
	h, err := historyFromModel(m)
	if err != nil {
		return domain.GenerationHistory{}, false, err
	}
	return h, true, nil
}

func (s *MemoryStore) ListHistoryByUser(userID int64, limit int) ([]domain.GenerationHistory, error) {
	if limit <= 0 {
		return []domain.GenerationHistory{}, nil
	}
	s.mu.RLock()
	models := make([]HistoryModel, 0)
	for _, m := range s.history {
		if m.UserID == userID {
			models = append(models, m)
		}
	}
	s.mu.RUnlock()
	sort.Slice(models, func(i, j int) bool {
		if !models[i].CreatedAt.Equal(models[j].CreatedAt) {
			return models[i].CreatedAt.After(models[j].CreatedAt)
		}
		return models[i].ID > models[j].ID
	})
	if len(models) > limit {
		models = models[:limit]
	}
	items := make([]domain.GenerationHistory, 0, len(models))
	for _, m := range models {
		h, err := historyFromModel(m)
		if err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, nil
}

func (s *MemoryStore) UpdateHistory(id int64, update HistoryUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.history[id]
	if !ok {
		return ErrNotFound
	}
	var err error
	if update.Prospectus != nil {
		if m.ProspectusContent, err = encodeJSON(update.Prospectus); err != nil {
			return err
		}
	}
	if update.VideoScript != nil {
		if m.VideoScriptContent, err = encodeJSON(update.VideoScript); err != nil {
			return err
		}
	}
	if update.PosterElements != nil {
		if m.PosterElements, err = encodeJSON(update.PosterElements); err != nil {
			return err
		}
	}
	if update.PosterURL != nil {
		m.PosterURL = *update.PosterURL
	}
	if update.PlatformContents != nil {
		if m.PlatformContents, err = encodeJSON(update.PlatformContents); err != nil {
			return err
		}
	}
	s.history[id] = m
	return nil
}

func (s *MemoryStore) DeleteHistory(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, id)
	return nil
}

func (s *MemoryStore) CreateAsset(a domain.BrandAsset) (domain.BrandAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	m := assetToModel(a)
	m.ID = s.allocID()
	m.CreatedAt = now
	m.UpdatedAt = now
	s.assets[m.ID] = m
	return assetFromModel(m), nil
}

func (s *MemoryStore) GetAsset(id int64) (domain.BrandAsset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.assets[id]
	if !ok {
		return domain.BrandAsset{}, false, nil
	}
	return assetFromModel(m), true, nil
}

func (s *MemoryStore) ListAssetsByUser(userID int64) ([]domain.BrandAsset, error) {
	s.mu.RLock()
	models := make([]AssetModel, 0)
	for _, m := range s.assets {
		if m.UserID == userID {
			models = append(models, m)
		}
	}
	s.mu.RUnlock()
	sort.Slice(models, func(i, j int) bool {
		if !models[i].CreatedAt.Equal(models[j].CreatedAt) {
			return models[i].CreatedAt.After(models[j].CreatedAt)
		}
		return models[i].ID > models[j].ID
	})
	items := make([]domain.BrandAsset, 0, len(models))
	for _, m := range models {
		items = append(items, assetFromModel(m))
	}
	return items, nil
}

func (s *MemoryStore) UpdateAsset(id int64, update AssetUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.assets[id]
	if !ok {
		return ErrNotFound
	}
	if update.Name != nil {
		m.Name = *update.Name
	}
	if update.Value != nil {
		m.Value = *update.Value
	}
	if update.Description != nil {
		m.Description = *update.Description
	}
	m.UpdatedAt = s.now()
	s.assets[id] = m
	return nil
}

func (s *MemoryStore) DeleteAsset(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assets, id)
	return nil
}
