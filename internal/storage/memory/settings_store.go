package memory

import (
	"context"
	"sort"
	"sync"

	"yield-health-alerts/internal/storage"
)

// SettingsStore is an in-memory implementation of storage.SettingsStore.
type SettingsStore struct {
	mu   sync.RWMutex
	data map[string]storage.NotificationSettings
}

// NewSettingsStore creates a new in-memory settings store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{data: make(map[string]storage.NotificationSettings)}
}

// PutSettings stores a user's settings. Test and simulation seam; production
// settings are mutated by the external CRUD surface.
func (s *SettingsStore) PutSettings(settings storage.NotificationSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[settings.UserID] = settings
}

// GetSettings returns one user's settings.
func (s *SettingsStore) GetSettings(_ context.Context, userID string) (storage.NotificationSettings, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, ok := s.data[userID]
	return settings, ok, nil
}

// ListDepegSubscribers lists settings with depeg alerting enabled.
func (s *SettingsStore) ListDepegSubscribers(_ context.Context) ([]storage.NotificationSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]storage.NotificationSettings, 0)
	for _, settings := range s.data {
		if settings.DepegEnabled {
			result = append(result, settings)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

var _ storage.SettingsStore = (*SettingsStore)(nil)
