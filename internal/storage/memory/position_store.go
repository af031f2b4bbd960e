package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"yield-health-alerts/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]storage.Position
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{data: make(map[string]storage.Position)}
}

// UpsertPosition registers or refreshes a position.
func (s *PositionStore) UpsertPosition(_ context.Context, position storage.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if position.Status == "" {
		position.Status = storage.PositionActive
	}
	if existing, ok := s.data[position.ID]; ok {
		position.Status = existing.Status
		position.CreatedAt = existing.CreatedAt
		position.ArchivedAt = existing.ArchivedAt
	} else if position.CreatedAt.IsZero() {
		position.CreatedAt = time.Now().UTC()
	}
	s.data[position.ID] = position
	return nil
}

// ListActivePositions lists positions not yet archived, ordered by id.
func (s *PositionStore) ListActivePositions(_ context.Context) ([]storage.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]storage.Position, 0, len(s.data))
	for _, pos := range s.data {
		if pos.Status == storage.PositionActive {
			result = append(result, pos)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ArchivePosition marks a position archived.
func (s *PositionStore) ArchivePosition(_ context.Context, positionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.data[positionID]
	if !ok {
		return storage.ErrNotFound
	}
	pos.Status = storage.PositionArchived
	pos.ArchivedAt = &at
	s.data[positionID] = pos
	return nil
}

var _ storage.PositionStore = (*PositionStore)(nil)
