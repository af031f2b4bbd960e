package memory

import (
	"context"
	"sync"

	"yield-health-alerts/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
// The single mutex serializes appends across positions, which is stricter
// than the per-position locking the PostgreSQL store uses but preserves the
// same ordering guarantee.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string][]storage.Snapshot // keyed by position id, ordered by timestamp
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[string][]storage.Snapshot)}
}

// AppendSnapshot appends a snapshot, rejecting non-increasing timestamps.
func (s *SnapshotStore) AppendSnapshot(_ context.Context, snapshot storage.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[snapshot.PositionID]
	if len(existing) > 0 {
		latest := existing[len(existing)-1].Timestamp
		if !snapshot.Timestamp.After(latest) {
			return &storage.OutOfOrderError{
				PositionID: snapshot.PositionID,
				Timestamp:  snapshot.Timestamp,
				Latest:     latest,
			}
		}
	}

	s.data[snapshot.PositionID] = append(existing, snapshot)
	return nil
}

// CurrentSegment returns the snapshots since the most recent reset marker.
func (s *SnapshotStore) CurrentSegment(_ context.Context, positionID string) ([]storage.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.data[positionID]
	start := 0
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].IsReset {
			start = i
			break
		}
	}

	segment := make([]storage.Snapshot, len(all)-start)
	copy(segment, all[start:])
	return segment, nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
