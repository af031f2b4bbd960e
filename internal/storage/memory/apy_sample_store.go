package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"yield-health-alerts/internal/storage"
)

// APYSampleStore is an in-memory implementation of storage.APYSampleStore.
type APYSampleStore struct {
	mu   sync.RWMutex
	data map[string]storage.APYSample // keyed by (position id, bucket)
}

// NewAPYSampleStore creates a new in-memory APY sample store.
func NewAPYSampleStore() *APYSampleStore {
	return &APYSampleStore{data: make(map[string]storage.APYSample)}
}

func sampleKey(positionID string, bucket time.Time) string {
	return fmt.Sprintf("%s|%d", positionID, bucket.UnixNano())
}

// UpsertAPYSample stores one computed return for a position and bucket.
func (s *APYSampleStore) UpsertAPYSample(_ context.Context, sample storage.APYSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now().UTC()
	}
	s.data[sampleKey(sample.PositionID, sample.Bucket)] = sample
	return nil
}

// LatestAPYSample returns the most recent sample for a position.
func (s *APYSampleStore) LatestAPYSample(_ context.Context, positionID string) (storage.APYSample, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest storage.APYSample
		found  bool
	)
	for _, sample := range s.data {
		if sample.PositionID != positionID {
			continue
		}
		if !found || sample.Bucket.After(latest.Bucket) {
			latest = sample
			found = true
		}
	}
	return latest, found, nil
}

// ListAPYSamplesBetween lists samples for a position within [from, to).
func (s *APYSampleStore) ListAPYSamplesBetween(_ context.Context, positionID string, from, to time.Time) ([]storage.APYSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]storage.APYSample, 0)
	for _, sample := range s.data {
		if sample.PositionID != positionID {
			continue
		}
		if sample.Bucket.Before(from) || !sample.Bucket.Before(to) {
			continue
		}
		result = append(result, sample)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Bucket.Before(result[j].Bucket) })
	return result, nil
}

var _ storage.APYSampleStore = (*APYSampleStore)(nil)
