package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"yield-health-alerts/internal/storage"
)

// NotificationLogStore is an in-memory implementation of
// storage.NotificationLogStore with the same conditional-insert semantics as
// the PostgreSQL unique constraint.
type NotificationLogStore struct {
	mu      sync.RWMutex
	entries []storage.NotificationLogEntry
	buckets map[string]struct{} // dedup key + sent bucket
}

// NewNotificationLogStore creates a new in-memory notification log.
func NewNotificationLogStore() *NotificationLogStore {
	return &NotificationLogStore{buckets: make(map[string]struct{})}
}

func bucketKey(entry storage.NotificationLogEntry) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d",
		entry.UserID, entry.AlertType, entry.Subject, entry.Direction, entry.SentBucket.UnixNano())
}

// InsertLogEntry appends an entry unless its dedup bucket is already taken.
func (s *NotificationLogStore) InsertLogEntry(_ context.Context, entry storage.NotificationLogEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucketKey(entry)
	if _, exists := s.buckets[key]; exists {
		return false, nil
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.buckets[key] = struct{}{}
	s.entries = append(s.entries, entry)
	return true, nil
}

// LatestByDedupKey returns the newest entry matching the dedup key.
func (s *NotificationLogStore) LatestByDedupKey(_ context.Context, key storage.DedupKey) (storage.NotificationLogEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest storage.NotificationLogEntry
		found  bool
	)
	for _, entry := range s.entries {
		if entry.UserID != key.UserID || entry.AlertType != key.AlertType ||
			entry.Subject != key.Subject || entry.Direction != key.Direction {
			continue
		}
		if !found || entry.SentAt.After(latest.SentAt) {
			latest = entry
			found = true
		}
	}
	return latest, found, nil
}

// ListRecentLogEntries lists the most recent entries, newest first.
func (s *NotificationLogStore) ListRecentLogEntries(_ context.Context, limit int) ([]storage.NotificationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]storage.NotificationLogEntry, len(s.entries))
	copy(result, s.entries)
	sort.Slice(result, func(i, j int) bool { return result[i].SentAt.After(result[j].SentAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// DeleteLogEntriesBefore prunes entries sent before the cutoff.
func (s *NotificationLogStore) DeleteLogEntriesBefore(_ context.Context, olderThan time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, entry := range s.entries {
		if entry.SentAt.Before(olderThan) {
			delete(s.buckets, bucketKey(entry))
			continue
		}
		kept = append(kept, entry)
	}
	s.entries = kept
	return nil
}

var _ storage.NotificationLogStore = (*NotificationLogStore)(nil)
