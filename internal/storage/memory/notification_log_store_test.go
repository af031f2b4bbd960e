package memory

import (
	"context"
	"testing"
	"time"

	"yield-health-alerts/internal/storage"
)

func logEntry(id, userID, subject string, sentAt time.Time) storage.NotificationLogEntry {
	return storage.NotificationLogEntry{
		ID:         id,
		UserID:     userID,
		AlertType:  "depeg",
		Severity:   "high",
		Subject:    subject,
		Direction:  "below",
		SentAt:     sentAt,
		SentBucket: sentAt.Truncate(time.Minute),
	}
}

func TestInsertLogEntryDedup(t *testing.T) {
	store := NewNotificationLogStore()
	ctx := context.Background()
	sent := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)

	inserted, err := store.InsertLogEntry(ctx, logEntry("a", "user-1", "USDC", sent))
	if err != nil || !inserted {
		t.Fatalf("first insert should succeed: inserted=%v err=%v", inserted, err)
	}

	// Same dedup key, same bucket: conditional insert declines.
	inserted, err = store.InsertLogEntry(ctx, logEntry("b", "user-1", "USDC", sent.Add(20*time.Second)))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if inserted {
		t.Fatal("same key and bucket should not insert twice")
	}

	inserted, err = store.InsertLogEntry(ctx, logEntry("c", "user-1", "USDC", sent.Add(time.Minute)))
	if err != nil || !inserted {
		t.Fatalf("next bucket should insert: inserted=%v err=%v", inserted, err)
	}

	inserted, err = store.InsertLogEntry(ctx, logEntry("d", "user-2", "USDC", sent))
	if err != nil || !inserted {
		t.Fatalf("different user should insert: inserted=%v err=%v", inserted, err)
	}
}

func TestLatestByDedupKey(t *testing.T) {
	store := NewNotificationLogStore()
	ctx := context.Background()
	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.InsertLogEntry(ctx, logEntry("a", "user-1", "USDC", sent)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := store.InsertLogEntry(ctx, logEntry("b", "user-1", "USDC", sent.Add(2*time.Hour))); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	key := storage.DedupKey{UserID: "user-1", AlertType: "depeg", Subject: "USDC", Direction: "below"}
	latest, found, err := store.LatestByDedupKey(ctx, key)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !found || latest.ID != "b" {
		t.Fatalf("lookup should return the newest entry, got %+v found=%v", latest, found)
	}

	_, found, err = store.LatestByDedupKey(ctx, storage.DedupKey{UserID: "nobody"})
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found {
		t.Fatal("unknown key should report absence")
	}
}

func TestDeleteLogEntriesBefore(t *testing.T) {
	store := NewNotificationLogStore()
	ctx := context.Background()
	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.InsertLogEntry(ctx, logEntry("old", "user-1", "USDC", sent)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := store.InsertLogEntry(ctx, logEntry("new", "user-1", "USDC", sent.Add(time.Hour))); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := store.DeleteLogEntriesBefore(ctx, sent.Add(30*time.Minute)); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	entries, err := store.ListRecentLogEntries(ctx, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "new" {
		t.Fatalf("only the newer entry should remain: %+v", entries)
	}

	// The pruned bucket is free again.
	inserted, err := store.InsertLogEntry(ctx, logEntry("again", "user-1", "USDC", sent))
	if err != nil || !inserted {
		t.Fatalf("pruned bucket should accept inserts: inserted=%v err=%v", inserted, err)
	}
}
