package storage

import (
	"context"
	"time"
)

// SnapshotStore is the append-only ledger of position valuations.
type SnapshotStore interface {
	// AppendSnapshot durably appends one snapshot. Appends for a given
	// position are serialized; a timestamp that is not strictly newer than
	// the latest recorded one fails with *OutOfOrderError.
	AppendSnapshot(ctx context.Context, snapshot Snapshot) error

	// CurrentSegment returns the position's snapshots from the most recent
	// reset marker (inclusive) to the latest entry, ordered by timestamp.
	// Without any reset marker the segment starts at the first snapshot.
	CurrentSegment(ctx context.Context, positionID string) ([]Snapshot, error)
}

// PositionStore tracks discovered positions.
type PositionStore interface {
	UpsertPosition(ctx context.Context, position Position) error
	ListActivePositions(ctx context.Context) ([]Position, error)
	ArchivePosition(ctx context.Context, positionID string, at time.Time) error
}

// APYSampleStore persists computed annualized returns per position.
type APYSampleStore interface {
	UpsertAPYSample(ctx context.Context, sample APYSample) error

	// LatestAPYSample returns the most recent sample for a position. The
	// second return is false when no sample exists yet.
	LatestAPYSample(ctx context.Context, positionID string) (APYSample, bool, error)

	ListAPYSamplesBetween(ctx context.Context, positionID string, from, to time.Time) ([]APYSample, error)
}

// SettingsStore reads the per-user alerting configuration.
type SettingsStore interface {
	// GetSettings returns a user's settings. The second return is false when
	// the user has none, which downstream treats as alerting disabled.
	GetSettings(ctx context.Context, userID string) (NotificationSettings, bool, error)

	// ListDepegSubscribers returns settings rows with depeg alerting enabled.
	ListDepegSubscribers(ctx context.Context) ([]NotificationSettings, error)
}

// NotificationLogStore is the append-only alert audit log.
type NotificationLogStore interface {
	// InsertLogEntry conditionally appends an entry. It reports false without
	// error when an entry with the same (user, type, subject, direction,
	// sent bucket) already exists, so concurrent evaluators approving the
	// same breach persist at most one row.
	InsertLogEntry(ctx context.Context, entry NotificationLogEntry) (bool, error)

	// LatestByDedupKey returns the newest entry matching the dedup key.
	// The second return is false when no entry exists.
	LatestByDedupKey(ctx context.Context, key DedupKey) (NotificationLogEntry, bool, error)

	ListRecentLogEntries(ctx context.Context, limit int) ([]NotificationLogEntry, error)
	DeleteLogEntriesBefore(ctx context.Context, olderThan time.Time) error
}
