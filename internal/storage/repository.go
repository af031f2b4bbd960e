package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	lockPositionSQL = `SELECT pg_advisory_xact_lock(hashtext($1));`

	latestSnapshotTSSQL = `SELECT ts FROM snapshots
    WHERE position_id = $1
    ORDER BY ts DESC
    LIMIT 1;`

	insertSnapshotSQL = `INSERT INTO snapshots (
        position_id,
        ts,
        valuation,
        is_reset
    ) VALUES ($1,$2,$3,$4);`

	currentSegmentSQL = `SELECT position_id, ts, valuation, is_reset, created_at
    FROM snapshots
    WHERE position_id = $1
      AND ts >= COALESCE(
          (SELECT max(ts) FROM snapshots WHERE position_id = $1 AND is_reset),
          '-infinity'::timestamptz)
    ORDER BY ts;`

	upsertPositionSQL = `INSERT INTO positions (
        id, user_id, protocol, asset, status
    ) VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (id) DO UPDATE
    SET user_id  = EXCLUDED.user_id,
        protocol = EXCLUDED.protocol,
        asset    = EXCLUDED.asset;`

	listActivePositionsSQL = `SELECT id, user_id, protocol, asset, status, created_at, archived_at
    FROM positions
    WHERE status = 'active'
    ORDER BY id;`

	archivePositionSQL = `UPDATE positions
    SET status = 'archived', archived_at = $2
    WHERE id = $1;`

	upsertAPYSampleSQL = `INSERT INTO apy_samples (
        position_id, bucket_ts, apy, period_return
    ) VALUES ($1,$2,$3,$4)
    ON CONFLICT (position_id, bucket_ts) DO UPDATE
    SET apy           = EXCLUDED.apy,
        period_return = EXCLUDED.period_return;`

	latestAPYSampleSQL = `SELECT position_id, bucket_ts, apy, period_return, created_at
    FROM apy_samples
    WHERE position_id = $1
    ORDER BY bucket_ts DESC
    LIMIT 1;`

	listAPYSamplesBetweenSQL = `SELECT position_id, bucket_ts, apy, period_return, created_at
    FROM apy_samples
    WHERE position_id = $1
      AND bucket_ts >= $2
      AND bucket_ts < $3
    ORDER BY bucket_ts;`

	getSettingsSQL = `SELECT user_id, depeg_enabled, depeg_severity, depeg_lower, depeg_upper,
        depeg_symbols, apy_enabled, apy_severity, apy_drop_threshold, updated_at
    FROM notification_settings
    WHERE user_id = $1;`

	listDepegSubscribersSQL = `SELECT user_id, depeg_enabled, depeg_severity, depeg_lower, depeg_upper,
        depeg_symbols, apy_enabled, apy_severity, apy_drop_threshold, updated_at
    FROM notification_settings
    WHERE depeg_enabled
    ORDER BY user_id;`

	insertLogEntrySQL = `INSERT INTO notification_log (
        id, user_id, alert_type, severity, subject, direction, message, metadata, sent_at, sent_bucket
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    ON CONFLICT (user_id, alert_type, subject, direction, sent_bucket) DO NOTHING;`

	latestByDedupKeySQL = `SELECT id, user_id, alert_type, severity, subject, direction,
        message, metadata, sent_at, sent_bucket, created_at
    FROM notification_log
    WHERE user_id = $1
      AND alert_type = $2
      AND subject = $3
      AND direction = $4
    ORDER BY sent_at DESC
    LIMIT 1;`

	listRecentLogEntriesSQL = `SELECT id, user_id, alert_type, severity, subject, direction,
        message, metadata, sent_at, sent_bucket, created_at
    FROM notification_log
    ORDER BY sent_at DESC
    LIMIT $1;`

	deleteLogEntriesBeforeSQL = `DELETE FROM notification_log WHERE sent_at < $1;`
)

// Store provides PostgreSQL-backed access to positions, snapshots, APY
// samples, settings, and the notification log.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// AppendSnapshot appends one snapshot under a per-position advisory lock so
// two concurrent valuations cannot land out of order or lose a reset flag.
func (s *Store) AppendSnapshot(ctx context.Context, snapshot Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot append: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, lockPositionSQL, snapshot.PositionID); err != nil {
		return fmt.Errorf("lock position %s: %w", snapshot.PositionID, err)
	}

	var latest time.Time
	err = tx.QueryRow(ctx, latestSnapshotTSSQL, snapshot.PositionID).Scan(&latest)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// first snapshot for the position
	case err != nil:
		return fmt.Errorf("read latest snapshot ts: %w", err)
	default:
		if !snapshot.Timestamp.After(latest) {
			return &OutOfOrderError{
				PositionID: snapshot.PositionID,
				Timestamp:  snapshot.Timestamp,
				Latest:     latest,
			}
		}
	}

	if _, err := tx.Exec(ctx, insertSnapshotSQL,
		snapshot.PositionID,
		snapshot.Timestamp,
		snapshot.Valuation.String(),
		snapshot.IsReset,
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot append: %w", err)
	}
	return nil
}

// CurrentSegment returns the snapshots since the most recent reset marker.
func (s *Store) CurrentSegment(ctx context.Context, positionID string) ([]Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, currentSegmentSQL, positionID)
	if queryErr != nil {
		return nil, fmt.Errorf("query current segment: %w", queryErr)
	}
	defer rows.Close()

	segment := make([]Snapshot, 0)
	for rows.Next() {
		var (
			snap         Snapshot
			valuationStr string
		)
		if err := rows.Scan(&snap.PositionID, &snap.Timestamp, &valuationStr, &snap.IsReset, &snap.CreatedAt); err != nil {
			return nil, err
		}
		snap.Valuation, err = decimal.NewFromString(valuationStr)
		if err != nil {
			return nil, fmt.Errorf("parse valuation: %w", err)
		}
		segment = append(segment, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return segment, nil
}

// UpsertPosition registers a discovered position or refreshes its identity.
func (s *Store) UpsertPosition(ctx context.Context, position Position) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	status := position.Status
	if status == "" {
		status = PositionActive
	}
	if _, execErr := pool.Exec(ctx, upsertPositionSQL,
		position.ID, position.UserID, position.Protocol, position.Asset, status,
	); execErr != nil {
		return fmt.Errorf("upsert position: %w", execErr)
	}
	return nil
}

// ListActivePositions lists positions not yet archived.
func (s *Store) ListActivePositions(ctx context.Context) ([]Position, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActivePositionsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active positions: %w", queryErr)
	}
	defer rows.Close()

	positions := make([]Position, 0)
	for rows.Next() {
		var (
			pos      Position
			archived sql.NullTime
		)
		if err := rows.Scan(&pos.ID, &pos.UserID, &pos.Protocol, &pos.Asset, &pos.Status, &pos.CreatedAt, &archived); err != nil {
			return nil, err
		}
		if archived.Valid {
			at := archived.Time
			pos.ArchivedAt = &at
		}
		positions = append(positions, pos)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return positions, nil
}

// ArchivePosition marks a fully exited position as archived.
func (s *Store) ArchivePosition(ctx context.Context, positionID string, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, archivePositionSQL, positionID, at)
	if execErr != nil {
		return fmt.Errorf("archive position: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertAPYSample persists one computed return for a position and bucket.
func (s *Store) UpsertAPYSample(ctx context.Context, sample APYSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertAPYSampleSQL,
		sample.PositionID, sample.Bucket, sample.APY, sample.PeriodReturn,
	); execErr != nil {
		return fmt.Errorf("upsert apy sample: %w", execErr)
	}
	return nil
}

// LatestAPYSample returns the most recent sample for a position.
func (s *Store) LatestAPYSample(ctx context.Context, positionID string) (APYSample, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return APYSample{}, false, err
	}

	var sample APYSample
	scanErr := pool.QueryRow(ctx, latestAPYSampleSQL, positionID).Scan(
		&sample.PositionID, &sample.Bucket, &sample.APY, &sample.PeriodReturn, &sample.CreatedAt,
	)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return APYSample{}, false, nil
	}
	if scanErr != nil {
		return APYSample{}, false, fmt.Errorf("latest apy sample: %w", scanErr)
	}
	return sample, true, nil
}

// ListAPYSamplesBetween lists samples for a position within [from, to).
func (s *Store) ListAPYSamplesBetween(ctx context.Context, positionID string, from, to time.Time) ([]APYSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAPYSamplesBetweenSQL, positionID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list apy samples: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]APYSample, 0)
	for rows.Next() {
		var sample APYSample
		if err := rows.Scan(&sample.PositionID, &sample.Bucket, &sample.APY, &sample.PeriodReturn, &sample.CreatedAt); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// GetSettings returns one user's alerting settings.
func (s *Store) GetSettings(ctx context.Context, userID string) (NotificationSettings, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return NotificationSettings{}, false, err
	}

	settings, scanErr := scanSettings(pool.QueryRow(ctx, getSettingsSQL, userID))
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return NotificationSettings{}, false, nil
	}
	if scanErr != nil {
		return NotificationSettings{}, false, fmt.Errorf("get settings: %w", scanErr)
	}
	return settings, true, nil
}

// ListDepegSubscribers lists settings rows with depeg alerting enabled.
func (s *Store) ListDepegSubscribers(ctx context.Context) ([]NotificationSettings, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDepegSubscribersSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list depeg subscribers: %w", queryErr)
	}
	defer rows.Close()

	subscribers := make([]NotificationSettings, 0)
	for rows.Next() {
		settings, scanErr := scanSettings(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		subscribers = append(subscribers, settings)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subscribers, nil
}

// InsertLogEntry conditionally appends a notification-log row. The unique
// constraint on (user, type, subject, direction, bucket) makes concurrent
// inserts of the same alert resolve to a single row.
func (s *Store) InsertLogEntry(ctx context.Context, entry NotificationLogEntry) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	metadata, marshalErr := json.Marshal(entry.Metadata)
	if marshalErr != nil {
		return false, fmt.Errorf("marshal log metadata: %w", marshalErr)
	}

	cmdTag, execErr := pool.Exec(ctx, insertLogEntrySQL,
		entry.ID,
		entry.UserID,
		entry.AlertType,
		entry.Severity,
		entry.Subject,
		entry.Direction,
		entry.Message,
		metadata,
		entry.SentAt,
		entry.SentBucket,
	)
	if execErr != nil {
		return false, fmt.Errorf("insert log entry: %w", execErr)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// LatestByDedupKey returns the newest log entry for a dedup key.
func (s *Store) LatestByDedupKey(ctx context.Context, key DedupKey) (NotificationLogEntry, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return NotificationLogEntry{}, false, err
	}

	entry, scanErr := scanLogEntry(pool.QueryRow(ctx, latestByDedupKeySQL,
		key.UserID, key.AlertType, key.Subject, key.Direction))
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return NotificationLogEntry{}, false, nil
	}
	if scanErr != nil {
		return NotificationLogEntry{}, false, fmt.Errorf("latest by dedup key: %w", scanErr)
	}
	return entry, true, nil
}

// ListRecentLogEntries lists the most recent notification-log entries.
func (s *Store) ListRecentLogEntries(ctx context.Context, limit int) ([]NotificationLogEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentLogEntriesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent log entries: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]NotificationLogEntry, 0, limit)
	for rows.Next() {
		entry, scanErr := scanLogEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// DeleteLogEntriesBefore prunes historical log entries.
func (s *Store) DeleteLogEntriesBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteLogEntriesBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete log entries before: %w", execErr)
	}
	return nil
}

func scanSettings(row pgx.Row) (NotificationSettings, error) {
	var (
		settings NotificationSettings
		lowerStr string
		upperStr sql.NullString
	)

	if err := row.Scan(
		&settings.UserID,
		&settings.DepegEnabled,
		&settings.DepegSeverity,
		&lowerStr,
		&upperStr,
		&settings.DepegSymbols,
		&settings.APYEnabled,
		&settings.APYSeverity,
		&settings.APYDropThreshold,
		&settings.UpdatedAt,
	); err != nil {
		return NotificationSettings{}, err
	}

	lower, err := decimal.NewFromString(lowerStr)
	if err != nil {
		return NotificationSettings{}, fmt.Errorf("parse depeg lower threshold: %w", err)
	}
	settings.DepegLower = lower

	if upperStr.Valid {
		upper, err := decimal.NewFromString(upperStr.String)
		if err != nil {
			return NotificationSettings{}, fmt.Errorf("parse depeg upper threshold: %w", err)
		}
		settings.DepegUpper = &upper
	}

	return settings, nil
}

func scanLogEntry(row pgx.Row) (NotificationLogEntry, error) {
	var (
		entry    NotificationLogEntry
		metadata []byte
	)

	if err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.AlertType,
		&entry.Severity,
		&entry.Subject,
		&entry.Direction,
		&entry.Message,
		&metadata,
		&entry.SentAt,
		&entry.SentBucket,
		&entry.CreatedAt,
	); err != nil {
		return NotificationLogEntry{}, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return NotificationLogEntry{}, fmt.Errorf("unmarshal log metadata: %w", err)
		}
	}

	return entry, nil
}

var (
	_ SnapshotStore        = (*Store)(nil)
	_ PositionStore        = (*Store)(nil)
	_ APYSampleStore       = (*Store)(nil)
	_ SettingsStore        = (*Store)(nil)
	_ NotificationLogStore = (*Store)(nil)
)
