package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"yield-health-alerts/internal/storage"
)

func snap(positionID string, ts time.Time, valuation string, reset bool) storage.Snapshot {
	return storage.Snapshot{
		PositionID: positionID,
		Timestamp:  ts,
		Valuation:  decimal.RequireFromString(valuation),
		IsReset:    reset,
	}
}

func TestAppendSnapshotOrdering(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := store.AppendSnapshot(ctx, snap("pos-1", start, "1000", true)); err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	if err := store.AppendSnapshot(ctx, snap("pos-1", start.Add(time.Hour), "1001", false)); err != nil {
		t.Fatalf("ordered append failed: %v", err)
	}

	err := store.AppendSnapshot(ctx, snap("pos-1", start.Add(time.Hour), "1002", false))
	var outOfOrder *storage.OutOfOrderError
	if !errors.As(err, &outOfOrder) {
		t.Fatalf("equal timestamp should be rejected as out of order, got %v", err)
	}
	if !outOfOrder.Latest.Equal(start.Add(time.Hour)) {
		t.Fatalf("rejection should carry the latest timestamp, got %v", outOfOrder.Latest)
	}

	err = store.AppendSnapshot(ctx, snap("pos-1", start.Add(30*time.Minute), "1003", false))
	if !errors.As(err, &outOfOrder) {
		t.Fatalf("older timestamp should be rejected, got %v", err)
	}

	// Other positions are independent.
	if err := store.AppendSnapshot(ctx, snap("pos-2", start, "500", true)); err != nil {
		t.Fatalf("append to a second position failed: %v", err)
	}
}

func TestCurrentSegmentFollowsLastReset(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	appends := []storage.Snapshot{
		snap("pos-1", start, "1000", true),
		snap("pos-1", start.Add(1*time.Hour), "1001", false),
		snap("pos-1", start.Add(2*time.Hour), "2000", true),
		snap("pos-1", start.Add(3*time.Hour), "2002", false),
		snap("pos-1", start.Add(4*time.Hour), "2004", false),
	}
	for _, s := range appends {
		if err := store.AppendSnapshot(ctx, s); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	segment, err := store.CurrentSegment(ctx, "pos-1")
	if err != nil {
		t.Fatalf("current segment failed: %v", err)
	}
	if len(segment) != 3 {
		t.Fatalf("segment should start at the last reset, got %d snapshots", len(segment))
	}
	if !segment[0].IsReset || !segment[0].Timestamp.Equal(start.Add(2*time.Hour)) {
		t.Fatalf("segment should be anchored at the reset snapshot: %+v", segment[0])
	}
}

func TestCurrentSegmentWithoutReset(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := store.AppendSnapshot(ctx, snap("pos-1", start, "1000", false)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := store.AppendSnapshot(ctx, snap("pos-1", start.Add(time.Hour), "1001", false)); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	segment, err := store.CurrentSegment(ctx, "pos-1")
	if err != nil {
		t.Fatalf("current segment failed: %v", err)
	}
	if len(segment) != 2 {
		t.Fatalf("without a reset the segment is the whole history, got %d", len(segment))
	}

	empty, err := store.CurrentSegment(ctx, "missing")
	if err != nil {
		t.Fatalf("current segment failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("unknown position should yield an empty segment, got %d", len(empty))
	}
}
