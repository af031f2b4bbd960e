package storage

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")

	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("storage: not found")
)

// OutOfOrderError reports a snapshot append whose timestamp is not strictly
// newer than the latest recorded one. The append is rejected, never silently
// reordered; the caller must investigate clock or feed anomalies.
type OutOfOrderError struct {
	PositionID string
	Timestamp  time.Time
	Latest     time.Time
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("storage: snapshot for position %s at %s is not after latest %s",
		e.PositionID, e.Timestamp.UTC().Format(time.RFC3339), e.Latest.UTC().Format(time.RFC3339))
}
