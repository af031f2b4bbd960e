package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position identifies a wallet's stake in a protocol. Created on first
// discovery, archived on full exit, never deleted while the stake exists.
type Position struct {
	ID         string
	UserID     string
	Protocol   string
	Asset      string
	Status     string
	CreatedAt  time.Time
	ArchivedAt *time.Time
}

// Position status values.
const (
	PositionActive   = "active"
	PositionArchived = "archived"
)

// Snapshot is one valuation observation for a position. IsReset marks an
// external capital inflow/outflow; return computation restarts there.
type Snapshot struct {
	PositionID string
	Timestamp  time.Time
	Valuation  decimal.Decimal
	IsReset    bool
	CreatedAt  time.Time
}

// APYSample is a persisted annualized-return computation for a position.
// The latest sample is the baseline for drop detection on the next sweep.
type APYSample struct {
	PositionID   string
	Bucket       time.Time
	APY          float64
	PeriodReturn float64
	CreatedAt    time.Time
}

// NotificationSettings is the per-user alerting read model. Owned and mutated
// by an external CRUD surface; read-only here.
type NotificationSettings struct {
	UserID           string
	DepegEnabled     bool
	DepegSeverity    string
	DepegLower       decimal.Decimal
	DepegUpper       *decimal.Decimal
	DepegSymbols     []string
	APYEnabled       bool
	APYSeverity      string
	APYDropThreshold float64
	UpdatedAt        time.Time
}

// WatchesSymbol reports whether depeg alerting applies to the given symbol.
// An empty filter means all symbols.
func (s NotificationSettings) WatchesSymbol(symbol string) bool {
	if len(s.DepegSymbols) == 0 {
		return true
	}
	for _, candidate := range s.DepegSymbols {
		if candidate == symbol {
			return true
		}
	}
	return false
}

// NotificationLogEntry is the immutable audit record of an emitted alert.
// The log doubles as the suppression source of truth; there is no separate
// suppression-state table.
type NotificationLogEntry struct {
	ID         string
	UserID     string
	AlertType  string
	Severity   string
	Subject    string
	Direction  string
	Message    string
	Metadata   map[string]any
	SentAt     time.Time
	SentBucket time.Time
	CreatedAt  time.Time
}

// DedupKey identifies "the same ongoing condition" for suppression purposes.
type DedupKey struct {
	UserID    string
	AlertType string
	Subject   string
	Direction string
}
