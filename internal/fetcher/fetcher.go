package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotUpdate is one valuation tuple produced by the position/discovery
// collaborator. IsReset marks external capital inflow/outflow; IsClosed marks
// a full exit, after which the position is archived.
type SnapshotUpdate struct {
	PositionID string          `json:"position_id"`
	UserID     string          `json:"user_id"`
	Protocol   string          `json:"protocol"`
	Asset      string          `json:"asset"`
	Timestamp  time.Time       `json:"timestamp"`
	Valuation  decimal.Decimal `json:"valuation"`
	IsReset    bool            `json:"is_reset"`
	IsClosed   bool            `json:"is_closed"`
}

// Quote is a stablecoin price as a ratio to its peg (1.0 = perfectly pegged).
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// SnapshotFeed retrieves pending valuation tuples from the discovery
// collaborator.
type SnapshotFeed interface {
	FetchUpdates(ctx context.Context) ([]SnapshotUpdate, error)
}

// QuoteFetcher retrieves current stablecoin price quotes.
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context) ([]Quote, error)
}
