package fetcher

import "context"

// StaticFeed serves a fixed batch of updates once. Used by the simulate
// command and by tests.
type StaticFeed struct {
	updates []SnapshotUpdate
	drained bool
}

// NewStaticFeed builds a one-shot feed over the given updates.
func NewStaticFeed(updates []SnapshotUpdate) *StaticFeed {
	return &StaticFeed{updates: updates}
}

// FetchUpdates returns the fixed batch on the first call, nothing after.
func (s *StaticFeed) FetchUpdates(context.Context) ([]SnapshotUpdate, error) {
	if s.drained {
		return nil, nil
	}
	s.drained = true
	return s.updates, nil
}

// StaticQuotes serves fixed quotes on every call.
type StaticQuotes struct {
	quotes []Quote
}

// NewStaticQuotes builds a fixed quote source.
func NewStaticQuotes(quotes []Quote) *StaticQuotes {
	return &StaticQuotes{quotes: quotes}
}

// FetchQuotes returns the configured quotes.
func (s *StaticQuotes) FetchQuotes(context.Context) ([]Quote, error) {
	return s.quotes, nil
}

var (
	_ SnapshotFeed = (*StaticFeed)(nil)
	_ QuoteFetcher = (*StaticQuotes)(nil)
)
