package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const feedUpdatesPath = "/v1/positions/updates"

// FeedOptions parameterise the HTTP snapshot feed.
type FeedOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// HTTPFeed polls the discovery collaborator for valuation tuples. It keeps a
// cursor at the newest timestamp seen so each poll returns only fresh tuples.
type HTTPFeed struct {
	opts    FeedOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string

	mu    sync.Mutex
	since time.Time
}

// NewHTTPFeed constructs a polling snapshot feed.
func NewHTTPFeed(opts FeedOptions, logger zerolog.Logger) *HTTPFeed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPFeed{
		opts:    opts,
		logger:  logger.With().Str("component", "snapshot_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// FetchUpdates retrieves valuation tuples newer than the feed cursor.
func (f *HTTPFeed) FetchUpdates(ctx context.Context) ([]SnapshotUpdate, error) {
	if f.baseURL == "" {
		return nil, errors.New("feed base url not configured")
	}

	f.mu.Lock()
	since := f.since
	f.mu.Unlock()

	endpoint := f.baseURL + feedUpdatesPath
	if !since.IsZero() {
		endpoint += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll snapshot feed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot feed error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body struct {
		Updates []SnapshotUpdate `json:"updates"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}

	newest := since
	for _, update := range body.Updates {
		if update.Timestamp.After(newest) {
			newest = update.Timestamp
		}
	}

	f.mu.Lock()
	if newest.After(f.since) {
		f.since = newest
	}
	f.mu.Unlock()

	return body.Updates, nil
}

var _ SnapshotFeed = (*HTTPFeed)(nil)
