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
	"time"

	"github.com/rs/zerolog"
)

const quotesPath = "/v1/quotes"

// QuoteOptions parameterise the HTTP quote source.
type QuoteOptions struct {
	BaseURL   string
	Symbols   []string
	Timeout   time.Duration
	UserAgent string
}

// HTTPQuotes fetches stablecoin peg-ratio quotes from an HTTP price API.
type HTTPQuotes struct {
	opts    QuoteOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewHTTPQuotes constructs an HTTP quote source.
func NewHTTPQuotes(opts QuoteOptions, logger zerolog.Logger) *HTTPQuotes {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPQuotes{
		opts:    opts,
		logger:  logger.With().Str("component", "quote_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// FetchQuotes retrieves current quotes for the configured symbols.
func (q *HTTPQuotes) FetchQuotes(ctx context.Context) ([]Quote, error) {
	if q.baseURL == "" {
		return nil, errors.New("quotes base url not configured")
	}
	if len(q.opts.Symbols) == 0 {
		return nil, errors.New("no quote symbols configured")
	}

	endpoint := q.baseURL + quotesPath + "?symbols=" + url.QueryEscape(strings.Join(q.opts.Symbols, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create quotes request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(q.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read quotes response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body struct {
		Quotes []Quote `json:"quotes"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode quotes response: %w", err)
	}

	for _, quote := range body.Quotes {
		if quote.Price.IsNegative() {
			return nil, fmt.Errorf("negative price for %s", quote.Symbol)
		}
	}

	return body.Quotes, nil
}

var _ QuoteFetcher = (*HTTPQuotes)(nil)
