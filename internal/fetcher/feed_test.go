package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestHTTPFeedMissingConfig(t *testing.T) {
	feed := NewHTTPFeed(FeedOptions{}, zerolog.Nop())
	if _, err := feed.FetchUpdates(context.Background()); err == nil {
		t.Fatal("unconfigured base url should error")
	}
}

func TestHTTPFeedCursorAdvances(t *testing.T) {
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var sinceParams []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sinceParams = append(sinceParams, r.URL.Query().Get("since"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": []SnapshotUpdate{
				{
					PositionID: "pos-1",
					UserID:     "user-1",
					Protocol:   "aave",
					Asset:      "USDC",
					Timestamp:  first,
					Valuation:  decimal.RequireFromString("1000"),
					IsReset:    true,
				},
			},
		})
	}))
	defer srv.Close()

	feed := NewHTTPFeed(FeedOptions{BaseURL: srv.URL}, zerolog.Nop())

	updates, err := feed.FetchUpdates(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(updates) != 1 || updates[0].PositionID != "pos-1" {
		t.Fatalf("unexpected updates: %+v", updates)
	}

	if _, err := feed.FetchUpdates(context.Background()); err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}

	if sinceParams[0] != "" {
		t.Fatalf("first poll should have no cursor, got %q", sinceParams[0])
	}
	if sinceParams[1] != first.Format(time.RFC3339Nano) {
		t.Fatalf("second poll should carry the newest timestamp, got %q", sinceParams[1])
	}
}

func TestHTTPFeedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	feed := NewHTTPFeed(FeedOptions{BaseURL: srv.URL}, zerolog.Nop())
	if _, err := feed.FetchUpdates(context.Background()); err == nil {
		t.Fatal("5xx should surface as an error")
	}
}

func TestHTTPQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbols"); got != "USDT,USDC" {
			t.Fatalf("symbols query mismatch: %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"quotes": []Quote{
				{Symbol: "USDT", Price: decimal.RequireFromString("0.9992")},
				{Symbol: "USDC", Price: decimal.RequireFromString("1.0001")},
			},
		})
	}))
	defer srv.Close()

	quotes := NewHTTPQuotes(QuoteOptions{BaseURL: srv.URL, Symbols: []string{"USDT", "USDC"}}, zerolog.Nop())
	result, err := quotes.FetchQuotes(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(result) != 2 || result[0].Symbol != "USDT" {
		t.Fatalf("unexpected quotes: %+v", result)
	}
}

func TestHTTPQuotesRejectsNegativePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"quotes": []Quote{{Symbol: "USDT", Price: decimal.RequireFromString("-1")}},
		})
	}))
	defer srv.Close()

	quotes := NewHTTPQuotes(QuoteOptions{BaseURL: srv.URL, Symbols: []string{"USDT"}}, zerolog.Nop())
	if _, err := quotes.FetchQuotes(context.Background()); err == nil {
		t.Fatal("negative price should be rejected")
	}
}

func TestStaticFeedDrainsOnce(t *testing.T) {
	feed := NewStaticFeed([]SnapshotUpdate{{PositionID: "pos-1"}})

	updates, err := feed.FetchUpdates(context.Background())
	if err != nil || len(updates) != 1 {
		t.Fatalf("first fetch should return the batch: %v %v", updates, err)
	}

	updates, err = feed.FetchUpdates(context.Background())
	if err != nil || len(updates) != 0 {
		t.Fatalf("second fetch should be empty: %v %v", updates, err)
	}
}
