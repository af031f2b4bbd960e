// Package dispatch turns approved breaches into persisted, delivered alerts.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"yield-health-alerts/internal/alerting"
	"yield-health-alerts/internal/detect"
	"yield-health-alerts/internal/storage"
)

// DefaultBucket is the coarse time bucket backing the idempotent log insert.
const DefaultBucket = time.Minute

var decimalHundred = decimal.NewFromInt(100)

// Options tune the dispatcher.
type Options struct {
	// Bucket overrides DefaultBucket when positive.
	Bucket time.Duration
}

// Dispatcher formats, persists, and hands off alerts. The log write is the
// durability boundary: it happens before the external channel is invoked, so
// a crash after logging but before delivery means a missed notification, not
// a duplicate.
type Dispatcher struct {
	log      storage.NotificationLogStore
	notifier alerting.Notifier
	bucket   time.Duration
	logger   zerolog.Logger
}

// New constructs a dispatcher. The notifier may be nil, in which case alerts
// are persisted but not delivered anywhere.
func New(log storage.NotificationLogStore, notifier alerting.Notifier, opts Options, logger zerolog.Logger) *Dispatcher {
	bucket := opts.Bucket
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	return &Dispatcher{
		log:      log,
		notifier: notifier,
		bucket:   bucket,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch persists one notification-log entry for the breach and then
// invokes the delivery transport. The conditional insert keyed on (user,
// type, subject, direction, sent bucket) means two concurrent evaluators
// approving the same breach persist at most one row; the loser skips
// delivery silently. Delivery failures are logged, never rolled back.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, breach detect.Breach, now time.Time) error {
	entry := storage.NotificationLogEntry{
		ID:         ulid.Make().String(),
		UserID:     userID,
		AlertType:  string(breach.Type),
		Severity:   string(breach.Severity),
		Subject:    breach.Subject,
		Direction:  string(breach.Direction),
		Message:    renderMessage(breach),
		Metadata:   buildMetadata(breach),
		SentAt:     now,
		SentBucket: now.Truncate(d.bucket),
	}

	inserted, err := d.log.InsertLogEntry(ctx, entry)
	if err != nil {
		return fmt.Errorf("persist notification log entry: %w", err)
	}
	if !inserted {
		d.logger.Debug().
			Str("user_id", userID).
			Str("alert_type", entry.AlertType).
			Str("subject", entry.Subject).
			Msg("concurrent dispatch lost the insert race, skipping delivery")
		return nil
	}

	if d.notifier == nil {
		return nil
	}

	alert := alerting.Alert{
		UserID:   userID,
		Type:     entry.AlertType,
		Severity: entry.Severity,
		Title:    renderTitle(breach),
		Message:  entry.Message,
		Metadata: entry.Metadata,
	}
	if err := d.notifier.Notify(ctx, alert); err != nil {
		// Under-notification is the accepted failure mode; the log row stays.
		d.logger.Error().Err(err).
			Str("user_id", userID).
			Str("alert_type", entry.AlertType).
			Str("subject", entry.Subject).
			Msg("alert delivery failed")
	}

	return nil
}

func renderTitle(breach detect.Breach) string {
	switch breach.Type {
	case detect.TypeDepeg:
		return fmt.Sprintf("Depeg alert: %s %s peg", breach.Subject, breach.Direction)
	case detect.TypeAPYDrop:
		return fmt.Sprintf("APY drop alert: position %s", breach.Subject)
	default:
		return fmt.Sprintf("Alert: %s %s", breach.Type, breach.Subject)
	}
}

func renderMessage(breach detect.Breach) string {
	switch breach.Type {
	case detect.TypeDepeg:
		return fmt.Sprintf("%s is trading at %s, %s the configured bound of %s.",
			breach.Subject, breach.Observed.StringFixed(4), breach.Direction, breach.Threshold.StringFixed(4))
	case detect.TypeAPYDrop:
		return fmt.Sprintf("APY for position %s fell from %s%% to %s%%, exceeding the configured drop of %s points.",
			breach.Subject,
			breach.Baseline.Mul(decimalHundred).StringFixed(2),
			breach.Observed.Mul(decimalHundred).StringFixed(2),
			breach.Threshold.StringFixed(4))
	default:
		return fmt.Sprintf("%s breached: observed %s against threshold %s.",
			breach.Subject, breach.Observed.String(), breach.Threshold.String())
	}
}

func buildMetadata(breach detect.Breach) map[string]any {
	metadata := map[string]any{
		"subject":   breach.Subject,
		"direction": string(breach.Direction),
		"observed":  breach.Observed.String(),
		"threshold": breach.Threshold.String(),
	}
	if breach.PositionID != "" {
		metadata["position_id"] = breach.PositionID
	}
	if breach.Type == detect.TypeAPYDrop {
		metadata["previous"] = breach.Baseline.String()
	}
	return metadata
}
