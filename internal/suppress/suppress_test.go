package suppress

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"yield-health-alerts/internal/detect"
	"yield-health-alerts/internal/storage"
	"yield-health-alerts/internal/storage/memory"
)

func depegBreach(severity detect.Severity) detect.Breach {
	return detect.Breach{
		Type:      detect.TypeDepeg,
		Subject:   "USDC",
		Severity:  severity,
		Direction: detect.DirectionBelow,
		Observed:  decimal.RequireFromString("0.985"),
		Threshold: decimal.RequireFromString("0.99"),
	}
}

func logEntryFor(breach detect.Breach, userID string, sentAt time.Time) storage.NotificationLogEntry {
	return storage.NotificationLogEntry{
		ID:         "entry-" + sentAt.Format(time.RFC3339Nano),
		UserID:     userID,
		AlertType:  string(breach.Type),
		Severity:   string(breach.Severity),
		Subject:    breach.Subject,
		Direction:  string(breach.Direction),
		SentAt:     sentAt,
		SentBucket: sentAt.Truncate(time.Minute),
	}
}

func TestApproveFirstBreach(t *testing.T) {
	policy := NewPolicy(memory.NewNotificationLogStore(), nil, zerolog.Nop())

	approved, err := policy.Approve(context.Background(), "user-1", depegBreach(detect.SeverityHigh), time.Now().UTC())
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if !approved {
		t.Fatal("a breach with no prior log entry should be approved")
	}
}

func TestSuppressWithinCooldown(t *testing.T) {
	log := memory.NewNotificationLogStore()
	policy := NewPolicy(log, nil, zerolog.Nop())
	breach := depegBreach(detect.SeverityHigh)

	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := log.InsertLogEntry(context.Background(), logEntryFor(breach, "user-1", sent)); err != nil {
		t.Fatalf("seed log entry: %v", err)
	}

	approved, err := policy.Approve(context.Background(), "user-1", breach, sent.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved {
		t.Fatal("a breach 30m after a high-severity alert should be suppressed")
	}

	approved, err = policy.Approve(context.Background(), "user-1", breach, sent.Add(time.Hour))
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if !approved {
		t.Fatal("a breach exactly at the cooldown boundary should pass")
	}
}

func TestCooldownScalesWithSeverity(t *testing.T) {
	log := memory.NewNotificationLogStore()
	policy := NewPolicy(log, nil, zerolog.Nop())
	breach := depegBreach(detect.SeverityUrgent)

	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := log.InsertLogEntry(context.Background(), logEntryFor(breach, "user-1", sent)); err != nil {
		t.Fatalf("seed log entry: %v", err)
	}

	approved, err := policy.Approve(context.Background(), "user-1", breach, sent.Add(20*time.Minute))
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if !approved {
		t.Fatal("urgent cooldown is 15m, 20m later should pass")
	}
}

func TestCooldownOverrides(t *testing.T) {
	overrides := map[string]time.Duration{
		"high":    5 * time.Minute,
		"bogus":   time.Minute,
		"default": -time.Hour,
	}
	policy := NewPolicy(memory.NewNotificationLogStore(), overrides, zerolog.Nop())

	if got := policy.Cooldown(detect.SeverityHigh); got != 5*time.Minute {
		t.Fatalf("override should replace the high cooldown, got %v", got)
	}
	if got := policy.Cooldown(detect.SeverityDefault); got != 6*time.Hour {
		t.Fatalf("non-positive overrides should be ignored, got %v", got)
	}
	if got := policy.Cooldown(detect.SeverityUrgent); got != 15*time.Minute {
		t.Fatalf("untouched severities keep defaults, got %v", got)
	}
}

func TestDistinctKeysDoNotSuppressEachOther(t *testing.T) {
	log := memory.NewNotificationLogStore()
	policy := NewPolicy(log, nil, zerolog.Nop())
	breach := depegBreach(detect.SeverityHigh)

	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := log.InsertLogEntry(context.Background(), logEntryFor(breach, "user-1", sent)); err != nil {
		t.Fatalf("seed log entry: %v", err)
	}

	other := breach
	other.Subject = "DAI"
	approved, err := policy.Approve(context.Background(), "user-1", other, sent.Add(time.Minute))
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if !approved {
		t.Fatal("a different subject is a different condition and should pass")
	}

	approved, err = policy.Approve(context.Background(), "user-2", breach, sent.Add(time.Minute))
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if !approved {
		t.Fatal("a different user should pass")
	}
}
