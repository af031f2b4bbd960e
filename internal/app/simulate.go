package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"yield-health-alerts/internal/detect"
	"yield-health-alerts/internal/dispatch"
	"yield-health-alerts/internal/storage"
	"yield-health-alerts/internal/storage/memory"
	"yield-health-alerts/internal/suppress"
)

// Simulate runs a synthetic depeg evaluation end to end against in-memory
// stores. Nothing is persisted; delivery goes through the configured channel
// if one is enabled, otherwise the rendered alert is printed.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.UserID == "" {
		return errors.New("--user is required")
	}
	if opts.Symbol == "" {
		return errors.New("--symbol is required")
	}

	price, err := decimal.NewFromString(opts.Price)
	if err != nil {
		return fmt.Errorf("parse --price: %w", err)
	}

	lower := decimal.NewFromFloat(0.99)
	if opts.Lower != "" {
		lower, err = decimal.NewFromString(opts.Lower)
		if err != nil {
			return fmt.Errorf("parse --lower: %w", err)
		}
	}

	severity := detect.ParseSeverity(opts.Severity)

	settings := storage.NotificationSettings{
		UserID:        opts.UserID,
		DepegEnabled:  true,
		DepegSeverity: string(severity),
		DepegLower:    lower,
	}

	settingsStore := memory.NewSettingsStore()
	settingsStore.PutSettings(settings)

	breach, breached := detect.EvaluateDepeg(settings, opts.Symbol, price)
	if !breached {
		fmt.Fprintf(os.Stdout, "no breach: %s at %s holds above lower bound %s\n", opts.Symbol, price.String(), lower.String())
		return nil
	}

	logStore := memory.NewNotificationLogStore()
	policy := suppress.NewPolicy(logStore, a.Config.Alerting.Cooldowns, a.Logger)
	dispatcher := dispatch.New(logStore, a.newNotifier(), dispatch.Options{Bucket: a.Config.Alerting.DedupeSlot}, a.Logger)

	now := time.Now().UTC()
	approved, err := policy.Approve(ctx, opts.UserID, breach, now)
	if err != nil {
		return err
	}
	if !approved {
		fmt.Fprintln(os.Stdout, "breach detected but suppressed by cooldown")
		return nil
	}

	if err := dispatcher.Dispatch(ctx, opts.UserID, breach, now); err != nil {
		return err
	}

	entries, err := logStore.ListRecentLogEntries(ctx, 1)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("dispatch recorded no log entry")
	}

	entry := entries[0]
	fmt.Fprintf(os.Stdout, "dispatched %s alert (%s) for %s: %s\n", entry.AlertType, entry.Severity, entry.Subject, entry.Message)
	return nil
}
