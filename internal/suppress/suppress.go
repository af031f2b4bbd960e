// Package suppress gates detected breaches on the notification log so a
// value oscillating near a threshold does not spam alerts every sweep.
package suppress

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"yield-health-alerts/internal/detect"
	"yield-health-alerts/internal/storage"
)

// Severity-dependent cooldown windows. A breach sharing a dedup key with a
// log entry younger than its cooldown is swallowed.
var defaultCooldowns = map[detect.Severity]time.Duration{
	detect.SeverityUrgent:  15 * time.Minute,
	detect.SeverityHigh:    time.Hour,
	detect.SeverityDefault: 6 * time.Hour,
	detect.SeverityLow:     24 * time.Hour,
	detect.SeverityMin:     72 * time.Hour,
}

// Policy decides whether a detected breach produces a new alert. The
// decision is derived entirely from the append-only notification log, which
// keeps it idempotent under replay and safe for concurrent evaluators racing
// on the same user. Recovery is implicit: once a condition stops breaching,
// no entries accrue for its key, so the next crossing is gated only by the
// last real alert's cooldown.
type Policy struct {
	log       storage.NotificationLogStore
	cooldowns map[detect.Severity]time.Duration
	logger    zerolog.Logger
}

// NewPolicy builds a suppression policy. Overrides replace the default
// cooldown for the named severities; unknown severity names are ignored.
func NewPolicy(log storage.NotificationLogStore, overrides map[string]time.Duration, logger zerolog.Logger) *Policy {
	cooldowns := make(map[detect.Severity]time.Duration, len(defaultCooldowns))
	for severity, window := range defaultCooldowns {
		cooldowns[severity] = window
	}
	for name, window := range overrides {
		severity := detect.Severity(name)
		if _, known := defaultCooldowns[severity]; known && window > 0 {
			cooldowns[severity] = window
		}
	}

	return &Policy{
		log:       log,
		cooldowns: cooldowns,
		logger:    logger.With().Str("component", "suppression").Logger(),
	}
}

// Cooldown returns the window applied to a severity.
func (p *Policy) Cooldown(severity detect.Severity) time.Duration {
	if window, ok := p.cooldowns[severity]; ok {
		return window
	}
	return p.cooldowns[detect.SeverityDefault]
}

// Approve reports whether the breach should be dispatched at the given
// instant. It approves when no log entry exists for the dedup key or the
// most recent one is older than the severity's cooldown.
func (p *Policy) Approve(ctx context.Context, userID string, breach detect.Breach, now time.Time) (bool, error) {
	key := breach.DedupKey(userID)

	latest, found, err := p.log.LatestByDedupKey(ctx, key)
	if err != nil {
		return false, fmt.Errorf("lookup latest alert for dedup key: %w", err)
	}
	if !found {
		return true, nil
	}

	window := p.Cooldown(breach.Severity)
	if now.Sub(latest.SentAt) >= window {
		return true, nil
	}

	p.logger.Debug().
		Str("user_id", userID).
		Str("alert_type", string(breach.Type)).
		Str("subject", breach.Subject).
		Str("direction", string(breach.Direction)).
		Time("last_sent", latest.SentAt).
		Dur("cooldown", window).
		Msg("breach suppressed within cooldown")
	return false, nil
}
