// Package detect evaluates depeg and APY-drop conditions against per-user
// thresholds. Both evaluators are stateless: they see only the current
// observation plus settings and never touch the notification log.
package detect

import (
	"github.com/shopspring/decimal"

	"yield-health-alerts/internal/storage"
)

// AlertType discriminates breach kinds.
type AlertType string

const (
	TypeDepeg   AlertType = "depeg"
	TypeAPYDrop AlertType = "apy_drop"
)

// Severity ranks alerts and scales the suppression cooldown.
type Severity string

const (
	SeverityUrgent  Severity = "urgent"
	SeverityHigh    Severity = "high"
	SeverityDefault Severity = "default"
	SeverityLow     Severity = "low"
	SeverityMin     Severity = "min"
)

// ParseSeverity maps a stored severity string to a known level, falling back
// to the default level for unknown or empty values.
func ParseSeverity(value string) Severity {
	switch Severity(value) {
	case SeverityUrgent, SeverityHigh, SeverityDefault, SeverityLow, SeverityMin:
		return Severity(value)
	default:
		return SeverityDefault
	}
}

// Direction qualifies which side of a threshold was crossed. It is part of
// the dedup key: a price below the lower bound and one above the upper bound
// are distinct ongoing conditions.
type Direction string

const (
	DirectionBelow Direction = "below"
	DirectionAbove Direction = "above"
	DirectionDown  Direction = "down"
)

// Breach describes one detected threshold crossing.
type Breach struct {
	Type       AlertType
	Subject    string
	Severity   Severity
	Direction  Direction
	Observed   decimal.Decimal
	Threshold  decimal.Decimal
	Baseline   decimal.Decimal
	PositionID string
}

// DedupKey returns the tuple identifying this breach's ongoing condition for
// a given user.
func (b Breach) DedupKey(userID string) storage.DedupKey {
	return storage.DedupKey{
		UserID:    userID,
		AlertType: string(b.Type),
		Subject:   b.Subject,
		Direction: string(b.Direction),
	}
}

// EvaluateDepeg checks a stablecoin price (a ratio to its peg) against a
// user's depeg settings. Disabled, filtered-out, or malformed settings mean
// no evaluation; a non-positive lower threshold counts as malformed.
func EvaluateDepeg(settings storage.NotificationSettings, symbol string, price decimal.Decimal) (Breach, bool) {
	if !settings.DepegEnabled {
		return Breach{}, false
	}
	if !settings.WatchesSymbol(symbol) {
		return Breach{}, false
	}
	if !settings.DepegLower.IsPositive() {
		return Breach{}, false
	}

	severity := ParseSeverity(settings.DepegSeverity)

	if price.LessThan(settings.DepegLower) {
		return Breach{
			Type:      TypeDepeg,
			Subject:   symbol,
			Severity:  severity,
			Direction: DirectionBelow,
			Observed:  price,
			Threshold: settings.DepegLower,
		}, true
	}

	if settings.DepegUpper != nil && price.GreaterThan(*settings.DepegUpper) {
		return Breach{
			Type:      TypeDepeg,
			Subject:   symbol,
			Severity:  severity,
			Direction: DirectionAbove,
			Observed:  price,
			Threshold: *settings.DepegUpper,
		}, true
	}

	return Breach{}, false
}

// EvaluateAPYDrop compares a position's newly computed APY against the
// previous baseline. The previous value is external state supplied by the
// caller; a nil baseline (first-ever computation) never triggers. The
// threshold is an absolute drop, not a relative one.
func EvaluateAPYDrop(settings storage.NotificationSettings, positionID string, previous *float64, current float64) (Breach, bool) {
	if !settings.APYEnabled {
		return Breach{}, false
	}
	if settings.APYDropThreshold <= 0 {
		return Breach{}, false
	}
	if previous == nil {
		return Breach{}, false
	}

	drop := *previous - current
	if drop < settings.APYDropThreshold {
		return Breach{}, false
	}

	return Breach{
		Type:       TypeAPYDrop,
		Subject:    positionID,
		Severity:   ParseSeverity(settings.APYSeverity),
		Direction:  DirectionDown,
		Observed:   decimal.NewFromFloat(current),
		Threshold:  decimal.NewFromFloat(settings.APYDropThreshold),
		Baseline:   decimal.NewFromFloat(*previous),
		PositionID: positionID,
	}, true
}
