package detect

import (
	"testing"

	"github.com/shopspring/decimal"

	"yield-health-alerts/internal/storage"
)

func depegSettings() storage.NotificationSettings {
	return storage.NotificationSettings{
		UserID:        "user-1",
		DepegEnabled:  true,
		DepegSeverity: "high",
		DepegLower:    decimal.RequireFromString("0.99"),
	}
}

func TestEvaluateDepegBelowLower(t *testing.T) {
	breach, ok := EvaluateDepeg(depegSettings(), "USDC", decimal.RequireFromString("0.985"))
	if !ok {
		t.Fatal("price below lower bound should breach")
	}
	if breach.Type != TypeDepeg || breach.Direction != DirectionBelow {
		t.Fatalf("unexpected breach shape: %+v", breach)
	}
	if breach.Subject != "USDC" || breach.Severity != SeverityHigh {
		t.Fatalf("subject/severity should carry over: %+v", breach)
	}
}

func TestEvaluateDepegWithinBounds(t *testing.T) {
	if _, ok := EvaluateDepeg(depegSettings(), "USDC", decimal.RequireFromString("0.995")); ok {
		t.Fatal("price above lower bound should not breach")
	}
}

func TestEvaluateDepegUpperOptional(t *testing.T) {
	settings := depegSettings()
	if _, ok := EvaluateDepeg(settings, "USDC", decimal.RequireFromString("1.10")); ok {
		t.Fatal("without an upper bound high prices should pass")
	}

	upper := decimal.RequireFromString("1.01")
	settings.DepegUpper = &upper
	breach, ok := EvaluateDepeg(settings, "USDC", decimal.RequireFromString("1.10"))
	if !ok {
		t.Fatal("price above the configured upper bound should breach")
	}
	if breach.Direction != DirectionAbove {
		t.Fatalf("direction should be above, got %s", breach.Direction)
	}
}

func TestEvaluateDepegSymbolFilter(t *testing.T) {
	settings := depegSettings()
	settings.DepegSymbols = []string{"DAI"}
	if _, ok := EvaluateDepeg(settings, "USDC", decimal.RequireFromString("0.90")); ok {
		t.Fatal("symbols outside the filter should never breach")
	}
	if _, ok := EvaluateDepeg(settings, "DAI", decimal.RequireFromString("0.90")); !ok {
		t.Fatal("filtered-in symbol should breach")
	}
}

func TestEvaluateDepegDisabledOrMalformed(t *testing.T) {
	settings := depegSettings()
	settings.DepegEnabled = false
	if _, ok := EvaluateDepeg(settings, "USDC", decimal.RequireFromString("0.50")); ok {
		t.Fatal("disabled settings should never breach")
	}

	settings = depegSettings()
	settings.DepegLower = decimal.Zero
	if _, ok := EvaluateDepeg(settings, "USDC", decimal.RequireFromString("0.50")); ok {
		t.Fatal("non-positive lower bound counts as malformed")
	}
}

func TestEvaluateAPYDrop(t *testing.T) {
	settings := storage.NotificationSettings{
		UserID:           "user-1",
		APYEnabled:       true,
		APYSeverity:      "urgent",
		APYDropThreshold: 0.02,
	}

	previous := 0.10
	breach, ok := EvaluateAPYDrop(settings, "pos-1", &previous, 0.05)
	if !ok {
		t.Fatal("a five-point drop over a two-point threshold should breach")
	}
	if breach.Type != TypeAPYDrop || breach.Direction != DirectionDown {
		t.Fatalf("unexpected breach shape: %+v", breach)
	}
	if breach.PositionID != "pos-1" || breach.Severity != SeverityUrgent {
		t.Fatalf("position/severity should carry over: %+v", breach)
	}

	if _, ok := EvaluateAPYDrop(settings, "pos-1", &previous, 0.09); ok {
		t.Fatal("a drop below the threshold should not breach")
	}

	if _, ok := EvaluateAPYDrop(settings, "pos-1", nil, 0.01); ok {
		t.Fatal("first-ever computation has no baseline and cannot breach")
	}

	settings.APYEnabled = false
	if _, ok := EvaluateAPYDrop(settings, "pos-1", &previous, 0.01); ok {
		t.Fatal("disabled settings should never breach")
	}
}

func TestParseSeverityFallback(t *testing.T) {
	if got := ParseSeverity("urgent"); got != SeverityUrgent {
		t.Fatalf("known severity should round-trip, got %s", got)
	}
	if got := ParseSeverity("catastrophic"); got != SeverityDefault {
		t.Fatalf("unknown severity should fall back to default, got %s", got)
	}
	if got := ParseSeverity(""); got != SeverityDefault {
		t.Fatalf("empty severity should fall back to default, got %s", got)
	}
}

func TestDedupKeySeparatesDirections(t *testing.T) {
	below := Breach{Type: TypeDepeg, Subject: "USDC", Direction: DirectionBelow}
	above := Breach{Type: TypeDepeg, Subject: "USDC", Direction: DirectionAbove}
	if below.DedupKey("user-1") == above.DedupKey("user-1") {
		t.Fatal("below and above are distinct ongoing conditions")
	}
}
