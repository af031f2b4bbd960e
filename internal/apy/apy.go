// Package apy derives annualized returns from snapshot segments.
package apy

import (
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"yield-health-alerts/internal/storage"
)

const (
	// DefaultMinWindow is the minimum observed span before annualization is
	// considered numerically meaningful.
	DefaultMinWindow = time.Hour

	hoursPerYear = 365.25 * 24
)

// Internal reasons for treating a segment as insufficient. All of them
// surface to callers as an absence, never as an error or a crash.
var (
	errTooFewSamples   = errors.New("apy: segment has fewer than two snapshots")
	errWindowTooShort  = errors.New("apy: observed window below minimum")
	errDegenerateBasis = errors.New("apy: anchor valuation is not positive")
	errTotalLoss       = errors.New("apy: period return at or below -100%")
)

// Options tune the calculator.
type Options struct {
	// MinWindow overrides DefaultMinWindow when positive.
	MinWindow time.Duration
}

// Result is one annualized-return computation over a segment.
type Result struct {
	APY          float64
	PeriodReturn float64
	ElapsedYears float64
	Anchor       time.Time
	Latest       time.Time
}

// Compute annualizes the return over a position's current segment. The
// second return is false when the segment carries too little signal: fewer
// than two snapshots, a window shorter than the minimum, a non-positive
// anchor valuation, or a period return at or below -100%.
func Compute(segment []storage.Snapshot, opts Options) (Result, bool) {
	result, err := compute(segment, opts)
	if err != nil {
		return Result{}, false
	}
	return result, true
}

func compute(segment []storage.Snapshot, opts Options) (Result, error) {
	if len(segment) < 2 {
		return Result{}, errTooFewSamples
	}

	anchor := segment[0]
	latest := segment[len(segment)-1]

	minWindow := opts.MinWindow
	if minWindow <= 0 {
		minWindow = DefaultMinWindow
	}

	elapsed := latest.Timestamp.Sub(anchor.Timestamp)
	if elapsed < minWindow {
		return Result{}, errWindowTooShort
	}

	if !anchor.Valuation.IsPositive() {
		return Result{}, errDegenerateBasis
	}

	periodReturn, _ := latest.Valuation.Div(anchor.Valuation).
		Sub(decimal.NewFromInt(1)).Float64()
	if periodReturn <= -1 {
		return Result{}, errTotalLoss
	}

	elapsedYears := elapsed.Hours() / hoursPerYear

	// The same compounding form applies at every horizon above the minimum
	// window, so successive recomputations stay consistent as snapshots
	// accrue.
	apy := math.Pow(1+periodReturn, 1/elapsedYears) - 1

	return Result{
		APY:          apy,
		PeriodReturn: periodReturn,
		ElapsedYears: elapsedYears,
		Anchor:       anchor.Timestamp,
		Latest:       latest.Timestamp,
	}, nil
}
