// Package indicator provides rolling technical indicators over completed
// range bars. Every indicator updates in O(1) per bar with memory bounded
// by its period, independent of stream length.
//
// The set of kinds is closed and enumerated; an indicator is selected at
// construction time, never via runtime plugin loading. Indicator values
// are advisory outputs for consumers, so they use float64 via the bars'
// display conversion; they never feed back into bar-closing decisions.
package indicator

import (
	"fmt"

	"RangePull/internal/domain/models"
)

// Kind enumerates the supported indicator variants.
type Kind string

const (
	KindSMA      Kind = "sma"
	KindEMA      Kind = "ema"
	KindRSI      Kind = "rsi"
	KindMomentum Kind = "momentum"
)

// Indicator is the fixed interface every variant conforms to.
type Indicator interface {
	// Name returns the indicator name (e.g. "sma_20").
	Name() string

	// Update feeds a completed bar and recalculates.
	Update(bar *models.RangeBar)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough bars have been accumulated.
	Ready() bool
}

// New constructs an indicator of the given kind and period.
func New(kind Kind, period int) (Indicator, error) {
	if period <= 0 {
		return nil, fmt.Errorf("indicator %s: period must be positive, got %d", kind, period)
	}
	switch kind {
	case KindSMA:
		return NewSMA(period), nil
	case KindEMA:
		return NewEMA(period), nil
	case KindRSI:
		return NewRSI(period), nil
	case KindMomentum:
		return NewMomentum(period), nil
	default:
		return nil, fmt.Errorf("unknown indicator kind %q", kind)
	}
}
