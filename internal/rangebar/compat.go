package rangebar

import (
	"math"

	"RangePull/internal/domain/models"
)

// Legacy adapts the historical percent-threshold call shape onto the one
// canonical processor. It is a translation layer only; there is no second
// algorithm behind it.
type Legacy struct {
	p *Processor
}

// NewLegacy accepts a threshold expressed as a percentage (e.g. 0.25 for
// 0.25%) and converts it to deci-basis-points.
func NewLegacy(symbol string, thresholdPct float64) (*Legacy, error) {
	decibps := int64(math.Round(thresholdPct * 1_000))
	p, err := New(Config{Symbol: symbol, ThresholdDecibps: decibps})
	if err != nil {
		return nil, err
	}
	return &Legacy{p: p}, nil
}

// Process forwards to the canonical processor.
func (l *Legacy) Process(t *models.Trade) (*models.RangeBar, error) { return l.p.Process(t) }

// Flush forwards to the canonical processor.
func (l *Legacy) Flush() *models.RangeBar { return l.p.Flush() }

// Processor exposes the canonical processor behind the adapter.
func (l *Legacy) Processor() *Processor { return l.p }
