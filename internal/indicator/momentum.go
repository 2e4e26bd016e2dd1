package indicator

import (
	"fmt"

	"RangePull/internal/domain/models"
)

// Momentum is the close-over-close difference against the bar N periods
// back, kept in a circular buffer of exactly period+1 closes.
type Momentum struct {
	period  int
	buf     []float64
	idx     int
	count   int
	current float64
}

// NewMomentum creates a momentum oscillator with the given lookback.
func NewMomentum(period int) *Momentum {
	return &Momentum{
		period: period,
		buf:    make([]float64, period+1),
	}
}

func (m *Momentum) Name() string { return fmt.Sprintf("momentum_%d", m.period) }

func (m *Momentum) Update(bar *models.RangeBar) {
	price := bar.Close.Float64()
	m.buf[m.idx] = price
	m.idx = (m.idx + 1) % len(m.buf)
	m.count++

	if m.count > m.period {
		// After advancing, idx points at the close from period bars ago.
		m.current = price - m.buf[m.idx]
	}
}

func (m *Momentum) Value() float64 { return m.current }
func (m *Momentum) Ready() bool    { return m.count > m.period }
