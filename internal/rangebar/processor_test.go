package rangebar

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RangePull/internal/domain/models"
	"RangePull/pkg/fixedpoint"
)

func trade(id int64, price string, ts int64) *models.Trade {
	return &models.Trade{
		ID:        id,
		Symbol:    "BTCUSDT",
		Price:     fixedpoint.MustParse(price),
		Volume:    fixedpoint.MustParse("1"),
		Timestamp: ts,
		Side:      models.SideBuy,
	}
}

func newProcessor(t *testing.T, decibps int64) *Processor {
	t.Helper()
	p, err := New(Config{Symbol: "BTCUSDT", ThresholdDecibps: decibps})
	require.NoError(t, err)
	return p
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{Symbol: "BTCUSDT", ThresholdDecibps: 0})
	var ce *ConfigError
	require.Error(t, err)
	assert.True(t, errors.As(err, &ce))

	_, err = New(Config{Symbol: "BTCUSDT", ThresholdDecibps: MaxThresholdDecibps + 1})
	assert.Error(t, err)

	_, err = New(Config{Symbol: "", ThresholdDecibps: 250})
	assert.Error(t, err)
}

// Boundary inclusivity: open=100.00, 250 deci-bps gives a 0.25 distance,
// and a trade at exactly 100.25 closes the bar (>=, not >).
func TestBreachBoundaryInclusive(t *testing.T) {
	p := newProcessor(t, 250)

	bar, err := p.Process(trade(1, "100.00", 1_000))
	require.NoError(t, err)
	assert.Nil(t, bar)

	bar, err = p.Process(trade(2, "100.25", 2_000))
	require.NoError(t, err)
	require.NotNil(t, bar)
	assert.Equal(t, "100.25", bar.Close.String())
	assert.Equal(t, bar.High, bar.Close)
	assert.Equal(t, int64(2_000), bar.CloseTime)
}

// Trades [100.00, 100.25, 100.26]: bar closes at trade 2; trade 3 opens
// the next bar (never the same trade twice).
func TestBreachingTradeClosesAndNextOpens(t *testing.T) {
	p := newProcessor(t, 250)

	bar, err := p.Process(trade(1, "100.00", 1_000))
	require.NoError(t, err)
	require.Nil(t, bar)

	bar, err = p.Process(trade(2, "100.25", 2_000))
	require.NoError(t, err)
	require.NotNil(t, bar)
	assert.Equal(t, "100.00", bar.Open.String())
	assert.Equal(t, "100.25", bar.Close.String())
	assert.Equal(t, int64(2), bar.TradeCount)

	bar, err = p.Process(trade(3, "100.26", 3_000))
	require.NoError(t, err)
	assert.Nil(t, bar)
	assert.Equal(t, StateOpen, p.State())

	next := p.Flush()
	require.NotNil(t, next)
	assert.Equal(t, "100.26", next.Open.String())
	assert.Equal(t, int64(3_000), next.OpenTime)
	assert.Equal(t, int64(1), next.TradeCount)
}

func TestLowBreach(t *testing.T) {
	p := newProcessor(t, 250)

	_, err := p.Process(trade(1, "100.00", 1_000))
	require.NoError(t, err)

	bar, err := p.Process(trade(2, "99.70", 2_000))
	require.NoError(t, err)
	require.NotNil(t, bar)
	assert.Equal(t, bar.Low, bar.Close)
	assert.Equal(t, "99.7", bar.Close.String())
}

// A single-trade stream produces one bar with open==high==low==close and
// open_time==close_time.
func TestSingleTradeFlush(t *testing.T) {
	p := newProcessor(t, 250)

	_, err := p.Process(trade(1, "100.00", 5_000))
	require.NoError(t, err)

	bar := p.Flush()
	require.NotNil(t, bar)
	assert.Equal(t, bar.Open, bar.High)
	assert.Equal(t, bar.Open, bar.Low)
	assert.Equal(t, bar.Open, bar.Close)
	assert.Equal(t, bar.OpenTime, bar.CloseTime)
	assert.Equal(t, StateIdle, p.State())
	assert.Nil(t, p.Flush())
}

// Zero-duration bars are legal: breach at the open's timestamp.
func TestZeroDurationBar(t *testing.T) {
	p := newProcessor(t, 250)

	_, err := p.Process(trade(1, "100.00", 1_000))
	require.NoError(t, err)

	bar, err := p.Process(trade(2, "100.30", 1_000))
	require.NoError(t, err)
	require.NotNil(t, bar)
	assert.Equal(t, int64(0), bar.DurationMicros())
}

func TestAccumulation(t *testing.T) {
	p := newProcessor(t, 100) // 10 bps: a 0.10 distance from open=100.00

	buy := trade(1, "100.00", 1_000)
	buy.Volume = fixedpoint.MustParse("2")

	sell := trade(2, "100.02", 2_000)
	sell.Side = models.SideSell
	sell.Volume = fixedpoint.MustParse("3")

	_, err := p.Process(buy)
	require.NoError(t, err)
	bar, err := p.Process(sell)
	require.NoError(t, err)
	require.Nil(t, bar)

	breach := trade(3, "100.10", 3_000)
	bar, err = p.Process(breach)
	require.NoError(t, err)
	require.NotNil(t, bar)

	assert.Equal(t, "6", bar.Volume.String())
	assert.Equal(t, "3", bar.BuyVolume.String())
	assert.Equal(t, "3", bar.SellVolume.String())
	// turnover = 100.00*2 + 100.02*3 + 100.10*1
	assert.Equal(t, "600.16", bar.Turnover.String())
	assert.Equal(t, int64(3), bar.TradeCount)
}

func TestDecreasingTimestampFatal(t *testing.T) {
	p := newProcessor(t, 250)

	_, err := p.Process(trade(1, "100.00", 2_000))
	require.NoError(t, err)

	_, err = p.Process(trade(2, "100.01", 1_000))
	var se *SequenceError
	require.Error(t, err)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int64(2), se.TradeID)
	assert.Equal(t, "BTCUSDT", se.Symbol)
	assert.Equal(t, StateFatal, p.State())

	// Fatal is sticky: no further trades accepted.
	_, err = p.Process(trade(3, "100.02", 3_000))
	assert.Error(t, err)
}

func TestNonPositiveVolumeFatal(t *testing.T) {
	p := newProcessor(t, 250)
	bad := trade(1, "100.00", 1_000)
	bad.Volume = fixedpoint.Value{}
	_, err := p.Process(bad)
	assert.Error(t, err)
	assert.Equal(t, StateFatal, p.State())
}

func TestSymbolMismatchFatal(t *testing.T) {
	p := newProcessor(t, 250)
	bad := trade(1, "100.00", 1_000)
	bad.Symbol = "ETHUSDT"
	_, err := p.Process(bad)
	assert.Error(t, err)
	assert.Equal(t, StateFatal, p.State())
}

func TestOverflowFatal(t *testing.T) {
	p := newProcessor(t, MaxThresholdDecibps)

	huge := trade(1, "50000000000", 1_000)
	huge.Volume = fixedpoint.MustParse("50000000000")
	_, err := p.Process(huge)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fixedpoint.ErrOverflow))
	assert.Equal(t, StateFatal, p.State())
}

// Determinism: replaying the identical ordered trade list twice yields a
// byte-identical bar sequence.
func TestDeterministicReplay(t *testing.T) {
	prices := []string{"100.00", "100.10", "99.95", "100.25", "100.30", "100.02", "100.60", "99.80"}

	run := func() []byte {
		p := newProcessor(t, 250)
		var bars []*models.RangeBar
		for i, price := range prices {
			bar, err := p.Process(trade(int64(i+1), price, int64(i+1)*1_000))
			require.NoError(t, err)
			if bar != nil {
				bars = append(bars, bar)
			}
		}
		if last := p.Flush(); last != nil {
			bars = append(bars, last)
		}
		b, err := json.Marshal(bars)
		require.NoError(t, err)
		return b
	}

	assert.Equal(t, run(), run())
}

// For every emitted bar: breach side equals close, ordering invariants hold.
func TestBarInvariants(t *testing.T) {
	prices := []string{
		"100.00", "100.20", "100.25", "100.10", "99.90", "99.84",
		"99.95", "100.40", "100.20", "100.70", "100.41",
	}
	p := newProcessor(t, 250)

	var bars []*models.RangeBar
	for i, price := range prices {
		bar, err := p.Process(trade(int64(i+1), price, int64(i+1)*1_000))
		require.NoError(t, err)
		if bar != nil {
			bars = append(bars, bar)
		}
	}
	require.NotEmpty(t, bars)

	for i, bar := range bars {
		assert.True(t, bar.OpenTime <= bar.CloseTime)
		assert.True(t, bar.High.GreaterOrEqual(bar.Open))
		assert.True(t, bar.Low.LessOrEqual(bar.Open))
		// Breaching trade's price is the close: it must sit on the breached side.
		assert.True(t, bar.Close.Cmp(bar.High) == 0 || bar.Close.Cmp(bar.Low) == 0)
		if i > 0 {
			assert.True(t, bar.OpenTime > bars[i-1].CloseTime,
				"next bar's opening trade must be strictly after the previous close")
		}
	}
}

func TestLegacyAdapter(t *testing.T) {
	// 0.25% == 250 deci-bps; the adapter must route to the same machine.
	l, err := NewLegacy("BTCUSDT", 0.25)
	require.NoError(t, err)

	_, err = l.Process(trade(1, "100.00", 1_000))
	require.NoError(t, err)
	bar, err := l.Process(trade(2, "100.25", 2_000))
	require.NoError(t, err)
	require.NotNil(t, bar)
	assert.Equal(t, "100.25", bar.Close.String())

	_, err = NewLegacy("BTCUSDT", 0)
	assert.Error(t, err)
}
