package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RangePull/internal/domain/models"
	"RangePull/internal/indicator"
	"RangePull/pkg/fixedpoint"
	"RangePull/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordTradeIn(string)            {}
func (nopMetrics) RecordBarEmitted(string, string) {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)   {}
func (nopMetrics) RecordCircuitState(string, int)  {}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, testLogger(t), nopMetrics{})
	require.NoError(t, err)
	return e
}

func trade(symbol string, id, ts int64, price, volume string, side models.Side) *models.Trade {
	return &models.Trade{
		ID:        id,
		Symbol:    symbol,
		Price:     fixedpoint.MustParse(price),
		Volume:    fixedpoint.MustParse(volume),
		Timestamp: ts,
		Side:      side,
	}
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{ThresholdDecibps: 0}.Validate())
	assert.Error(t, Config{ThresholdDecibps: 250, Policy: "spill"}.Validate())
	assert.Error(t, Config{
		ThresholdDecibps: 250,
		Indicators:       []IndicatorSpec{{Kind: "macd", Period: 5}},
	}.Validate())
	assert.NoError(t, Config{
		ThresholdDecibps: 250,
		Indicators:       []IndicatorSpec{{Kind: indicator.KindSMA, Period: 3}},
		Policy:           PolicyDropOldest,
	}.Validate())
}

func TestEngineEmitsBarOnBreach(t *testing.T) {
	e := newTestEngine(t, Config{ThresholdDecibps: 250})
	ctx := context.Background()

	require.NoError(t, e.ProcessTrade(ctx, trade("BTCUSDT", 1, 1_000, "100.00", "1", models.SideBuy)))
	require.NoError(t, e.ProcessTrade(ctx, trade("BTCUSDT", 2, 2_000, "100.25", "2", models.SideSell)))

	select {
	case bar := <-e.Bars():
		assert.Equal(t, "BTCUSDT", bar.Symbol)
		assert.Equal(t, "100.25", bar.Close.String())
		assert.Equal(t, int64(2), bar.TradeCount)
	default:
		t.Fatal("expected a completed bar")
	}

	// The breaching trade closed the bar; nothing remains open.
	assert.Empty(t, e.Drain(ctx))
}

func TestEngineRunFlushesAndCloses(t *testing.T) {
	e := newTestEngine(t, Config{ThresholdDecibps: 250})
	trades := make(chan *models.Trade, 3)
	trades <- trade("BTCUSDT", 1, 1_000, "100.00", "1", models.SideBuy)
	trades <- trade("BTCUSDT", 2, 2_000, "100.25", "1", models.SideBuy)
	trades <- trade("BTCUSDT", 3, 3_000, "100.30", "1", models.SideSell)
	close(trades)

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), trades) }()

	var bars []*models.RangeBar
	for bar := range e.Bars() {
		bars = append(bars, bar)
	}
	require.NoError(t, <-done)

	require.Len(t, bars, 2)
	// Breach-closed bar, then the drained partial.
	assert.Equal(t, "100.25", bars[0].Close.String())
	assert.Equal(t, "100.30", bars[1].Close.String())
	assert.Equal(t, "100.30", bars[1].Open.String())
}

func TestStatsSnapshotsProcessorState(t *testing.T) {
	e := newTestEngine(t, Config{ThresholdDecibps: 250})
	ctx := context.Background()

	require.NoError(t, e.ProcessTrade(ctx, trade("BTCUSDT", 1, 1_000, "100.00", "1", models.SideBuy)))
	stats := e.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "open", stats[0].ProcessorState)

	// Stats readers race the driver goroutine; they must only ever see
	// the mutex-guarded snapshot, never the live processor.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(2); i <= 500; i++ {
			_ = e.ProcessTrade(ctx, trade("BTCUSDT", i, i*1_000, "100.05", "1", models.SideBuy))
		}
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
			_ = e.Stats()
		}
	}

	e.Drain(ctx)
	final := e.Stats()
	require.Len(t, final, 1)
	assert.Equal(t, "idle", final[0].ProcessorState)
}

func TestEngineCloseBarsRefusesLateEmit(t *testing.T) {
	e := newTestEngine(t, Config{ThresholdDecibps: 250})
	ctx := context.Background()

	require.NoError(t, e.ProcessTrade(ctx, trade("BTCUSDT", 1, 1_000, "100.00", "1", models.SideBuy)))
	e.CloseBars()
	e.CloseBars() // idempotent

	// A breach after close is refused instead of panicking on the channel.
	err := e.ProcessTrade(ctx, trade("BTCUSDT", 2, 2_000, "100.25", "1", models.SideBuy))
	require.Error(t, err)

	_, ok := <-e.Bars()
	assert.False(t, ok)
}

func TestEngineRejectedTradeThenRecovery(t *testing.T) {
	e := newTestEngine(t, Config{ThresholdDecibps: 250})
	ctx := context.Background()

	require.NoError(t, e.ProcessTrade(ctx, trade("BTCUSDT", 1, 5_000, "100.00", "1", models.SideBuy)))

	// Decreasing timestamp is rejected and poisons the processor.
	err := e.ProcessTrade(ctx, trade("BTCUSDT", 2, 4_000, "100.10", "1", models.SideBuy))
	require.Error(t, err)

	// The session got a fresh processor: the next trade opens a new bar.
	require.NoError(t, e.ProcessTrade(ctx, trade("BTCUSDT", 3, 6_000, "101.00", "1", models.SideBuy)))

	stats := e.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "open", stats[0].ProcessorState)
	assert.Equal(t, int64(3), stats[0].TradesSeen)
	assert.NotEmpty(t, stats[0].LastError)
}

func TestEngineCircuitOpensOnSustainedErrors(t *testing.T) {
	e := newTestEngine(t, Config{
		ThresholdDecibps: 250,
		Breaker:          BreakerConfig{WindowSize: 10, MinSamples: 3, ErrorRate: 0.9, Cooldown: time.Hour},
	})
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		err := e.ProcessTrade(ctx, trade("BTCUSDT", i, 1_000*i, "-1", "1", models.SideBuy))
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrCircuitOpen)
	}

	err := e.ProcessTrade(ctx, trade("BTCUSDT", 4, 10_000, "100.00", "1", models.SideBuy))
	assert.ErrorIs(t, err, ErrCircuitOpen)

	stats := e.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "open", stats[0].CircuitState)
}

func TestEngineSharedBreakerScope(t *testing.T) {
	e := newTestEngine(t, Config{
		ThresholdDecibps: 250,
		SharedBreaker:    true,
		Breaker:          BreakerConfig{WindowSize: 10, MinSamples: 2, ErrorRate: 0.9, Cooldown: time.Hour},
	})
	ctx := context.Background()

	require.Error(t, e.ProcessTrade(ctx, trade("AAA", 1, 1_000, "-1", "1", models.SideBuy)))
	require.Error(t, e.ProcessTrade(ctx, trade("AAA", 2, 2_000, "-1", "1", models.SideBuy)))

	// Errors on AAA tripped the one breaker both symbols share.
	err := e.ProcessTrade(ctx, trade("BBB", 3, 3_000, "100.00", "1", models.SideBuy))
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestEngineDropOldestPolicy(t *testing.T) {
	e := newTestEngine(t, Config{
		ThresholdDecibps: 250,
		QueueSize:        1,
		Policy:           PolicyDropOldest,
	})
	ctx := context.Background()

	// Each pair closes one bar; nothing consumes the channel.
	prices := []string{"100.00", "100.25", "200.00", "200.50", "300.00", "300.75"}
	for i, p := range prices {
		require.NoError(t, e.ProcessTrade(ctx, trade("BTCUSDT", int64(i+1), int64(i+1)*1_000, p, "1", models.SideBuy)))
	}

	assert.Equal(t, int64(2), e.Dropped())
	bar := <-e.Bars()
	assert.Equal(t, "300.75", bar.Close.String())
}

func TestEngineBlockPolicyHonorsContext(t *testing.T) {
	e := newTestEngine(t, Config{ThresholdDecibps: 250, QueueSize: 1, Policy: PolicyBlock})
	ctx := context.Background()

	require.NoError(t, e.ProcessTrade(ctx, trade("BTCUSDT", 1, 1_000, "100.00", "1", models.SideBuy)))
	require.NoError(t, e.ProcessTrade(ctx, trade("BTCUSDT", 2, 2_000, "100.25", "1", models.SideBuy)))

	// Channel is full; a second bar must block until cancellation.
	require.NoError(t, e.ProcessTrade(ctx, trade("BTCUSDT", 3, 3_000, "200.00", "1", models.SideBuy)))
	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := e.ProcessTrade(cancelCtx, trade("BTCUSDT", 4, 4_000, "200.50", "1", models.SideBuy))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngineIndicatorsAndReplay(t *testing.T) {
	e := newTestEngine(t, Config{
		ThresholdDecibps: 250,
		Indicators:       []IndicatorSpec{{Kind: indicator.KindSMA, Period: 2}},
		ReplayWindow:     time.Hour,
		QueueSize:        16,
	})
	ctx := context.Background()

	// Two breach-closed bars: closes 100.25 and 200.50.
	require.NoError(t, e.ProcessTrade(ctx, trade("BTCUSDT", 1, 1_000, "100.00", "1", models.SideBuy)))
	require.NoError(t, e.ProcessTrade(ctx, trade("BTCUSDT", 2, 2_000, "100.25", "1", models.SideBuy)))
	require.NoError(t, e.ProcessTrade(ctx, trade("BTCUSDT", 3, 3_000, "200.00", "1", models.SideBuy)))
	require.NoError(t, e.ProcessTrade(ctx, trade("BTCUSDT", 4, 4_000, "200.50", "1", models.SideBuy)))

	stats := e.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(2), stats[0].BarsEmitted)
	assert.InDelta(t, (100.25+200.50)/2, stats[0].Indicators["sma_2"], 1e-6)

	replayed := e.Replay("BTCUSDT", 0)
	require.Len(t, replayed, 2)
	assert.Equal(t, "100.25", replayed[0].Close.String())
	assert.Equal(t, "200.50", replayed[1].Close.String())

	assert.Nil(t, e.Replay("ETHUSDT", 0))
}
