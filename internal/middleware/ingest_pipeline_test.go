package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RangePull/internal/domain/models"
	"RangePull/internal/streaming"
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

// stubProc records trades and fails the first failN calls with failErr.
type stubProc struct {
	mu      sync.Mutex
	calls   int
	failN   int
	failErr error
	seen    []*models.Trade
}

func (s *stubProc) ProcessTrade(_ context.Context, t *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failN {
		if s.failErr != nil {
			return s.failErr
		}
		return errors.New("downstream unavailable")
	}
	s.seen = append(s.seen, t)
	return nil
}

func (s *stubProc) seenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func (s *stubProc) seenAt(i int) *models.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[i]
}

func goodTrade(symbol string) *models.Trade {
	return &models.Trade{
		Symbol:    symbol,
		Price:     fixedpoint.MustParse("100.00"),
		Volume:    fixedpoint.MustParse("1.5"),
		Timestamp: time.Now().UnixMicro(),
		Side:      models.SideBuy,
	}
}

func TestProcessRejectsInvalidTrades(t *testing.T) {
	proc := &stubProc{}
	p := NewIngestPipeline(proc, nopMetrics{})

	bad := map[string]*models.Trade{
		"nil trade":    nil,
		"empty symbol": {Price: fixedpoint.MustParse("1"), Volume: fixedpoint.MustParse("1"), Timestamp: 1},
		"bad timestamp": {
			Symbol: "BTCUSDT",
			Price:  fixedpoint.MustParse("1"),
			Volume: fixedpoint.MustParse("1"),
		},
		"zero price": {
			Symbol:    "BTCUSDT",
			Volume:    fixedpoint.MustParse("1"),
			Timestamp: 1,
		},
		"negative volume": {
			Symbol:    "BTCUSDT",
			Price:     fixedpoint.MustParse("1"),
			Volume:    fixedpoint.MustParse("-1"),
			Timestamp: 1,
		},
	}
	for name, tr := range bad {
		assert.Error(t, p.Process(context.Background(), tr), name)
	}
	assert.Equal(t, 0, proc.seenCount())
}

func TestProcessForwardsValidTrade(t *testing.T) {
	proc := &stubProc{}
	p := NewIngestPipeline(proc, nopMetrics{})

	require.NoError(t, p.Process(context.Background(), goodTrade("BTCUSDT")))
	assert.Equal(t, 1, proc.seenCount())
}

func TestProcessBuffersOnCircuitOpen(t *testing.T) {
	proc := &stubProc{failN: 1, failErr: streaming.ErrCircuitOpen}
	p := NewIngestPipeline(proc, nopMetrics{}, WithBufferSize(4))

	err := p.Process(context.Background(), goodTrade("BTCUSDT"))
	require.Error(t, err)
	assert.Equal(t, 1, len(p.bufCh))
}

func TestProcessDropsFatalRejection(t *testing.T) {
	proc := &stubProc{failN: 1}
	p := NewIngestPipeline(proc, nopMetrics{}, WithBufferSize(4))

	require.Error(t, p.Process(context.Background(), goodTrade("BTCUSDT")))
	assert.Equal(t, 0, len(p.bufCh), "content-rejected trades must not be retried")

	// The pipeline recovers immediately for the next trade.
	require.NoError(t, p.Process(context.Background(), goodTrade("BTCUSDT")))
	assert.Equal(t, 1, proc.seenCount())
}

func TestStartFlushesBufferedTrades(t *testing.T) {
	proc := &stubProc{failN: 1, failErr: streaming.ErrCircuitOpen}
	p := NewIngestPipeline(proc, nopMetrics{}, WithBufferSize(4))

	require.Error(t, p.Process(context.Background(), goodTrade("BTCUSDT")))

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		return proc.seenCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProcessQueuesBehindBufferedTrades(t *testing.T) {
	proc := &stubProc{failN: 1, failErr: streaming.ErrCircuitOpen}
	p := NewIngestPipeline(proc, nopMetrics{}, WithBufferSize(4))

	first := goodTrade("BTCUSDT")
	second := goodTrade("BTCUSDT")
	second.Timestamp = first.Timestamp + 1

	require.Error(t, p.Process(context.Background(), first))
	// The second trade must not overtake the buffered first one even
	// though the downstream has recovered.
	require.NoError(t, p.Process(context.Background(), second))
	assert.Equal(t, 0, proc.seenCount())
	assert.Equal(t, 2, len(p.bufCh))

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		return proc.seenCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, first.Timestamp, proc.seenAt(0).Timestamp)
	assert.Equal(t, second.Timestamp, proc.seenAt(1).Timestamp)
}

// A trade the engine rejected for broken ordering must never re-enter the
// engine later: the session gets a fresh processor after the rejection,
// which would happily open a bar at the stale timestamp.
func TestFatalRejectionIsNotReplayedIntoEngine(t *testing.T) {
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	engine, err := streaming.NewEngine(streaming.Config{ThresholdDecibps: 250}, log, nopMetrics{})
	require.NoError(t, err)

	p := NewIngestPipeline(engine, nopMetrics{}, WithBufferSize(4))
	p.Start(context.Background())
	defer p.Stop()

	fresh := goodTrade("BTCUSDT")
	fresh.Timestamp = 2000
	require.NoError(t, p.Process(context.Background(), fresh))

	stale := goodTrade("BTCUSDT")
	stale.Timestamp = 1000
	require.Error(t, p.Process(context.Background(), stale))

	// Give a (wrong) background replay every chance to happen.
	time.Sleep(100 * time.Millisecond)

	flushed := engine.Drain(context.Background())
	require.Len(t, flushed, 1)
	assert.Equal(t, int64(2000), flushed[0].OpenTime)
	assert.Equal(t, int64(1), flushed[0].TradeCount)
}

func TestThrottleDropsExcessTrades(t *testing.T) {
	proc := &stubProc{}
	p := NewIngestPipeline(proc, nopMetrics{}, WithMaxRPS(1))

	// First trade passes, an immediate second one for the same symbol is
	// throttled away without error.
	require.NoError(t, p.Process(context.Background(), goodTrade("BTCUSDT")))
	require.NoError(t, p.Process(context.Background(), goodTrade("BTCUSDT")))
	assert.Equal(t, 1, proc.seenCount())

	// A different symbol has its own budget.
	require.NoError(t, p.Process(context.Background(), goodTrade("ETHUSDT")))
	assert.Equal(t, 2, proc.seenCount())
}

func TestThrottleDisabledByDefault(t *testing.T) {
	proc := &stubProc{}
	p := NewIngestPipeline(proc, nopMetrics{})

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Process(context.Background(), goodTrade("BTCUSDT")))
	}
	assert.Equal(t, 10, proc.seenCount())
}
