package streaming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RangePull/internal/domain/models"
)

func replayBar(seq int64) *models.RangeBar {
	return &models.RangeBar{Symbol: "BTCUSDT", TradeCount: seq}
}

func TestReplayEvictsByAge(t *testing.T) {
	rb := NewReplayBuffer(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	rb.now = func() time.Time { return now }

	rb.Push(replayBar(1))
	now = now.Add(30 * time.Second)
	rb.Push(replayBar(2))
	require.Equal(t, 2, rb.Len())

	// First bar ages out, second survives.
	now = now.Add(45 * time.Second)
	rb.Push(replayBar(3))
	bars := rb.Recent(0)
	require.Len(t, bars, 2)
	assert.Equal(t, int64(2), bars[0].TradeCount)
	assert.Equal(t, int64(3), bars[1].TradeCount)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 0, rb.Len())
}

func TestReplayRecentLimit(t *testing.T) {
	rb := NewReplayBuffer(time.Hour)
	for i := int64(1); i <= 5; i++ {
		rb.Push(replayBar(i))
	}

	bars := rb.Recent(3)
	require.Len(t, bars, 3)
	// Newest 3, oldest first.
	assert.Equal(t, int64(3), bars[0].TradeCount)
	assert.Equal(t, int64(5), bars[2].TradeCount)

	assert.Len(t, rb.Recent(0), 5)
	assert.Len(t, rb.Recent(100), 5)
}
