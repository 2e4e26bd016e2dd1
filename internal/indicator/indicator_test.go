package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RangePull/internal/domain/models"
	"RangePull/pkg/fixedpoint"
)

func barWithClose(close string) *models.RangeBar {
	v := fixedpoint.MustParse(close)
	return &models.RangeBar{Symbol: "BTCUSDT", Open: v, High: v, Low: v, Close: v}
}

func feed(ind Indicator, closes ...string) {
	for _, c := range closes {
		ind.Update(barWithClose(c))
	}
}

func TestSMA(t *testing.T) {
	s := NewSMA(3)
	assert.False(t, s.Ready())

	feed(s, "1", "2", "3")
	require.True(t, s.Ready())
	assert.InDelta(t, 2.0, s.Value(), 1e-9)

	feed(s, "4")
	assert.InDelta(t, 3.0, s.Value(), 1e-9)

	s.Reset()
	assert.False(t, s.Ready())
	assert.Zero(t, s.Value())
}

func TestEMA(t *testing.T) {
	e := NewEMA(2)
	feed(e, "1", "2")
	require.True(t, e.Ready())
	assert.InDelta(t, 1.5, e.Value(), 1e-9) // SMA seed

	feed(e, "3")
	// multiplier 2/(2+1): 3*2/3 + 1.5*1/3
	assert.InDelta(t, 2.5, e.Value(), 1e-9)
}

func TestRSIAllGains(t *testing.T) {
	r := NewRSI(2)
	feed(r, "1", "2", "3")
	require.True(t, r.Ready())
	assert.InDelta(t, 100.0, r.Value(), 1e-9)
}

func TestRSIMixed(t *testing.T) {
	r := NewRSI(2)
	feed(r, "10", "11", "10", "11")
	require.True(t, r.Ready())
	v := r.Value()
	assert.Greater(t, v, 0.0)
	assert.Less(t, v, 100.0)
}

func TestMomentum(t *testing.T) {
	m := NewMomentum(2)
	feed(m, "1", "2")
	assert.False(t, m.Ready())

	feed(m, "3")
	require.True(t, m.Ready())
	assert.InDelta(t, 2.0, m.Value(), 1e-9) // 3 - 1

	feed(m, "2.5")
	assert.InDelta(t, 0.5, m.Value(), 1e-9) // 2.5 - 2
}

func TestFactoryClosedSet(t *testing.T) {
	for _, kind := range []Kind{KindSMA, KindEMA, KindRSI, KindMomentum} {
		ind, err := New(kind, 5)
		require.NoError(t, err, kind)
		assert.NotEmpty(t, ind.Name())
	}

	_, err := New(Kind("macd"), 5)
	assert.Error(t, err)

	_, err = New(KindSMA, 0)
	assert.Error(t, err)
}
