package timeutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTagged(t *testing.T) {
	cases := []struct {
		raw  int64
		p    Precision
		want int64
	}{
		{1_700_000_000, PrecisionSeconds, 1_700_000_000_000_000},
		{1_700_000_000_123, PrecisionMillis, 1_700_000_000_123_000},
		{1_700_000_000_123_456, PrecisionMicros, 1_700_000_000_123_456},
		{1_700_000_000_123_456_789, PrecisionNanos, 1_700_000_000_123_456},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.raw, tc.p)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.p.String())
	}
}

func TestNormalizeAutoDetect(t *testing.T) {
	// Same instant expressed in four precisions detects to one canonical value.
	const want = 1_700_000_000_000_000
	for _, raw := range []int64{
		1_700_000_000,
		1_700_000_000_000,
		1_700_000_000_000_000,
		1_700_000_000_000_000_000,
	} {
		got, err := Normalize(raw, PrecisionAuto)
		require.NoError(t, err)
		assert.Equal(t, int64(want), got, raw)
	}
}

func TestNormalizeRejectsImplausible(t *testing.T) {
	for _, raw := range []int64{0, -5, 12345, 999_999_999} {
		_, err := Normalize(raw, PrecisionAuto)
		var fe *FormatError
		require.Error(t, err, raw)
		assert.True(t, errors.As(err, &fe), raw)
	}
}

func TestNormalizeNegativeTagged(t *testing.T) {
	_, err := Normalize(-1, PrecisionMicros)
	assert.Error(t, err)
	_, err = Normalize(-1, PrecisionSeconds)
	assert.Error(t, err)
}
