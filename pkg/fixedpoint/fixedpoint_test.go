package fixedpoint

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndFormat(t *testing.T) {
	cases := []struct {
		in   string
		mant int64
		out  string
	}{
		{"0", 0, "0"},
		{"1", 100_000_000, "1"},
		{"100.00", 10_000_000_000, "100"},
		{"100.25", 10_025_000_000, "100.25"},
		{"-3.5", -350_000_000, "-3.5"},
		{"0.00000001", 1, "0.00000001"},
		{"12345.67890000", 1_234_567_890_000, "12345.6789"},
	}
	for _, tc := range cases {
		v, err := Parse(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.mant, v.Mantissa(), tc.in)
		assert.Equal(t, tc.out, v.String(), tc.in)
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "0.000000001", "99999999999999999999"} {
		_, err := Parse(in)
		var pe *ParseError
		require.Error(t, err, in)
		assert.True(t, errors.As(err, &pe), in)
	}
}

func TestRoundTrip(t *testing.T) {
	// Parse(v.String()) == v for representable values.
	for _, mant := range []int64{0, 1, -1, 7, 99_999_999, 100_000_000, 123_456_789_012_345, math.MaxInt64, math.MinInt64 + 1} {
		v := FromMantissa(mant)
		got, err := Parse(v.String())
		require.NoError(t, err, v.String())
		assert.Equal(t, v, got, v.String())
	}
}

func TestAddSubNoDrift(t *testing.T) {
	step := MustParse("0.1")
	var sum Value
	var err error
	for i := 0; i < 1000; i++ {
		sum, err = sum.Add(step)
		require.NoError(t, err)
	}
	assert.Equal(t, "100", sum.String())
	for i := 0; i < 1000; i++ {
		sum, err = sum.Sub(step)
		require.NoError(t, err)
	}
	assert.True(t, sum.Zero())
}

func TestAddOverflow(t *testing.T) {
	near := FromMantissa(math.MaxInt64)
	_, err := near.Add(FromMantissa(1))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = FromMantissa(math.MinInt64).Sub(FromMantissa(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMulHalfEven(t *testing.T) {
	// 0.00000015 * 0.1 = 0.000000015 -> ties to even 0.00000002
	got, err := MustParse("0.00000015").Mul(MustParse("0.1"))
	require.NoError(t, err)
	assert.Equal(t, "0.00000002", got.String())

	// 0.00000025 * 0.1 = 0.000000025 -> ties to even 0.00000002
	got, err = MustParse("0.00000025").Mul(MustParse("0.1"))
	require.NoError(t, err)
	assert.Equal(t, "0.00000002", got.String())

	got, err = MustParse("100.25").Mul(MustParse("2"))
	require.NoError(t, err)
	assert.Equal(t, "200.5", got.String())

	got, err = MustParse("-1.5").Mul(MustParse("3"))
	require.NoError(t, err)
	assert.Equal(t, "-4.5", got.String())
}

func TestMulOverflow(t *testing.T) {
	big := MustParse("10000000000")
	_, err := big.Mul(big)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestDiv(t *testing.T) {
	got, err := MustParse("1").Div(MustParse("3"))
	require.NoError(t, err)
	assert.Equal(t, "0.33333333", got.String())

	got, err = MustParse("2").Div(MustParse("3"))
	require.NoError(t, err)
	assert.Equal(t, "0.66666667", got.String())

	got, err = MustParse("-10").Div(MustParse("4"))
	require.NoError(t, err)
	assert.Equal(t, "-2.5", got.String())

	_, err = MustParse("1").Div(Value{})
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMulRatio(t *testing.T) {
	// 250 deci-bps of 100.00 is exactly 0.25.
	got, err := MustParse("100").MulRatio(250, 100_000)
	require.NoError(t, err)
	assert.Equal(t, "0.25", got.String())

	// 1 deci-bps of 1.0
	got, err = MustParse("1").MulRatio(1, 100_000)
	require.NoError(t, err)
	assert.Equal(t, "0.00001", got.String())
}

func TestCompare(t *testing.T) {
	a, b := MustParse("1.5"), MustParse("2")
	assert.Equal(t, -1, a.Cmp(b))
	assert.Equal(t, 1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(a))
	assert.Equal(t, b, a.Max(b))
	assert.Equal(t, a, a.Min(b))
	assert.True(t, b.GreaterOrEqual(a))
	assert.True(t, a.LessOrEqual(b))
}

func TestFromFloatBoundary(t *testing.T) {
	v, err := FromFloat(100.25)
	require.NoError(t, err)
	assert.Equal(t, "100.25", v.String())

	_, err = FromFloat(math.NaN())
	assert.Error(t, err)
}

func TestJSON(t *testing.T) {
	v := MustParse("100.25")
	b, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"100.25"`, string(b))

	var back Value
	require.NoError(t, back.UnmarshalJSON(b))
	assert.Equal(t, v, back)
}
