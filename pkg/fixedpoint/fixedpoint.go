// Package fixedpoint implements exact decimal arithmetic on an int64
// mantissa scaled by a fixed power of ten. All price/volume math in the
// bar-building path goes through this package; floating point is only
// produced at the display/export boundary via Float64.
package fixedpoint

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// Places is the number of decimal places carried by every Value.
	Places = 8
	// Scale is 10^Places.
	Scale int64 = 100_000_000
)

// ErrOverflow is returned when an operation exceeds the representable range.
var ErrOverflow = errors.New("fixedpoint: arithmetic overflow")

// ErrDivisionByZero is returned on division by a zero value.
var ErrDivisionByZero = errors.New("fixedpoint: division by zero")

// ParseError describes a malformed or unrepresentable decimal input.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("fixedpoint: parse %q: %s", e.Input, e.Reason)
}

// Value is a decimal number with exactly Places fractional digits.
// The zero Value is 0.
type Value struct {
	mant int64
}

// FromMantissa builds a Value directly from a scaled mantissa.
func FromMantissa(mant int64) Value { return Value{mant: mant} }

// Mantissa returns the raw scaled integer.
func (v Value) Mantissa() int64 { return v.mant }

// FromInt converts an integer quantity.
func FromInt(n int64) (Value, error) {
	if n > math.MaxInt64/Scale || n < math.MinInt64/Scale {
		return Value{}, ErrOverflow
	}
	return Value{mant: n * Scale}, nil
}

// Parse converts a decimal string into a Value. The string must carry at
// most Places fractional digits and fit the int64 mantissa.
func Parse(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Value{}, &ParseError{Input: s, Reason: "malformed decimal"}
	}
	return fromDecimal(s, d)
}

// MustParse is Parse for compile-time constants; panics on error.
func MustParse(s string) Value {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromFloat converts a float64 at the ingest boundary, rounding half-even
// to Places digits. Never use this on values already inside the core.
func FromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, &ParseError{Input: strconv.FormatFloat(f, 'g', -1, 64), Reason: "not a finite number"}
	}
	d := decimal.NewFromFloat(f).RoundBank(int32(Places))
	return fromDecimal(d.String(), d)
}

func fromDecimal(input string, d decimal.Decimal) (Value, error) {
	scaled := d.Shift(int32(Places))
	if !scaled.IsInteger() {
		return Value{}, &ParseError{Input: input, Reason: fmt.Sprintf("more than %d decimal places", Places)}
	}
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return Value{}, &ParseError{Input: input, Reason: "magnitude overflow"}
	}
	return Value{mant: bi.Int64()}, nil
}

// Zero reports whether v == 0.
func (v Value) Zero() bool { return v.mant == 0 }

// Positive reports whether v > 0.
func (v Value) Positive() bool { return v.mant > 0 }

// Negative reports whether v < 0.
func (v Value) Negative() bool { return v.mant < 0 }

// Cmp returns -1, 0, or 1 comparing v against o.
func (v Value) Cmp(o Value) int {
	switch {
	case v.mant < o.mant:
		return -1
	case v.mant > o.mant:
		return 1
	default:
		return 0
	}
}

// GreaterOrEqual reports v >= o.
func (v Value) GreaterOrEqual(o Value) bool { return v.mant >= o.mant }

// LessOrEqual reports v <= o.
func (v Value) LessOrEqual(o Value) bool { return v.mant <= o.mant }

// Max returns the larger of v and o.
func (v Value) Max(o Value) Value {
	if o.mant > v.mant {
		return o
	}
	return v
}

// Min returns the smaller of v and o.
func (v Value) Min(o Value) Value {
	if o.mant < v.mant {
		return o
	}
	return v
}

// Add returns v + o with overflow checking. Repeated Add within range is
// drift-free: the mantissa sum is exact.
func (v Value) Add(o Value) (Value, error) {
	sum := v.mant + o.mant
	if (v.mant > 0 && o.mant > 0 && sum < 0) || (v.mant < 0 && o.mant < 0 && sum >= 0) {
		return Value{}, ErrOverflow
	}
	return Value{mant: sum}, nil
}

// Sub returns v - o with overflow checking.
func (v Value) Sub(o Value) (Value, error) {
	diff := v.mant - o.mant
	if (v.mant >= 0 && o.mant < 0 && diff < 0) || (v.mant < 0 && o.mant > 0 && diff >= 0) {
		return Value{}, ErrOverflow
	}
	return Value{mant: diff}, nil
}

// Neg returns -v.
func (v Value) Neg() (Value, error) {
	if v.mant == math.MinInt64 {
		return Value{}, ErrOverflow
	}
	return Value{mant: -v.mant}, nil
}

// Mul returns v * o. The product is accumulated in a 128-bit intermediate
// and rescaled once, rounding half to even.
func (v Value) Mul(o Value) (Value, error) {
	return mulDiv(v.mant, o.mant, uint64(Scale))
}

// Div returns v / o, rounding half to even.
func (v Value) Div(o Value) (Value, error) {
	if o.mant == 0 {
		return Value{}, ErrDivisionByZero
	}
	oa, _ := abs64(o.mant)
	res, err := mulDiv(v.mant, Scale, oa)
	if err != nil {
		return Value{}, err
	}
	if o.mant < 0 {
		return res.Neg()
	}
	return res, nil
}

// MulRatio returns v * num / den in one 128-bit step with a single final
// half-even rounding. Used for basis-point threshold distances.
func (v Value) MulRatio(num, den int64) (Value, error) {
	if den == 0 {
		return Value{}, ErrDivisionByZero
	}
	da, _ := abs64(den)
	res, err := mulDiv(v.mant, num, da)
	if err != nil {
		return Value{}, err
	}
	if den < 0 {
		return res.Neg()
	}
	return res, nil
}

// mulDiv computes a*b/d on a 128-bit intermediate with half-even rounding.
func mulDiv(a, b int64, d uint64) (Value, error) {
	neg := (a < 0) != (b < 0)
	aa, aok := abs64(a)
	ba, bok := abs64(b)
	if !aok || !bok {
		return Value{}, ErrOverflow
	}
	hi, lo := bits.Mul64(aa, ba)
	if hi >= d {
		return Value{}, ErrOverflow
	}
	q, r := bits.Div64(hi, lo, d)
	if q > math.MaxInt64 {
		return Value{}, ErrOverflow
	}
	// Round half to even exactly once at the final rescale.
	if r > d-r || (r == d-r && q&1 == 1) {
		q++
	}
	if q > math.MaxInt64 {
		return Value{}, ErrOverflow
	}
	mant := int64(q)
	if neg {
		mant = -mant
	}
	return Value{mant: mant}, nil
}

func abs64(n int64) (uint64, bool) {
	if n == math.MinInt64 {
		return 1 << 63, false
	}
	if n < 0 {
		return uint64(-n), true
	}
	return uint64(n), true
}

// Float64 is a lossy conversion reserved for display and export.
func (v Value) Float64() float64 {
	return float64(v.mant) / float64(Scale)
}

// String formats the value with trailing fractional zeros trimmed.
// Parse(v.String()) == v for every representable v.
func (v Value) String() string {
	mant := v.mant
	sign := ""
	if mant < 0 {
		sign = "-"
		if mant == math.MinInt64 {
			// MinInt64 cannot be negated; format from the unsigned magnitude.
			u := uint64(1) << 63
			return sign + formatUnsigned(u)
		}
		mant = -mant
	}
	return sign + formatUnsigned(uint64(mant))
}

func formatUnsigned(u uint64) string {
	intPart := u / uint64(Scale)
	frac := u % uint64(Scale)
	if frac == 0 {
		return strconv.FormatUint(intPart, 10)
	}
	fs := fmt.Sprintf("%08d", frac)
	fs = strings.TrimRight(fs, "0")
	return strconv.FormatUint(intPart, 10) + "." + fs
}

// MarshalJSON encodes the value as a decimal string to keep exactness on
// the wire.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare decimal forms.
func (v *Value) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
