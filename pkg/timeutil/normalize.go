// Package timeutil canonicalizes heterogeneous source timestamps into one
// epoch unit. Every trade entering the core carries a microsecond epoch
// integer produced here; providers report seconds, milliseconds,
// microseconds or nanoseconds depending on the exchange.
package timeutil

import (
	"fmt"
	"math"
)

// Precision tags the unit of a raw source timestamp.
type Precision int

const (
	// PrecisionAuto detects the unit from the value's magnitude.
	PrecisionAuto Precision = iota
	PrecisionSeconds
	PrecisionMillis
	PrecisionMicros
	PrecisionNanos
)

func (p Precision) String() string {
	switch p {
	case PrecisionAuto:
		return "auto"
	case PrecisionSeconds:
		return "s"
	case PrecisionMillis:
		return "ms"
	case PrecisionMicros:
		return "us"
	case PrecisionNanos:
		return "ns"
	default:
		return "unknown"
	}
}

// ParsePrecision maps a config tag onto a Precision. Empty means auto.
func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "", "auto":
		return PrecisionAuto, nil
	case "s":
		return PrecisionSeconds, nil
	case "ms":
		return PrecisionMillis, nil
	case "us":
		return PrecisionMicros, nil
	case "ns":
		return PrecisionNanos, nil
	default:
		return PrecisionAuto, fmt.Errorf("timeutil: unknown precision tag %q", s)
	}
}

// FormatError reports a raw timestamp outside every plausible precision band.
type FormatError struct {
	Raw    int64
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("timeutil: timestamp %d: %s", e.Raw, e.Reason)
}

// Magnitude bands for auto detection. A 10-digit value is an epoch in
// seconds (2001..2286), 13 digits milliseconds, 16 microseconds,
// 19 nanoseconds. The bands are disjoint so detection is unambiguous.
const (
	minSeconds = int64(1_000_000_000)         // 2001-09-09
	maxSeconds = int64(9_999_999_999)         // 2286-11-20
	minMillis  = minSeconds * 1_000
	maxMillis  = maxSeconds*1_000 + 999
	minMicros  = minSeconds * 1_000_000
	maxMicros  = maxSeconds*1_000_000 + 999_999
	minNanos   = minSeconds * 1_000_000_000
)

// Normalize converts a raw source timestamp into canonical microseconds
// since the Unix epoch. Stateless; safe for concurrent use.
func Normalize(raw int64, p Precision) (int64, error) {
	switch p {
	case PrecisionSeconds:
		return secondsToMicros(raw)
	case PrecisionMillis:
		return millisToMicros(raw)
	case PrecisionMicros:
		return microsChecked(raw)
	case PrecisionNanos:
		return nanosToMicros(raw)
	case PrecisionAuto:
		return detect(raw)
	default:
		return 0, &FormatError{Raw: raw, Reason: fmt.Sprintf("unknown precision tag %d", p)}
	}
}

func detect(raw int64) (int64, error) {
	switch {
	case raw >= minSeconds && raw <= maxSeconds:
		return secondsToMicros(raw)
	case raw >= minMillis && raw <= maxMillis:
		return millisToMicros(raw)
	case raw >= minMicros && raw <= maxMicros:
		return raw, nil
	case raw >= minNanos:
		return nanosToMicros(raw)
	default:
		return 0, &FormatError{Raw: raw, Reason: "outside every plausible precision band"}
	}
}

func secondsToMicros(raw int64) (int64, error) {
	if raw < 0 || raw > math.MaxInt64/1_000_000 {
		return 0, &FormatError{Raw: raw, Reason: "seconds out of range"}
	}
	return raw * 1_000_000, nil
}

func millisToMicros(raw int64) (int64, error) {
	if raw < 0 || raw > math.MaxInt64/1_000 {
		return 0, &FormatError{Raw: raw, Reason: "milliseconds out of range"}
	}
	return raw * 1_000, nil
}

func microsChecked(raw int64) (int64, error) {
	if raw < 0 {
		return 0, &FormatError{Raw: raw, Reason: "microseconds out of range"}
	}
	return raw, nil
}

func nanosToMicros(raw int64) (int64, error) {
	if raw < 0 {
		return 0, &FormatError{Raw: raw, Reason: "nanoseconds out of range"}
	}
	return raw / 1_000, nil
}
