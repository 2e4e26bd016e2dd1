package models

import (
	"RangePull/pkg/fixedpoint"
)

// Side tags the aggressor side of a trade.
type Side int8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide maps provider side tags onto the closed Side set.
func ParseSide(s string) Side {
	switch s {
	case "buy", "b", "BUY":
		return SideBuy
	case "sell", "s", "SELL":
		return SideSell
	default:
		return SideUnknown
	}
}

// Trade is one normalized trade execution record. Produced by the provider
// layer, consumed exactly once by a processor, then discarded.
type Trade struct {
	ID        int64            `json:"id"`
	Symbol    string           `json:"symbol"`
	Price     fixedpoint.Value `json:"price"`
	Volume    fixedpoint.Value `json:"volume"`
	Timestamp int64            `json:"ts"` // microseconds since epoch
	Side      Side             `json:"side"`
}
