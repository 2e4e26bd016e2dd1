package models

import (
	"RangePull/pkg/fixedpoint"
)

// RangeBar is an OHLCV aggregate closed by price movement rather than
// elapsed time. Immutable once emitted by a processor.
type RangeBar struct {
	Symbol     string           `json:"symbol"`
	Open       fixedpoint.Value `json:"open"`
	High       fixedpoint.Value `json:"high"`
	Low        fixedpoint.Value `json:"low"`
	Close      fixedpoint.Value `json:"close"`
	Volume     fixedpoint.Value `json:"volume"`
	Turnover   fixedpoint.Value `json:"turnover"`
	BuyVolume  fixedpoint.Value `json:"buy_volume"`
	SellVolume fixedpoint.Value `json:"sell_volume"`
	OpenTime   int64            `json:"open_time"`  // microseconds since epoch
	CloseTime  int64            `json:"close_time"` // microseconds since epoch
	TradeCount int64            `json:"trade_count"`
}

// DurationMicros is the bar's lifetime in microseconds. Zero-duration bars
// are legal: a single trade can both open and breach.
func (b *RangeBar) DurationMicros() int64 {
	return b.CloseTime - b.OpenTime
}
