package batch

import (
	"math"

	"RangePull/internal/domain/models"
	"RangePull/pkg/fixedpoint"
)

// Stats summarizes one symbol's emitted bars. Price moments use Welford's
// online algorithm so a million-bar run needs no second pass and no
// retained bar slice.
type Stats struct {
	BarCount          int64            `json:"bar_count"`
	TradeCount        int64            `json:"trade_count"`
	PriceMean         float64          `json:"price_mean"`
	PriceStdDev       float64          `json:"price_std_dev"`
	TotalVolume       fixedpoint.Value `json:"total_volume"`
	TotalTurnover     fixedpoint.Value `json:"total_turnover"`
	TotalBuyVolume    fixedpoint.Value `json:"total_buy_volume"`
	TotalSellVolume   fixedpoint.Value `json:"total_sell_volume"`
	MinDurationMicros int64            `json:"min_duration_us"`
	MaxDurationMicros int64            `json:"max_duration_us"`
	AvgDurationMicros float64          `json:"avg_duration_us"`
}

type welford struct {
	n    int64
	mean float64
	m2   float64
}

func (w *welford) add(x float64) {
	w.n++
	delta := x - w.mean
	w.mean += delta / float64(w.n)
	w.m2 += delta * (x - w.mean)
}

func (w *welford) stdDev() float64 {
	if w.n < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.n-1))
}

type statsBuilder struct {
	stats Stats
	price welford
	dur   welford
}

func (b *statsBuilder) add(bar *models.RangeBar) error {
	b.price.add(bar.Close.Float64())

	d := bar.DurationMicros()
	b.dur.add(float64(d))
	if b.stats.BarCount == 0 || d < b.stats.MinDurationMicros {
		b.stats.MinDurationMicros = d
	}
	if d > b.stats.MaxDurationMicros {
		b.stats.MaxDurationMicros = d
	}

	vol, err := b.stats.TotalVolume.Add(bar.Volume)
	if err != nil {
		return err
	}
	turn, err := b.stats.TotalTurnover.Add(bar.Turnover)
	if err != nil {
		return err
	}
	buy, err := b.stats.TotalBuyVolume.Add(bar.BuyVolume)
	if err != nil {
		return err
	}
	sell, err := b.stats.TotalSellVolume.Add(bar.SellVolume)
	if err != nil {
		return err
	}
	b.stats.TotalVolume = vol
	b.stats.TotalTurnover = turn
	b.stats.TotalBuyVolume = buy
	b.stats.TotalSellVolume = sell
	b.stats.BarCount++
	b.stats.TradeCount += bar.TradeCount
	return nil
}

func (b *statsBuilder) build() Stats {
	b.stats.PriceMean = b.price.mean
	b.stats.PriceStdDev = b.price.stdDev()
	b.stats.AvgDurationMicros = b.dur.mean
	return b.stats
}
