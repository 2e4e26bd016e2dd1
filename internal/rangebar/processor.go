// Package rangebar implements the breach-detection state machine that
// converts an ordered trade stream into range bars. A bar's thresholds are
// derived only from its open price and never recomputed mid-bar, so no
// future trade can influence a closing decision. Identical input and
// threshold always produce an identical bar sequence.
package rangebar

import (
	"fmt"

	"RangePull/internal/domain/models"
	"RangePull/pkg/fixedpoint"
)

// Threshold unit: integer deci-basis-points (0.1 bps). A threshold of 250
// closes a bar once price moves 25 bps (0.25%) away from the open.
const (
	MinThresholdDecibps = 1       // 0.1 bps
	MaxThresholdDecibps = 100_000 // 100%
	thresholdDenom      = 100_000 // deci-bps per unit fraction
)

// State is the processor's lifecycle state.
type State int8

const (
	StateIdle  State = iota // no open bar
	StateOpen               // accumulating
	StateFatal              // rejected input; instance must be replaced
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Config carries the read-only per-processor settings.
type Config struct {
	Symbol           string
	ThresholdDecibps int64
}

// Validate checks the threshold range.
func (c Config) Validate() error {
	if c.Symbol == "" {
		return &ConfigError{Field: "symbol", Reason: "must not be empty"}
	}
	if c.ThresholdDecibps < MinThresholdDecibps || c.ThresholdDecibps > MaxThresholdDecibps {
		return &ConfigError{
			Field:  "threshold_decibps",
			Reason: fmt.Sprintf("%d outside valid range [%d, %d]", c.ThresholdDecibps, MinThresholdDecibps, MaxThresholdDecibps),
		}
	}
	return nil
}

// Processor is a single-symbol range bar builder. Not safe for concurrent
// use; every execution mode gives each instance exactly one owner.
type Processor struct {
	cfg   Config
	state State

	// Open bar accumulator. Reset atomically on each close.
	open       fixedpoint.Value
	high       fixedpoint.Value
	low        fixedpoint.Value
	last       fixedpoint.Value
	volume     fixedpoint.Value
	turnover   fixedpoint.Value
	buyVolume  fixedpoint.Value
	sellVolume fixedpoint.Value
	openTime   int64
	tradeCount int64

	// Threshold distances from the open, fixed for the bar's lifetime.
	upperDelta fixedpoint.Value
	lowerDelta fixedpoint.Value

	lastTS int64
	haveTS bool
}

// New constructs a processor with explicit configuration. No globals, no
// shared caches: ownership is always explicit.
func New(cfg Config) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Processor{cfg: cfg, state: StateIdle}, nil
}

// Symbol returns the configured symbol tag.
func (p *Processor) Symbol() string { return p.cfg.Symbol }

// State returns the current lifecycle state.
func (p *Processor) State() State { return p.state }

// Process consumes one trade. It returns a completed bar when the trade
// breaches the open bar's threshold, nil otherwise. Any returned error is
// fatal: the processor rejects all further input and the caller must
// construct a fresh instance.
func (p *Processor) Process(t *models.Trade) (*models.RangeBar, error) {
	if p.state == StateFatal {
		return nil, p.fatal(t, "processor in fatal state", nil)
	}
	if err := p.validate(t); err != nil {
		return nil, err
	}
	p.lastTS = t.Timestamp
	p.haveTS = true

	if p.state == StateIdle {
		if err := p.openBar(t); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := p.accumulate(t); err != nil {
		return nil, err
	}
	return p.checkBreach(t)
}

// validate enforces the input contract. A violation moves the processor to
// Fatal: silently skipping a bad trade would make the non-lookahead
// guarantee untrustworthy.
func (p *Processor) validate(t *models.Trade) error {
	if t == nil {
		return p.fatal(&models.Trade{}, "nil trade", nil)
	}
	if t.Symbol != p.cfg.Symbol {
		return p.fatal(t, fmt.Sprintf("trade symbol %q does not match processor symbol %q", t.Symbol, p.cfg.Symbol), nil)
	}
	if !t.Price.Positive() {
		return p.fatal(t, "non-positive price", nil)
	}
	if !t.Volume.Positive() {
		return p.fatal(t, "non-positive volume", nil)
	}
	if p.haveTS && t.Timestamp < p.lastTS {
		return p.fatal(t, fmt.Sprintf("decreasing timestamp (previous %d)", p.lastTS), nil)
	}
	return nil
}

// openBar starts a new bar from the first trade after Idle and fixes both
// threshold distances from its price.
func (p *Processor) openBar(t *models.Trade) error {
	delta, err := t.Price.MulRatio(p.cfg.ThresholdDecibps, thresholdDenom)
	if err != nil {
		return p.fatal(t, "threshold distance", err)
	}
	turn, err := t.Price.Mul(t.Volume)
	if err != nil {
		return p.fatal(t, "turnover", err)
	}

	p.open = t.Price
	p.high = t.Price
	p.low = t.Price
	p.last = t.Price
	p.volume = t.Volume
	p.turnover = turn
	p.buyVolume = fixedpoint.Value{}
	p.sellVolume = fixedpoint.Value{}
	p.openTime = t.Timestamp
	p.tradeCount = 1
	p.upperDelta = delta
	p.lowerDelta = delta
	p.addSideVolume(t)
	p.state = StateOpen
	return nil
}

func (p *Processor) addSideVolume(t *models.Trade) {
	// Side volumes cannot overflow before total volume does, so the error
	// paths in accumulate cover them.
	switch t.Side {
	case models.SideBuy:
		p.buyVolume, _ = p.buyVolume.Add(t.Volume)
	case models.SideSell:
		p.sellVolume, _ = p.sellVolume.Add(t.Volume)
	}
}

// accumulate folds one trade into the open bar.
func (p *Processor) accumulate(t *models.Trade) error {
	p.high = p.high.Max(t.Price)
	p.low = p.low.Min(t.Price)
	p.last = t.Price

	vol, err := p.volume.Add(t.Volume)
	if err != nil {
		return p.fatal(t, "volume accumulation", err)
	}
	turn, err := t.Price.Mul(t.Volume)
	if err != nil {
		return p.fatal(t, "turnover", err)
	}
	total, err := p.turnover.Add(turn)
	if err != nil {
		return p.fatal(t, "turnover accumulation", err)
	}
	p.volume = vol
	p.turnover = total
	p.tradeCount++
	p.addSideVolume(t)
	return nil
}

// checkBreach applies the boundary-inclusive breach rule: the bar closes
// once the excursion from the open reaches the threshold distance (>=,
// not >). The breaching trade's price is the close.
func (p *Processor) checkBreach(t *models.Trade) (*models.RangeBar, error) {
	up, err := p.high.Sub(p.open)
	if err != nil {
		return nil, p.fatal(t, "high excursion", err)
	}
	down, err := p.open.Sub(p.low)
	if err != nil {
		return nil, p.fatal(t, "low excursion", err)
	}
	if !up.GreaterOrEqual(p.upperDelta) && !down.GreaterOrEqual(p.lowerDelta) {
		return nil, nil
	}

	bar := &models.RangeBar{
		Symbol:     p.cfg.Symbol,
		Open:       p.open,
		High:       p.high,
		Low:        p.low,
		Close:      t.Price,
		Volume:     p.volume,
		Turnover:   p.turnover,
		BuyVolume:  p.buyVolume,
		SellVolume: p.sellVolume,
		OpenTime:   p.openTime,
		CloseTime:  t.Timestamp,
		TradeCount: p.tradeCount,
	}
	p.reset()
	return bar, nil
}

// Flush returns the open accumulator as a partial bar, or nil when Idle.
// Used at end-of-input and on graceful shutdown; the partial bar's close
// is the last observed price. The processor returns to Idle.
func (p *Processor) Flush() *models.RangeBar {
	if p.state != StateOpen {
		return nil
	}
	bar := &models.RangeBar{
		Symbol:     p.cfg.Symbol,
		Open:       p.open,
		High:       p.high,
		Low:        p.low,
		Close:      p.last,
		Volume:     p.volume,
		Turnover:   p.turnover,
		BuyVolume:  p.buyVolume,
		SellVolume: p.sellVolume,
		OpenTime:   p.openTime,
		CloseTime:  p.lastTS,
		TradeCount: p.tradeCount,
	}
	p.reset()
	return bar
}

// reset clears the accumulator in one step; the trade after a breach opens
// the next bar with no gap and no overlap.
func (p *Processor) reset() {
	p.open = fixedpoint.Value{}
	p.high = fixedpoint.Value{}
	p.low = fixedpoint.Value{}
	p.last = fixedpoint.Value{}
	p.volume = fixedpoint.Value{}
	p.turnover = fixedpoint.Value{}
	p.buyVolume = fixedpoint.Value{}
	p.sellVolume = fixedpoint.Value{}
	p.openTime = 0
	p.tradeCount = 0
	p.upperDelta = fixedpoint.Value{}
	p.lowerDelta = fixedpoint.Value{}
	p.state = StateIdle
}

func (p *Processor) fatal(t *models.Trade, reason string, cause error) error {
	p.state = StateFatal
	e := &SequenceError{Reason: reason, Err: cause}
	if t != nil {
		e.TradeID = t.ID
		e.Symbol = t.Symbol
		e.Timestamp = t.Timestamp
	}
	return e
}
