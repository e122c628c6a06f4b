package indicator

import (
	"errors"
	"fmt"

	"xau-signal/internal/model"
)

var (
	// ErrInsufficientData is returned when the bar window is shorter than the
	// longest configured indicator needs. The caller decides whether to skip
	// the cycle or fetch more history.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidBars is returned for windows that are not strictly ordered
	// or that contain non-positive prices.
	ErrInvalidBars = errors.New("invalid bars")
)

// Config specifies the indicator periods to compute.
type Config struct {
	EMAFast int // e.g. 20
	EMASlow int // e.g. 50
	RSI     int // e.g. 14
}

// DefaultConfig returns the 20/50 EMA pair with RSI(14).
func DefaultConfig() Config {
	return Config{EMAFast: 20, EMASlow: 50, RSI: 14}
}

// Validate rejects non-positive periods.
func (c Config) Validate() error {
	if c.EMAFast <= 0 || c.EMASlow <= 0 || c.RSI <= 0 {
		return fmt.Errorf("indicator periods must be positive (ema_fast=%d ema_slow=%d rsi=%d)",
			c.EMAFast, c.EMASlow, c.RSI)
	}
	return nil
}

// Engine derives indicator snapshots from a bar window.
// It holds no state between calls: every Compute replays the full window.
type Engine struct {
	cfg Config
}

// NewEngine creates an indicator engine with the given periods.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// MinBars returns the shortest window for which every indicator is defined
// on the latest bar.
func (e *Engine) MinBars() int {
	n := e.cfg.EMAFast
	if e.cfg.EMASlow > n {
		n = e.cfg.EMASlow
	}
	if e.cfg.RSI+1 > n {
		n = e.cfg.RSI + 1
	}
	if n < 2 {
		n = 2 // engulfing flags need a predecessor
	}
	return n
}

// Compute returns one snapshot per bar, aligned by index.
// Slots without enough history have Valid=false rather than a zero value.
func (e *Engine) Compute(bars []model.Bar) ([]model.IndicatorSnapshot, error) {
	if len(bars) < e.MinBars() {
		return nil, fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientData, len(bars), e.MinBars())
	}
	if err := checkBars(bars); err != nil {
		return nil, err
	}

	fast := NewEMA(e.cfg.EMAFast)
	slow := NewEMA(e.cfg.EMASlow)
	rsi := NewRSI(e.cfg.RSI)

	snaps := make([]model.IndicatorSnapshot, len(bars))
	for i, b := range bars {
		fast.Update(b.Close)
		slow.Update(b.Close)
		rsi.Update(b.Close)

		s := model.IndicatorSnapshot{
			TS:      b.TS,
			Close:   b.Close,
			EMAFast: value(fast),
			EMASlow: value(slow),
			RSI:     value(rsi),
		}
		if i > 0 {
			s.PatternValid = true
			s.BullishEngulfing = BullishEngulfing(bars[i-1], b)
			s.BearishEngulfing = BearishEngulfing(bars[i-1], b)
		}
		snaps[i] = s
	}
	return snaps, nil
}

func value(ind Indicator) model.NullFloat {
	if !ind.Ready() {
		return model.NullFloat{}
	}
	return model.Float(ind.Value())
}

func checkBars(bars []model.Bar) error {
	for i, b := range bars {
		if !b.Valid() {
			return fmt.Errorf("%w: bar %d (%s) has non-positive price", ErrInvalidBars, i, b.TS.Format("2006-01-02 15:04"))
		}
		if i > 0 && !b.TS.After(bars[i-1].TS) {
			return fmt.Errorf("%w: bar %d timestamp %s not after %s", ErrInvalidBars, i,
				b.TS.Format("2006-01-02 15:04"), bars[i-1].TS.Format("2006-01-02 15:04"))
		}
	}
	return nil
}
