package strategy

import "xau-signal/internal/model"

// TrendPattern trades engulfing candles in the direction of the EMA stack.
//
// BUY:  ema_fast > ema_slow, bullish engulfing, rsi < rsiUpper
// SELL: ema_fast < ema_slow, bearish engulfing, rsi > rsiLower
type TrendPattern struct {
	rsiUpper float64
	rsiLower float64
}

// NewTrendPattern creates the rule with the given RSI bounds (e.g. 65 and 35).
func NewTrendPattern(rsiUpper, rsiLower float64) *TrendPattern {
	return &TrendPattern{rsiUpper: rsiUpper, rsiLower: rsiLower}
}

func (s *TrendPattern) Name() string { return NameTrendPattern }

func (s *TrendPattern) Classify(snaps []model.IndicatorSnapshot) model.Kind {
	cur, ok := latest(snaps)
	if !ok || !cur.PatternValid || !cur.EMAFast.Defined() || !cur.EMASlow.Defined() || !cur.RSI.Defined() {
		return model.KindWait
	}
	fast, slow, rsi := cur.EMAFast.Float64, cur.EMASlow.Float64, cur.RSI.Float64

	buy := fast > slow && cur.BullishEngulfing && rsi < s.rsiUpper
	sell := fast < slow && cur.BearishEngulfing && rsi > s.rsiLower
	return Resolve(buy, sell)
}
