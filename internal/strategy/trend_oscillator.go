package strategy

import "xau-signal/internal/model"

// TrendOscillator buys pullbacks in an uptrend and sells rallies in a downtrend.
//
// BUY:  close > ema_fast and rsi < buyRSICeiling
// SELL: close < ema_fast and rsi > sellRSIFloor
type TrendOscillator struct {
	buyRSICeiling float64
	sellRSIFloor  float64
}

// NewTrendOscillator creates the rule with the given RSI thresholds (e.g. 45 and 55).
func NewTrendOscillator(buyRSICeiling, sellRSIFloor float64) *TrendOscillator {
	return &TrendOscillator{buyRSICeiling: buyRSICeiling, sellRSIFloor: sellRSIFloor}
}

func (s *TrendOscillator) Name() string { return NameTrendOscillator }

func (s *TrendOscillator) Classify(snaps []model.IndicatorSnapshot) model.Kind {
	cur, ok := latest(snaps)
	if !ok || !cur.EMAFast.Defined() || !cur.RSI.Defined() {
		return model.KindWait
	}
	ema, rsi := cur.EMAFast.Float64, cur.RSI.Float64

	buy := cur.Close > ema && rsi < s.buyRSICeiling
	sell := cur.Close < ema && rsi > s.sellRSIFloor
	return Resolve(buy, sell)
}
