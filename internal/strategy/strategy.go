// Package strategy classifies the latest indicator snapshot into BUY, SELL or WAIT.
//
// Two interchangeable rules are provided: TrendOscillator (close vs fast EMA
// filtered by RSI) and TrendPattern (EMA cross state confirmed by an
// engulfing candle and an RSI bound). Both are pure functions of their input.
package strategy

import (
	"fmt"

	"xau-signal/internal/model"
)

// Classifier is the interface all signal rules implement.
type Classifier interface {
	// Name returns the strategy identifier used in config and logs.
	Name() string

	// Classify returns the kind for the last snapshot in snaps.
	// Undefined indicators yield KindWait; Classify never fails.
	Classify(snaps []model.IndicatorSnapshot) model.Kind
}

// Strategy names recognised by New.
const (
	NameTrendOscillator = "trend_oscillator"
	NameTrendPattern    = "trend_pattern"
)

// Thresholds holds the RSI bounds of both rules.
type Thresholds struct {
	BuyRSICeiling float64 `yaml:"buy_rsi_ceiling"` // TrendOscillator: BUY needs rsi below this
	SellRSIFloor  float64 `yaml:"sell_rsi_floor"`  // TrendOscillator: SELL needs rsi above this

	PatternRSIUpper float64 `yaml:"pattern_rsi_upper"` // TrendPattern: BUY needs rsi below this
	PatternRSILower float64 `yaml:"pattern_rsi_lower"` // TrendPattern: SELL needs rsi above this
}

// DefaultThresholds returns 45/55 for the oscillator rule and 65/35 for the pattern rule.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BuyRSICeiling:   45,
		SellRSIFloor:    55,
		PatternRSIUpper: 65,
		PatternRSILower: 35,
	}
}

// New builds the classifier registered under name.
func New(name string, th Thresholds) (Classifier, error) {
	switch name {
	case NameTrendOscillator, "":
		return NewTrendOscillator(th.BuyRSICeiling, th.SellRSIFloor), nil
	case NameTrendPattern:
		return NewTrendPattern(th.PatternRSIUpper, th.PatternRSILower), nil
	}
	return nil, fmt.Errorf("unknown strategy %q (want %s or %s)", name, NameTrendOscillator, NameTrendPattern)
}

// Resolve combines independently evaluated BUY and SELL conditions.
// BUY wins when both hold, which only happens with overlapping thresholds.
func Resolve(buy, sell bool) model.Kind {
	switch {
	case buy:
		return model.KindBuy
	case sell:
		return model.KindSell
	default:
		return model.KindWait
	}
}

func latest(snaps []model.IndicatorSnapshot) (model.IndicatorSnapshot, bool) {
	if len(snaps) == 0 {
		return model.IndicatorSnapshot{}, false
	}
	return snaps[len(snaps)-1], true
}
