package model

import (
	"encoding/json"
	"math"
	"time"
)

// Bar is one OHLC observation for a fixed interval.
// Bars are immutable once fetched.
type Bar struct {
	TS    time.Time `json:"ts"` // bar open time (UTC)
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Valid reports whether all prices are positive finite numbers.
func (b Bar) Valid() bool {
	for _, p := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return false
		}
	}
	return true
}

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// Bearish reports whether the bar closed below its open.
func (b Bar) Bearish() bool { return b.Close < b.Open }

// NullFloat is a float64 that may be undefined, mirroring sql.NullFloat64.
// Indicator slots without enough history are left with Valid=false.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Float returns a defined NullFloat.
func Float(v float64) NullFloat { return NullFloat{Float64: v, Valid: true} }

// Defined reports whether the value is set and is a real number.
func (n NullFloat) Defined() bool {
	return n.Valid && !math.IsNaN(n.Float64) && !math.IsInf(n.Float64, 0)
}

// MarshalJSON encodes undefined values as null.
func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Defined() {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

// UnmarshalJSON accepts a number or null.
func (n *NullFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = NullFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Float(v)
	return nil
}

// IndicatorSnapshot holds the indicator values derived for a single bar.
// Snapshots are recomputed from the full bar window each cycle.
type IndicatorSnapshot struct {
	TS      time.Time `json:"ts"`
	Close   float64   `json:"close"`
	EMAFast NullFloat `json:"ema_fast"`
	EMASlow NullFloat `json:"ema_slow"`
	RSI     NullFloat `json:"rsi"`

	// PatternValid is false for the oldest bar, which has no predecessor.
	PatternValid     bool `json:"pattern_valid"`
	BullishEngulfing bool `json:"bullish_engulfing"`
	BearishEngulfing bool `json:"bearish_engulfing"`
}
