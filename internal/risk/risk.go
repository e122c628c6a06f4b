// Package risk derives stop-loss and take-profit levels and the money at
// stake for a directional signal.
package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"xau-signal/internal/model"
)

var (
	// ErrInvalidRiskParameters is returned for out-of-domain parameters.
	// Values are never clamped.
	ErrInvalidRiskParameters = errors.New("invalid risk parameters")

	// ErrNoDirection is returned when Calculate is asked to size a WAIT signal.
	ErrNoDirection = errors.New("signal has no direction")
)

// TargetMode selects how the take-profit distance is derived.
type TargetMode string

const (
	// TargetDistance places TP at entry plus or minus TPDistance.
	TargetDistance TargetMode = "distance"
	// TargetRatio places TP at entry plus or minus TPSLRatio*SLDistance.
	TargetRatio TargetMode = "ratio"
)

// Direction is the side of the hypothetical trade.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Params are the operator-supplied risk settings, in price units and account currency.
type Params struct {
	Balance    float64    `json:"balance" yaml:"balance"`
	RiskPct    float64    `json:"risk_pct" yaml:"risk_pct"` // (0, 100]
	SLDistance float64    `json:"sl_distance" yaml:"sl_distance"`
	TPDistance float64    `json:"tp_distance" yaml:"tp_distance"`
	TPSLRatio  float64    `json:"tp_sl_ratio" yaml:"tp_sl_ratio"`
	Mode       TargetMode `json:"target_mode" yaml:"target_mode"`
}

// DefaultParams returns the gold defaults: 1000 balance, 1% risk, SL 3.0, TP 5.0.
func DefaultParams() Params {
	return Params{
		Balance:    1000,
		RiskPct:    1,
		SLDistance: 3.0,
		TPDistance: 5.0,
		TPSLRatio:  1.5,
		Mode:       TargetDistance,
	}
}

// Validate checks every parameter against its domain. NaN and infinities are
// rejected.
func (p Params) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"balance", p.Balance},
		{"risk_pct", p.RiskPct},
		{"sl_distance", p.SLDistance},
		{"tp_distance", p.TPDistance},
		{"tp_sl_ratio", p.TPSLRatio},
	} {
		if !finite(f.v) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidRiskParameters, f.name, f.v)
		}
	}
	switch {
	case p.Balance <= 0:
		return fmt.Errorf("%w: balance must be > 0, got %v", ErrInvalidRiskParameters, p.Balance)
	case p.RiskPct <= 0 || p.RiskPct > 100:
		return fmt.Errorf("%w: risk_pct must be in (0, 100], got %v", ErrInvalidRiskParameters, p.RiskPct)
	case p.SLDistance <= 0:
		return fmt.Errorf("%w: sl_distance must be > 0, got %v", ErrInvalidRiskParameters, p.SLDistance)
	}
	switch p.Mode {
	case TargetDistance, "":
		if p.TPDistance <= 0 {
			return fmt.Errorf("%w: tp_distance must be > 0, got %v", ErrInvalidRiskParameters, p.TPDistance)
		}
	case TargetRatio:
		if p.TPSLRatio <= 0 {
			return fmt.Errorf("%w: tp_sl_ratio must be > 0, got %v", ErrInvalidRiskParameters, p.TPSLRatio)
		}
	default:
		return fmt.Errorf("%w: unknown target_mode %q", ErrInvalidRiskParameters, p.Mode)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Plan is the computed exposure for one signal.
type Plan struct {
	Direction    Direction `json:"direction"`
	Entry        float64   `json:"entry"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	RiskAmount   float64   `json:"risk_amount"`
	RewardAmount float64   `json:"reward_amount"`
}

// Targets returns the plan's price levels for attaching to a signal.
func (p Plan) Targets() *model.Targets {
	return &model.Targets{TakeProfit: p.TakeProfit, StopLoss: p.StopLoss}
}

// Calculate sizes a BUY or SELL signal entered at entry.
func Calculate(kind model.Kind, entry float64, p Params) (Plan, error) {
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	if !finite(entry) || entry <= 0 {
		return Plan{}, fmt.Errorf("%w: entry must be > 0, got %v", ErrInvalidRiskParameters, entry)
	}

	var dir Direction
	switch kind {
	case model.KindBuy:
		dir = Long
	case model.KindSell:
		dir = Short
	default:
		return Plan{}, fmt.Errorf("%w: %s", ErrNoDirection, kind)
	}

	px := decimal.NewFromFloat(entry)
	sl := decimal.NewFromFloat(p.SLDistance)
	tp := decimal.NewFromFloat(p.TPDistance)
	if p.Mode == TargetRatio {
		tp = decimal.NewFromFloat(p.TPSLRatio).Mul(sl)
	}

	var stop, target decimal.Decimal
	if dir == Long {
		stop, target = px.Sub(sl), px.Add(tp)
	} else {
		stop, target = px.Add(sl), px.Sub(tp)
	}

	riskAmt := riskAmount(p)
	reward := riskAmt.Mul(tp).Div(sl)

	return Plan{
		Direction:    dir,
		Entry:        entry,
		StopLoss:     stop.InexactFloat64(),
		TakeProfit:   target.InexactFloat64(),
		RiskAmount:   riskAmt.InexactFloat64(),
		RewardAmount: reward.InexactFloat64(),
	}, nil
}

// RiskAmount returns balance * risk_pct / 100, shown to the operator even on WAIT.
func RiskAmount(p Params) (float64, error) {
	if !finite(p.Balance) || !finite(p.RiskPct) || p.Balance <= 0 || p.RiskPct <= 0 || p.RiskPct > 100 {
		return 0, fmt.Errorf("%w: balance=%v risk_pct=%v", ErrInvalidRiskParameters, p.Balance, p.RiskPct)
	}
	return riskAmount(p).InexactFloat64(), nil
}

func riskAmount(p Params) decimal.Decimal {
	return decimal.NewFromFloat(p.Balance).Mul(decimal.NewFromFloat(p.RiskPct)).Div(decimal.NewFromInt(100))
}
