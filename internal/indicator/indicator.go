// Package indicator provides technical indicator calculations over bar data.
//
// EMA and RSI are incremental: they receive closes one at a time and report
// whether enough history has been seen. Engine replays a whole bar window
// through them and produces one model.IndicatorSnapshot per bar.
package indicator

// Indicator is the interface for streaming close-price indicators.
type Indicator interface {
	// Name returns the indicator name with its period (e.g. "EMA_20", "RSI_14").
	Name() string

	// Update feeds the next close price and recalculates.
	Update(close float64)

	// Value returns the current calculated value. Only meaningful when Ready.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}
