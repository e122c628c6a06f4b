package indicator

import "xau-signal/internal/model"

// BullishEngulfing reports whether curr is a green bar whose body strictly
// contains the body of the red bar prev.
func BullishEngulfing(prev, curr model.Bar) bool {
	return prev.Bearish() && curr.Bullish() &&
		curr.Open < prev.Close && curr.Close > prev.Open
}

// BearishEngulfing reports whether curr is a red bar whose body strictly
// contains the body of the green bar prev.
func BearishEngulfing(prev, curr model.Bar) bool {
	return prev.Bullish() && curr.Bearish() &&
		curr.Open > prev.Close && curr.Close < prev.Open
}
