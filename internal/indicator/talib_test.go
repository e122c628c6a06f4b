package indicator

import (
	"math"
	"testing"

	"github.com/markcheno/go-talib"
)

// TA-Lib seeds EMA and RSI the same way (SMA seed, Wilder smoothing), so its
// output is used as a reference on a non-trivial series.
func referenceCloses() []float64 {
	closes := make([]float64, 200)
	p := 2650.0
	for i := range closes {
		p += math.Sin(float64(i)*0.45)*5 + math.Cos(float64(i)*0.13)*2
		closes[i] = p
	}
	return closes
}

func TestEMA_MatchesTALib(t *testing.T) {
	closes := referenceCloses()
	for _, period := range []int{9, 20, 50} {
		want := talib.Ema(closes, period)
		ema := NewEMA(period)
		for i, c := range closes {
			ema.Update(c)
			if i < period-1 {
				continue
			}
			assertClose(t, ema.Name(), ema.Value(), want[i], 1e-6)
		}
	}
}

func TestRSI_MatchesTALib(t *testing.T) {
	closes := referenceCloses()
	for _, period := range []int{5, 14} {
		want := talib.Rsi(closes, period)
		rsi := NewRSI(period)
		for i, c := range closes {
			rsi.Update(c)
			if i < period {
				continue
			}
			assertClose(t, rsi.Name(), rsi.Value(), want[i], 1e-6)
		}
	}
}
