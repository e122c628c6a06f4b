package marketdata

import (
	"testing"
	"time"
)

func TestParseSpan(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"15m", 15 * time.Minute},
		{"1h", time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"1wk", 7 * 24 * time.Hour},
		{"1mo", 30 * 24 * time.Hour},
		{" 5D ", 5 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := ParseSpan(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseSpan(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}

	for _, bad := range []string{"", "d", "-1d", "0m", "soon"} {
		if _, err := ParseSpan(bad); err == nil {
			t.Errorf("ParseSpan(%q): expected error", bad)
		}
	}
}

func TestBarCount(t *testing.T) {
	n, err := BarCount("15m", "7d")
	if err != nil || n != 672 {
		t.Errorf("BarCount(15m, 7d) = %d, %v; want 672", n, err)
	}
	if _, err := BarCount("1d", "1h"); err == nil {
		t.Error("expected error when lookback is shorter than interval")
	}
}
