// Package marketdata holds the bar and news feed adapters.
package marketdata

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSpan parses interval and lookback strings such as "15m", "1h", "7d"
// or "1wk". Plain Go durations are accepted too.
func ParseSpan(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for _, u := range []struct {
		suffix string
		unit   time.Duration
	}{
		{"wk", 7 * 24 * time.Hour},
		{"w", 7 * 24 * time.Hour},
		{"d", 24 * time.Hour},
		{"mo", 30 * 24 * time.Hour},
	} {
		if strings.HasSuffix(s, u.suffix) {
			n, err := strconv.Atoi(strings.TrimSuffix(s, u.suffix))
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid span %q", s)
			}
			return time.Duration(n) * u.unit, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid span %q", s)
	}
	return d, nil
}

// BarCount returns how many bars of interval fit in lookback.
func BarCount(interval, lookback string) (int, error) {
	iv, err := ParseSpan(interval)
	if err != nil {
		return 0, err
	}
	lb, err := ParseSpan(lookback)
	if err != nil {
		return 0, err
	}
	n := int(lb / iv)
	if n < 1 {
		return 0, fmt.Errorf("lookback %s shorter than interval %s", lookback, interval)
	}
	return n, nil
}
