package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseLookback accepts Go durations ("90m", "24h"), day counts ("2d") and
// bare integers meaning hours. Empty means no lookback.
func ParseLookback(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative lookback %q", s)
		}
		return time.Duration(n) * time.Hour, nil
	}
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid lookback %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid lookback %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative lookback %q", s)
	}
	return d, nil
}
