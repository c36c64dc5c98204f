package util

import (
	"strconv"
	"strings"
	"time"
)

var layouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseTime tries RFC3339, RFC3339Nano, a few space-separated layouts and unix
// epochs. Layouts without a zone are read as UTC. The result is always UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return EpochToTime(ts), true
	}
	return time.Time{}, false
}

// EpochToTime reads an integer epoch whose unit is guessed from its magnitude
// (seconds, millis, micros or nanos).
func EpochToTime(v int64) time.Time {
	switch {
	case v > 1e17 || v < -1e17:
		return time.Unix(0, v).UTC()
	case v > 1e14 || v < -1e14:
		return time.UnixMicro(v).UTC()
	case v > 1e11 || v < -1e11: // ms
		return time.UnixMilli(v).UTC()
	default:
		return time.Unix(v, 0).UTC()
	}
}
