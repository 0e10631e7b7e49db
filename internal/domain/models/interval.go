package models

import "time"

var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// IsValidInterval returns true if the kline interval is supported.
func IsValidInterval(s string) bool {
	_, ok := intervals[s]
	return ok
}

// IntervalDuration returns the length of one candle, or zero if unsupported.
func IntervalDuration(s string) time.Duration {
	return intervals[s]
}
