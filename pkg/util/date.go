package util

import (
	"strconv"
	"strings"
	"time"
)

// Layouts accepted by ParseTime besides unix seconds. Layouts without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"20060102T150405", // Alpha Vantage time_published
	"20060102T1504",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime tries the known provider layouts and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts > 1e11 { // ms
			ts = ts / 1000
		}
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}
