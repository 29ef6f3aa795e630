package feed

import (
	"strconv"
	"strings"
	"time"
)

// iso8601Layout is the canonical timestamp layout in CSV and API payloads.
const iso8601Layout = "2006-01-02T15:04:05Z"

// epochMsThreshold separates epoch seconds from epoch milliseconds: any
// absolute value above it is treated as milliseconds.
const epochMsThreshold = 100000000000

// ParseTimestamp parses an ISO8601 timestamp ("2006-01-02T15:04:05Z") or a
// Unix epoch in seconds or milliseconds. Magnitudes above 1e11 are taken as
// milliseconds.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if ts, err := time.Parse(iso8601Layout, s); err == nil {
		return ts, true
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if v > epochMsThreshold || v < -epochMsThreshold {
		return time.UnixMilli(v).UTC(), true
	}
	return time.Unix(v, 0).UTC(), true
}
