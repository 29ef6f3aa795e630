package feed

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in     string
		want   time.Time
		wantOK bool
	}{
		{"2025-01-15T09:30:00Z", time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC), true},
		{"1736933400", time.Unix(1736933400, 0).UTC(), true},
		{"1736933400000", time.UnixMilli(1736933400000).UTC(), true},
		{"  1736933400  ", time.Unix(1736933400, 0).UTC(), true},
		{"0", time.Unix(0, 0).UTC(), true},
		{"", time.Time{}, false},
		{"not-a-time", time.Time{}, false},
		{"2025-01-15", time.Time{}, false},
		{"1.5", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseTimestamp(tc.in)
		if ok != tc.wantOK {
			t.Errorf("ParseTimestamp(%q) ok = %v, want %v", tc.in, ok, tc.wantOK)
			continue
		}
		if ok && !got.Equal(tc.want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseTimestampMillisecondThreshold(t *testing.T) {
	// Just below the cutoff is still seconds; above is milliseconds.
	below, ok := ParseTimestamp("99999999999")
	if !ok || !below.Equal(time.Unix(99999999999, 0).UTC()) {
		t.Errorf("below cutoff parsed as %v", below)
	}
	above, ok := ParseTimestamp("100000000001")
	if !ok || !above.Equal(time.UnixMilli(100000000001).UTC()) {
		t.Errorf("above cutoff parsed as %v", above)
	}
}
