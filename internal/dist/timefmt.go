package dist

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 timestamps as well as the zone-less ISO-8601
// forms ("2026-01-01T00:00:00", "2026-01-01"). Zone-less input is read as UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", s)
}

func FormatTime(t time.Time) string { return t.Format(time.RFC3339Nano) }

// Days is the number of whole days in d, truncated toward negative infinity.
func Days(d time.Duration) int {
	n := int(d / day)
	if d < 0 && d%day != 0 {
		n--
	}
	return n
}

func AddDays(t time.Time, n int) time.Time { return t.Add(time.Duration(n) * day) }
