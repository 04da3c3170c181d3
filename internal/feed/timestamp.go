package feed

import (
	"regexp"
	"strconv"
	"time"
	_ "time/tzdata" // target zone must resolve on hosts without a zoneinfo database

	"github.com/pscheid92/trafficpulse/internal/domain"
)

// TargetZone is the civil timezone every record timestamp is rendered in.
const TargetZone = "Europe/Stockholm"

const (
	timestampLayout       = "2006-01-02 15:04:05.000 MST"
	timestampLayoutNoFrac = "2006-01-02 15:04:05 MST"
)

var (
	datePattern    = regexp.MustCompile(`^/Date\((\d+)([-+]\d{4})\)/$`)
	targetLocation = mustLoadLocation(TargetZone)
)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("feed: load location " + name + ": " + err.Error())
	}
	return loc
}

// Location returns the target civil timezone.
func Location() *time.Location {
	return targetLocation
}

// ParseTimestamp decodes "/Date(1682481845657+0200)/". The millisecond part is a UTC epoch
// value; the offset only records the DST state at encode time and is ignored.
func ParseTimestamp(s string) (time.Time, error) {
	m := datePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, &domain.DecodeError{Kind: domain.DecodePatternMismatch, Input: s, Err: domain.ErrPatternMismatch}
	}

	millis, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, &domain.DecodeError{Kind: domain.DecodeNumericOverflow, Input: s, Err: err}
	}

	return time.UnixMilli(millis).In(targetLocation), nil
}

// FormatTimestamp renders t in the target zone as "2023-04-26 06:04:05.657 CEST".
// The fraction is omitted when t falls on a whole second.
func FormatTimestamp(t time.Time) string {
	t = t.In(targetLocation)
	if t.Nanosecond() == 0 {
		return t.Format(timestampLayoutNoFrac)
	}
	return t.Format(timestampLayout)
}
