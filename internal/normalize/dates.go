package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Epoch units are told apart by magnitude: 1e12 seconds is year 33658 while
// 1e12 milliseconds is September 2001, and likewise for micro and nanoseconds.
const (
	epochMillisThreshold = 1e12
	epochMicrosThreshold = 1e15
	epochNanosThreshold  = 1e18
)

// Epoch timestamps must land between the first pitch-tracking season and a
// year from now; anything else is a misread unit or a number that is not a
// timestamp at all (20250402 would otherwise be August 1970).
const minEpochYear = 2008

// now is replaced in tests
var now = time.Now

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006/01/02",
}

// ParseCalendarDate converts any supported date or timestamp encoding into a
// calendar date at UTC midnight. Timestamps keep the wall-clock date of their
// own offset. Missing values and unknown encodings are errors.
func ParseCalendarDate(value any) (time.Time, error) {
	if IsMissing(value) {
		return time.Time{}, fmt.Errorf("%w: missing date", ErrMalformedRecord)
	}

	switch v := value.(type) {
	case time.Time:
		return Day(v), nil
	case *time.Time:
		return Day(*v), nil
	case string:
		return parseDateString(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return fromEpoch(float64(i))
		}
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: unparsable date %q", ErrMalformedRecord, v.String())
		}
		return fromEpoch(f)
	case int:
		return fromEpoch(float64(v))
	case int64:
		return fromEpoch(float64(v))
	case float64:
		return fromEpoch(v)
	}

	return time.Time{}, fmt.Errorf("%w: unsupported date type %T", ErrMalformedRecord, value)
}

// Day truncates t to the calendar date of its own location, returned as UTC midnight
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDateString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparsable date %q", ErrMalformedRecord, s)
}

func fromEpoch(v float64) (time.Time, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return time.Time{}, fmt.Errorf("%w: invalid epoch timestamp %v", ErrMalformedRecord, v)
	}

	secs := v
	switch {
	case v >= epochNanosThreshold:
		secs = v / 1e9
	case v >= epochMicrosThreshold:
		secs = v / 1e6
	case v >= epochMillisThreshold:
		secs = v / 1e3
	}

	sec, frac := math.Modf(secs)
	t := time.Unix(int64(sec), int64(frac*1e9)).UTC()

	earliest := time.Date(minEpochYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	latest := now().UTC().AddDate(1, 0, 0)
	if t.Before(earliest) || t.After(latest) {
		return time.Time{}, fmt.Errorf("%w: epoch timestamp %v outside %d..%d", ErrMalformedRecord, v, minEpochYear, latest.Year())
	}
	return Day(t), nil
}
