package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	isoSeconds = "2006-01-02T15:04:05Z"
	isoMicros  = "2006-01-02T15:04:05.000000Z"
)

// Epoch1904 is the reference date of the Windscanner timestamp column.
var Epoch1904 = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)

// TimeSpec tells the normalizer where a family keeps its timestamps and how they are encoded.
type TimeSpec struct {
	Column  string
	Layouts []string
	// Epoch is set for numeric timestamps counted in seconds from a vendor reference date.
	Epoch *time.Time
}

// ParseTimestamp tries layouts in order; the first one that parses wins.
// Timestamps without a zone are taken as UTC.
func ParseTimestamp(s string, layouts []string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &TimeParseError{Value: s, Layouts: layouts}
}

// FromEpoch converts whole seconds since epoch into a UTC instant.
// Fractional seconds are truncated.
func FromEpoch(seconds float64, epoch time.Time) time.Time {
	return epoch.Add(time.Duration(math.Trunc(seconds)) * time.Second).UTC()
}

// FormatISO renders t as ISO-8601 with an explicit Z suffix. Microseconds are
// only written when present.
func FormatISO(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/1000 != 0 {
		return t.Format(isoMicros)
	}
	return t.Format(isoSeconds)
}

// ParseISO reads a value produced by FormatISO.
func ParseISO(s string) (time.Time, error) {
	return ParseTimestamp(s, []string{isoSeconds, time.RFC3339Nano})
}

// Normalize converts one raw timestamp field according to spec.
func (spec TimeSpec) Normalize(raw string) (time.Time, error) {
	if spec.Epoch != nil {
		seconds, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return time.Time{}, &TimeParseError{Value: raw, Layouts: []string{"seconds since " + FormatISO(*spec.Epoch)}}
		}
		return FromEpoch(seconds, *spec.Epoch), nil
	}
	return ParseTimestamp(raw, spec.Layouts)
}

// NormalizeRecords converts the timestamp field at column col of every record.
// With skip set, records whose timestamp does not parse are dropped and
// counted; otherwise the first failure aborts.
func NormalizeRecords(records []RawRecord, col int, spec TimeSpec, skip bool) ([]time.Time, []RawRecord, int, error) {
	times := make([]time.Time, 0, len(records))
	kept := make([]RawRecord, 0, len(records))
	skipped := 0
	for _, rec := range records {
		var raw string
		if col < len(rec) {
			raw = rec[col]
		}
		t, err := spec.Normalize(raw)
		if err != nil {
			if skip {
				skipped++
				continue
			}
			return nil, nil, skipped, err
		}
		times = append(times, t)
		kept = append(kept, rec)
	}
	return times, kept, skipped, nil
}
