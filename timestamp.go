package activity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the stored timestamp format. It is fixed-width UTC so
// that ordering by the text column matches ordering by time.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// SecondsThreshold separates Unix seconds from Unix milliseconds. Integers
// below it are seconds.
const SecondsThreshold = 10_000_000_000

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts Unix seconds, Unix milliseconds (numbers or numeric
// strings) and ISO-8601 strings.
func ParseTimestamp(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case int:
		return fromUnix(int64(x)), nil
	case int64:
		return fromUnix(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return time.Time{}, fmt.Errorf("timestamp %d out of range", x)
		}
		return fromUnix(int64(x)), nil
	case float64:
		return fromUnix(int64(x)), nil
	case json.Number:
		return parseTimestampString(x.String())
	case string:
		return parseTimestampString(x)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func parseTimestampString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromUnix(n), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromUnix(int64(f)), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func fromUnix(n int64) time.Time {
	if n < SecondsThreshold {
		n *= 1000
	}
	return time.UnixMilli(n).UTC()
}
