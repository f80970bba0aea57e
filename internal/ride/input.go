package ride

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseStartTime accepts RFC 3339 timestamps and epoch milliseconds, the two
// shapes mobile clients send ride start times in.
func ParseStartTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid startTime %q: %w", v, err)
	}
	return t, nil
}

// NormalizeRating folds the client's thumbs up/down into the stored 1..5
// scale: anything truthy is 5, anything else is 1.
func NormalizeRating(v any) int {
	switch r := v.(type) {
	case bool:
		if r {
			return 5
		}
	case float64:
		if r != 0 {
			return 5
		}
	case string:
		if r != "" {
			return 5
		}
	case nil:
	default:
		return 5
	}
	return 1
}
