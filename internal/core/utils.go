package core

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Clock returns the current time. Components take a Clock so tests can pin it.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// SystemFromWaypoint derives the system symbol from a waypoint symbol.
// Waypoints are "<system>-<suffix>" where the system is the first 7 characters.
func SystemFromWaypoint(waypoint string) string {
	if len(waypoint) <= SystemSymbolLen {
		return waypoint
	}
	return waypoint[:SystemSymbolLen]
}

// ParseTimestamp parses an API timestamp such as "2024-07-15T10:00:00.000Z".
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(APITimestampFmt, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp '%s': %w", s, err)
	}
	return t.UTC(), nil
}

// RemainingSeconds returns the whole seconds left until deadline, rounded up.
// Returns 0 when the deadline has passed.
func RemainingSeconds(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// StringField returns record[key] when it is a string.
func StringField(record map[string]interface{}, key string) string {
	if v, ok := record[key].(string); ok {
		return v
	}
	return ""
}

// IntField returns record[key] as an int. JSON numbers decode as float64,
// msgpack may hand back any integer width.
func IntField(record map[string]interface{}, key string) (int, bool) {
	switch v := record[key].(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	}
	return 0, false
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
