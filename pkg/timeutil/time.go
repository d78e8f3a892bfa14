package timeutil

import "time"

// Clock returns the current instant. Services take one so tests can pin time.
type Clock func() time.Time

// Now returns the current time in UTC, truncated to the microsecond precision
// Postgres stores, so values survive a round trip unchanged
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Fixed returns a Clock that always reports t
func Fixed(t time.Time) Clock {
	t = t.UTC()
	return func() time.Time { return t }
}

// ParseDate parses value with layout and returns it in UTC. The cron
// settlement endpoint uses it for period_end.
func ParseDate(layout, value string) (time.Time, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// StartOfDay returns the start of the day (midnight) in UTC
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// PreviousWindow returns the half-open window [end-length, end) where end is
// the start of the day containing t. Daily settlement uses length = 24h.
func PreviousWindow(t time.Time, length time.Duration) (time.Time, time.Time) {
	end := StartOfDay(t)
	return end.Add(-length), end
}
