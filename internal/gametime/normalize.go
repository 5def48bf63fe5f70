package gametime

import "time"

// Remaining returns the seconds left until end, or 0 once end has passed.
func Remaining(end, now time.Duration) float64 {
	left := end - now
	if left <= 0 {
		return 0
	}
	return left.Seconds()
}

// EndTime turns a stored remaining duration (seconds) back into an end time
// on the current clock.
func EndTime(remaining float64, now time.Duration) time.Duration {
	if remaining <= 0 {
		return now
	}
	return now + time.Duration(remaining*float64(time.Second))
}

// Persistable reports whether a remaining duration is worth a row.
func Persistable(remaining float64) bool {
	return remaining > 0
}
