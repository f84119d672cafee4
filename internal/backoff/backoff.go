// Package backoff computes capped exponential delays.
package backoff

import "time"

// Exponential returns base·2^(attempt-1), capped at max. Attempts below 1 are
// treated as 1; a non-positive max disables the cap.
func Exponential(base time.Duration, attempt int, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		if max > 0 && d >= max {
			return max
		}
		if d > time.Duration(1<<62)/2 {
			break
		}
		d *= 2
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
