package mailing

import "time"

// backoffDelay returns the sleep before retry attempt n (0-based), using
// exponential growth: base, 2*base, 4*base, ... capped at maxBackoff.
// Pure function so retry pacing is testable without any I/O.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	const maxBackoff = 30 * time.Second
	if base <= 0 {
		base = time.Second
	}
	d := base << uint(attempt)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}
