package dispatch

import "time"

const maxShift = 20

// Backoff returns base * 2^attempt, where attempt counts the failures before
// the one being rescheduled (0 for the first failure).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxShift {
		attempt = maxShift
	}
	return base << uint(attempt)
}
