package connection

import "time"

// BackoffDelay returns the wait before reconnect attempt number attempt
// (zero-based): base·2^attempt, capped at max.
func BackoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		if delay >= max {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}
