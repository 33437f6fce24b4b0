package dispatch

import (
	"math/rand"
	"time"
)

// backoff returns the exponential retry delay for the given attempt count:
// 1s, 2s, 4s, 8s, ... capped at max.
func backoff(attempts int, max time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// jitter returns a random duration in [0, max) to spread retries out.
func jitter(r *rand.Rand, max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(r.Int63n(int64(max)))
}
