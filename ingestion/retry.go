package ingestion

import (
	"math/rand/v2"
	"time"
)

// MaxAttempts is how many times a job is tried before it is parked in
// the dead letter queue.
const MaxAttempts = 3

// backoffSchedule holds the base delay before each retry: the first
// retry waits about a second, the second a few seconds, the third ten.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	4 * time.Second,
	10 * time.Second,
}

// retryDelay returns the backoff before the next attempt, given how
// many attempts have already failed, with up to twenty percent jitter
// in either direction so a burst of failures doesn't retry in lockstep.
func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > len(backoffSchedule) {
		attempts = len(backoffSchedule)
	}
	base := backoffSchedule[attempts-1]

	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(base) * jitter)
}
