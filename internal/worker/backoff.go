package worker

import "time"

// Delays before attempts 2, 3, 4... Retries past the table reuse the last
// delay, though with the default 3-attempt policy only the first two apply.
var retryDelays = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// RetryDelay returns how long to wait after completedAttempts attempts have
// failed before trying again.
func RetryDelay(completedAttempts int) time.Duration {
	index := completedAttempts - 1
	if index < 0 {
		index = 0
	}
	if index >= len(retryDelays) {
		index = len(retryDelays) - 1
	}
	return retryDelays[index]
}
