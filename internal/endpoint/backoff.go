package endpoint

import "time"

// Backoff holds the two reconnect delays of the endpoint. Retries are
// unbounded: the endpoint has no other recovery path.
type Backoff struct {
	Retry  time.Duration // after a failed connect attempt
	Redial time.Duration // after an established connection drops
}

// DefaultBackoff matches the timing of the device firmware.
var DefaultBackoff = Backoff{Retry: 2 * time.Second, Redial: time.Second}

// Delay returns the wait before the next connect, given the number of
// consecutive failed attempts. Zero means the previous connection was
// established and has just been lost.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return b.Redial
	}
	return b.Retry
}
