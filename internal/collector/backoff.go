package collector

import "time"

// Backoff produces exponentially growing delays: Base, 2*Base, 4*Base, ...
// capped at Max. It is not safe for concurrent use; each poller owns one.
type Backoff struct {
	Base     time.Duration
	Max      time.Duration
	attempts int
}

// NewBackoff creates a Backoff.
func NewBackoff(base, max time.Duration) *Backoff {
	return &Backoff{Base: base, Max: max}
}

// Next returns the delay for the current consecutive failure and advances.
func (b *Backoff) Next() time.Duration {
	d := b.Max
	if b.attempts < 32 {
		if v := b.Base << uint(b.attempts); v > 0 && v < b.Max {
			d = v
		}
	}
	b.attempts++
	return d
}

// Reset clears the failure count after a success.
func (b *Backoff) Reset() { b.attempts = 0 }

// Attempts is the number of consecutive failures seen.
func (b *Backoff) Attempts() int { return b.attempts }
