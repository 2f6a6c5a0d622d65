package retry

import "time"

// Backoff yields growing delays for polling loops that never give up.
// Not safe for concurrent use.
type Backoff struct {
	cfg     Config
	attempt int
}

// NewBackoff creates a Backoff from cfg. MaxAttempts is ignored.
func NewBackoff(cfg Config) *Backoff {
	cfg.normalize()
	return &Backoff{cfg: cfg}
}

// Next returns the next delay and advances the attempt counter.
func (b *Backoff) Next() time.Duration {
	d := b.cfg.Delay(b.attempt)
	if d < b.cfg.MaxDelay {
		b.attempt++
	}
	return d
}

// Reset starts over from InitialDelay.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempt
}
