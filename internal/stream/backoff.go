package stream

import "time"

const (
	defaultBackoffBase    = 1 * time.Second
	defaultBackoffCeiling = 10 * time.Second
)

// Backoff computes the reconnect delay for a given attempt number:
// base doubled per attempt, clamped to the ceiling. It holds no state;
// the caller resets the attempt counter on a successful connection.
type Backoff struct {
	Base    time.Duration
	Ceiling time.Duration
}

// Delay returns the delay before reconnect attempt n (zero-based).
// Deterministic for a given n; negative n is treated as 0.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = defaultBackoffBase
	}
	ceiling := b.Ceiling
	if ceiling <= 0 {
		ceiling = defaultBackoffCeiling
	}
	if attempt < 0 {
		attempt = 0
	}
	// Past ~30 doublings the shift would overflow long before any
	// realistic ceiling is involved.
	if attempt > 30 {
		return ceiling
	}
	d := base << uint(attempt)
	if d <= 0 || d > ceiling {
		return ceiling
	}
	return d
}
