package limiter

import (
	"time"

	"golang.org/x/time/rate"
)

// DefaultCommandCooldown is the minimum spacing between two room commands
// of the same kind from one identity.
const DefaultCommandCooldown = 2 * time.Second

// CommandThrottle enforces a minimum spacing per (identity, command kind).
// A throttled command is meant to be dropped without feedback.
type CommandThrottle struct {
	buckets *KeyedLimiter
}

// NewCommandThrottle creates a throttle that admits one command per cooldown.
func NewCommandThrottle(cooldown time.Duration) *CommandThrottle {
	return &CommandThrottle{buckets: NewKeyedLimiter(rate.Every(cooldown), 1)}
}

// WithClock replaces the time source.
func (t *CommandThrottle) WithClock(now func() time.Time) *CommandThrottle {
	t.buckets.WithClock(now)
	return t
}

// Allow records an invocation of kind by identity and reports whether it is admitted.
func (t *CommandThrottle) Allow(identity, kind string) bool {
	return t.buckets.Allow(identity + ":" + kind)
}

// Limiter exposes the underlying buckets so the caller can run their sweep.
func (t *CommandThrottle) Limiter() *KeyedLimiter {
	return t.buckets
}
