/*
Package limiter provides the rate limiting policies of the server.

KeyedLimiter keeps one token bucket (rate.Limiter) per key and backs both the
per-IP HTTP limiter and the per-identity command throttle. AuthThrottle is the
sliding-window authentication-attempt policy, with an in-process and a Redis
implementation.
*/
package limiter

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/resp"
)

// cleanupInterval is how often idle buckets are swept.
const cleanupInterval = 3 * time.Minute

// KeyedLimiter implements a token bucket per key.
type KeyedLimiter struct {
	// mu is used to protect concurrent access to the limits map.
	mu sync.RWMutex

	// limits stores the map from key to its *rate.Limiter instance.
	limits map[string]*rate.Limiter

	// r is the rate (rate.Limit) of each bucket.
	r rate.Limit

	// b is the burst size of each bucket.
	b int

	now func() time.Time
}

// NewKeyedLimiter creates a KeyedLimiter with rate r and burst b per key.
// Call Run to start sweeping idle buckets.
func NewKeyedLimiter(r rate.Limit, b int) *KeyedLimiter {
	return &KeyedLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Tests use it to drive buckets without sleeping.
func (k *KeyedLimiter) WithClock(now func() time.Time) *KeyedLimiter {
	k.now = now
	return k
}

// GetLimiter retrieves the bucket of key, creating it on first use.
// It uses double-checked locking so that concurrent first uses share one bucket.
func (k *KeyedLimiter) GetLimiter(key string) *rate.Limiter {
	k.mu.RLock()
	limiter, exists := k.limits[key]
	k.mu.RUnlock()

	if !exists {
		k.mu.Lock()
		limiter, exists = k.limits[key]
		if !exists {
			limiter = rate.NewLimiter(k.r, k.b)
			k.limits[key] = limiter
		}
		k.mu.Unlock()
	}

	return limiter
}

// Allow reports whether one event for key may happen now and consumes a token if so.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.GetLimiter(key).AllowN(k.now(), 1)
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.limits)
}

// Run sweeps idle buckets every few minutes until ctx is done.
func (k *KeyedLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, remaining := k.Sweep()
			logx.Debug("Rate limiter cleanup finished", "removed", removed, "remaining", remaining)
		}
	}
}

// Sweep removes every bucket that is full again, which means its key has been idle.
func (k *KeyedLimiter) Sweep() (removed, remaining int) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	for key, limiter := range k.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(k.limits, key)
			removed++
		}
	}
	return removed, len(k.limits)
}

// Middleware rejects requests whose client IP has exhausted its bucket with 429.
func (k *KeyedLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !k.Allow(ClientIP(r)) {
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the host part of the request's remote address.
// chi's RealIP middleware runs first, so proxies are already accounted for.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	if ip == "" {
		ip = "unknown_ip"
	}
	return ip
}
