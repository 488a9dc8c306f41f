package limiter

import (
	"context"
	"net/http"
	"sync"
	"time"

	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/resp"
)

const (
	// DefaultAuthMaxAttempts is the number of authentication attempts admitted per window.
	DefaultAuthMaxAttempts = 5

	// DefaultAuthWindow is the length of the authentication-attempt window.
	DefaultAuthWindow = 15 * time.Minute
)

// Decision is the outcome of one authentication attempt.
type Decision struct {
	Allowed bool

	// RetryAfter is set when Allowed is false: the time until the oldest
	// admitted attempt leaves the window.
	RetryAfter time.Duration
}

// AuthThrottle limits authentication attempts per source address over a
// sliding window. Rejected attempts are not recorded.
type AuthThrottle interface {
	Attempt(ctx context.Context, key string) (Decision, error)
}

// MemoryAuthThrottle is a sliding-window AuthThrottle held in process memory.
// It keeps the admission times of each key, oldest first.
type MemoryAuthThrottle struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	max      int
	window   time.Duration
	now      func() time.Time
}

var _ AuthThrottle = (*MemoryAuthThrottle)(nil)

// NewMemoryAuthThrottle admits max attempts per key in any span of window.
func NewMemoryAuthThrottle(max int, window time.Duration) *MemoryAuthThrottle {
	return &MemoryAuthThrottle{
		attempts: make(map[string][]time.Time),
		max:      max,
		window:   window,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (m *MemoryAuthThrottle) WithClock(now func() time.Time) *MemoryAuthThrottle {
	m.now = now
	return m
}

// inWindow drops the admissions that are older than window at now.
func inWindow(admitted []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(admitted) && !admitted[i].After(cutoff) {
		i++
	}
	return admitted[i:]
}

// Attempt implements AuthThrottle.
func (m *MemoryAuthThrottle) Attempt(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	admitted := inWindow(m.attempts[key], now, m.window)

	if len(admitted) >= m.max {
		m.attempts[key] = admitted
		return Decision{RetryAfter: admitted[0].Add(m.window).Sub(now)}, nil
	}

	m.attempts[key] = append(admitted, now)
	return Decision{Allowed: true}, nil
}

// Sweep drops keys with no admission left in the window and returns how many
// were removed. Attempt prunes lazily, so sweeping only bounds memory.
func (m *MemoryAuthThrottle) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, admitted := range m.attempts {
		if len(inWindow(admitted, now, m.window)) == 0 {
			delete(m.attempts, key)
			removed++
		}
	}
	return removed
}

// Run sweeps expired windows until ctx is done.
func (m *MemoryAuthThrottle) Run(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// AuthMiddleware rejects requests whose source address is over the attempt
// budget with 429 and a Retry-After. Throttle backend failures let the request through.
func AuthMiddleware(t AuthThrottle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)

			decision, err := t.Attempt(r.Context(), "auth:"+ip)
			if err != nil {
				logx.Error(err, "Auth throttle unavailable, admitting request", "ip", logx.AnonymizeIP(ip))
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				logx.Warn("Authentication attempts exceeded", "ip", logx.AnonymizeIP(ip), "retry_after", decision.RetryAfter.String())
				resp.RespondRetryAfter(w, r, errs.NewError(errs.ErrTooManyAuthAttempts), decision.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
