package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	apiContext "notifyd/internal/api/context"
	"notifyd/internal/pkg/errors"
	"notifyd/internal/platform/auth"
)

// RateLimiter is a per-organization token bucket refilled continuously at
// limit tokens per minute.
type RateLimiter struct {
	store sync.Map // org id -> *bucket
	limit int
	now   func() time.Time
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
	dead       bool // removed from the store by Cleanup
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{limit: perMinute, now: time.Now}
}

func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}
	now := rl.now()

	for {
		val, _ := rl.store.LoadOrStore(key, &bucket{
			tokens:     float64(rl.limit),
			lastRefill: now,
			lastAccess: now,
		})
		if allowed, live := val.(*bucket).take(now, rl.limit); live {
			return allowed
		}
	}
}

// take spends one token. live is false when Cleanup dropped the bucket
// after it was loaded; the caller must load the key again.
func (b *bucket) take(now time.Time, limit int) (allowed, live bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dead {
		return false, false
	}

	b.lastAccess = now
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * float64(limit) / 60.0
		if b.tokens > float64(limit) {
			b.tokens = float64(limit)
		}
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, true
	}
	return false, true
}

// Cleanup drops buckets untouched for idle. A dropped bucket comes back full.
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	cutoff := rl.now().Add(-idle)
	removed := 0
	rl.store.Range(func(key, value interface{}) bool {
		b := value.(*bucket)
		b.mu.Lock()
		if b.lastAccess.Before(cutoff) && rl.store.CompareAndDelete(key, b) {
			b.dead = true
			removed++
		}
		b.mu.Unlock()
		return true
	})
	return removed
}

// Run cleans idle buckets every ten minutes until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup(10 * time.Minute)
		}
	}
}

func (rl *RateLimiter) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims); ok {
			key = claims.OrganizationID
		}

		if !rl.Allow(key) {
			w.Header().Set("Retry-After", "60")
			errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimited, "Rate limit exceeded", nil)
			return
		}

		next(w, r)
	}
}
