package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apiContext "notifyd/internal/api/context"
	"notifyd/internal/platform/auth"
	"notifyd/internal/platform/config"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestAuthMiddleware(t *testing.T) {
	tokens := auth.NewTokenService(config.JWTConfig{Secret: "test-secret", Issuer: "notifyd"})
	valid, err := tokens.IssueToken("usr_1", "org_1", auth.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	mw := NewAuthMiddleware(tokens)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			mw.Handle(func(w http.ResponseWriter, r *http.Request) {
				claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
				if claims.OrganizationID != "org_1" {
					t.Errorf("OrganizationID = %s, want org_1", claims.OrganizationID)
				}
				okHandler(w, r)
			})(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		role string
		want int
	}{
		{auth.RoleOwner, http.StatusOK},
		{auth.RoleAdmin, http.StatusOK},
		{auth.RoleMember, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), apiContext.Claims, &auth.Claims{Role: tt.role}))
			rr := httptest.NewRecorder()

			RequireRole(auth.RoleAdmin, auth.RoleOwner)(okHandler)(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}

	rr := httptest.NewRecorder()
	RequireRole(auth.RoleAdmin)(okHandler)(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status without claims = %d, want 401", rr.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2)
	rl.now = func() time.Time { return now }

	if !rl.Allow("org_1") || !rl.Allow("org_1") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("org_1") {
		t.Error("third request within the minute should be limited")
	}
	if !rl.Allow("org_2") {
		t.Error("limits leaked across organizations")
	}

	now = now.Add(30 * time.Second)
	if !rl.Allow("org_1") {
		t.Error("bucket did not refill after 30s")
	}

	now = now.Add(time.Hour)
	if removed := rl.Cleanup(10 * time.Minute); removed != 2 {
		t.Errorf("Cleanup() removed %d, want 2", removed)
	}

	if !NewRateLimiter(0).Allow("any") {
		t.Error("a zero limit should disable limiting")
	}
}

func TestRateLimiter_CleanupDoesNotOrphanBuckets(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1)
	rl.now = func() time.Time { return now }

	if !rl.Allow("org_1") {
		t.Fatal("first request should pass")
	}
	val, _ := rl.store.Load("org_1")
	stale := val.(*bucket)

	now = now.Add(time.Hour)
	if removed := rl.Cleanup(10 * time.Minute); removed != 1 {
		t.Fatalf("Cleanup() removed %d, want 1", removed)
	}

	// A request that loaded the bucket before Cleanup must not spend from it.
	if _, live := stale.take(now, rl.limit); live {
		t.Error("take() on a removed bucket reported live")
	}
	if !rl.Allow("org_1") {
		t.Error("request after cleanup should get a fresh bucket")
	}
	if rl.Allow("org_1") {
		t.Error("fresh bucket granted more than the limit")
	}

	// Touched after the cutoff: kept.
	now = now.Add(5 * time.Minute)
	if removed := rl.Cleanup(10 * time.Minute); removed != 0 {
		t.Errorf("Cleanup() removed %d active buckets", removed)
	}
}

func TestRateLimiter_ConcurrentCleanup(t *testing.T) {
	rl := NewRateLimiter(1000)
	var wg sync.WaitGroup
	var allowed int64

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if rl.Allow("org_1") {
					atomic.AddInt64(&allowed, 1)
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		rl.Cleanup(time.Hour)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&allowed); got != 800 {
		t.Errorf("allowed = %d, want 800 under the limit", got)
	}
}

func TestRateLimiter_Handle(t *testing.T) {
	rl := NewRateLimiter(1)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), apiContext.Claims, &auth.Claims{OrganizationID: "org_1"}))

	first := httptest.NewRecorder()
	rl.Handle(okHandler)(first, req)
	second := httptest.NewRecorder()
	rl.Handle(okHandler)(second, req)

	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Errorf("statuses = %d, %d; want 200, 429", first.Code, second.Code)
	}
	if !strings.Contains(second.Body.String(), `"RATE_LIMITED"`) {
		t.Errorf("body = %s, want RATE_LIMITED code", second.Body.String())
	}
	if second.Header().Get("Retry-After") != "60" {
		t.Error("missing Retry-After header")
	}
}
