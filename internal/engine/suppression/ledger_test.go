package suppression

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryLedger_ExpiresLazily(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	ledger := NewMemoryLedger(clock.Now)
	ctx := context.Background()

	if err := ledger.Suppress(ctx, "rule_1", "agent-a", clock.Now().Add(30*time.Minute)); err != nil {
		t.Fatalf("Suppress() error = %v", err)
	}

	clock.Advance(29 * time.Minute)
	if ok, _ := ledger.IsSuppressed(ctx, "rule_1", "agent-a"); !ok {
		t.Error("expected suppression to be active at 29m")
	}
	if ok, _ := ledger.IsSuppressed(ctx, "rule_1", "agent-b"); ok {
		t.Error("suppression leaked to another scope")
	}
	if ok, _ := ledger.IsSuppressed(ctx, "rule_2", "agent-a"); ok {
		t.Error("suppression leaked to another rule")
	}

	clock.Advance(2 * time.Minute)
	if ok, _ := ledger.IsSuppressed(ctx, "rule_1", "agent-a"); ok {
		t.Error("expected suppression to have expired at 31m")
	}
}

func TestMemoryLedger_SuppressOverwrites(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	ledger := NewMemoryLedger(clock.Now)
	ctx := context.Background()

	ledger.Suppress(ctx, "rule_1", "agent-a", clock.Now().Add(10*time.Minute))
	ledger.Suppress(ctx, "rule_1", "agent-a", clock.Now().Add(20*time.Minute))

	clock.Advance(15 * time.Minute)
	if ok, _ := ledger.IsSuppressed(ctx, "rule_1", "agent-a"); !ok {
		t.Error("second Suppress should have extended the expiry")
	}
	clock.Advance(6 * time.Minute)
	if ok, _ := ledger.IsSuppressed(ctx, "rule_1", "agent-a"); ok {
		t.Error("entries must not stack past the latest expiry")
	}
}

func TestMemoryLedger_Sweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	ledger := NewMemoryLedger(clock.Now)
	ctx := context.Background()

	ledger.Suppress(ctx, "rule_1", "a", clock.Now().Add(time.Minute))
	ledger.Suppress(ctx, "rule_1", "b", clock.Now().Add(time.Hour))

	clock.Advance(2 * time.Minute)
	if removed := ledger.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if ok, _ := ledger.IsSuppressed(ctx, "rule_1", "b"); !ok {
		t.Error("unexpired entry was swept")
	}
}

func TestRedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ledger := NewRedisLedger(client, "test")
	ctx := context.Background()

	if err := ledger.Suppress(ctx, "rule_1", "agent-a", time.Now().Add(30*time.Minute)); err != nil {
		t.Fatalf("Suppress() error = %v", err)
	}
	if ok, err := ledger.IsSuppressed(ctx, "rule_1", "agent-a"); err != nil || !ok {
		t.Fatalf("IsSuppressed() = %v, %v; want true", ok, err)
	}

	mr.FastForward(31 * time.Minute)
	if ok, _ := ledger.IsSuppressed(ctx, "rule_1", "agent-a"); ok {
		t.Error("expected redis entry to expire")
	}
}

func TestRedisLedger_PastExpiryClears(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ledger := NewRedisLedger(client, "test")
	ctx := context.Background()

	ledger.Suppress(ctx, "rule_1", "agent-a", time.Now().Add(time.Hour))
	if err := ledger.Suppress(ctx, "rule_1", "agent-a", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Suppress() error = %v", err)
	}
	if ok, _ := ledger.IsSuppressed(ctx, "rule_1", "agent-a"); ok {
		t.Error("expiry in the past should clear the entry")
	}
}
