package rules

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func counterStores(t *testing.T) map[string]CounterStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]CounterStore{
		"memory": NewMemoryCounter(),
		"redis":  NewRedisCounter(client, "test"),
	}
}

func TestCounterStore_ResetsOnTrigger(t *testing.T) {
	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := CounterKey{RuleID: "rule_1", ScopeKey: "agent-a"}
			window := time.Hour

			minutes := []int{0, 20, 40, 45}
			want := []HitResult{{Count: 1}, {Count: 2}, {Count: 3, Triggered: true}, {Count: 1}}
			for i, m := range minutes {
				got, err := store.Hit(ctx, key, fmt.Sprintf("evt_%d", i), t0.Add(time.Duration(m)*time.Minute), window, 3)
				if err != nil {
					t.Fatalf("Hit() error = %v", err)
				}
				if got != want[i] {
					t.Errorf("t=%dm: Hit() = %+v, want %+v", m, got, want[i])
				}
			}
		})
	}
}

func TestCounterStore_PrunesAndDedupes(t *testing.T) {
	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := CounterKey{RuleID: "rule_1", ScopeKey: "agent-a"}

			store.Hit(ctx, key, "evt_1", t0, 10*time.Minute, 5)
			store.Hit(ctx, key, "evt_2", t0.Add(5*time.Minute), 10*time.Minute, 5)

			got, _ := store.Hit(ctx, key, "evt_2", t0.Add(5*time.Minute), 10*time.Minute, 5)
			if got.Count != 2 {
				t.Errorf("duplicate hit count = %d, want 2", got.Count)
			}

			got, _ = store.Hit(ctx, key, "evt_3", t0.Add(12*time.Minute), 10*time.Minute, 5)
			if got.Count != 2 {
				t.Errorf("count after evt_1 left the window = %d, want 2", got.Count)
			}
		})
	}
}

func TestCounterStore_WindowAnchoredAtNewestEvent(t *testing.T) {
	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := CounterKey{RuleID: "rule_1", ScopeKey: "agent-a"}

			store.Hit(ctx, key, "evt_new", t0.Add(5*time.Hour), time.Hour, 2)
			got, err := store.Hit(ctx, key, "evt_late", t0, time.Hour, 2)
			if err != nil {
				t.Fatalf("Hit() error = %v", err)
			}
			if got.Triggered || got.Count != 1 {
				t.Errorf("late hit = %+v, want untriggered count 1", got)
			}

			got, _ = store.Hit(ctx, key, "evt_near", t0.Add(4*time.Hour+30*time.Minute), time.Hour, 2)
			if !got.Triggered || got.Count != 2 {
				t.Errorf("in-window hit = %+v, want triggered count 2", got)
			}
		})
	}
}

func TestCounterStore_TriggeredIDsNotRecounted(t *testing.T) {
	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := CounterKey{RuleID: "rule_1", ScopeKey: "agent-a"}

			store.Hit(ctx, key, "evt_1", t0, time.Hour, 2)
			if got, _ := store.Hit(ctx, key, "evt_2", t0.Add(time.Minute), time.Hour, 2); !got.Triggered {
				t.Fatalf("second hit = %+v, want triggered", got)
			}

			for _, id := range []string{"evt_1", "evt_2"} {
				if got, _ := store.Hit(ctx, key, id, t0.Add(time.Minute), time.Hour, 2); got.Triggered || got.Count != 0 {
					t.Errorf("redelivered %s = %+v, want untriggered count 0", id, got)
				}
			}

			// Once the triggering events leave the window their ids are forgotten.
			if got, _ := store.Hit(ctx, key, "evt_1", t0.Add(3*time.Hour), time.Hour, 2); got.Count != 1 {
				t.Errorf("id reused after the window = %+v, want count 1", got)
			}
		})
	}
}

func TestCounterStore_ConcurrentHitsTriggerOnce(t *testing.T) {
	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := CounterKey{RuleID: "rule_1", ScopeKey: "agent-a"}

			var triggered int32
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := store.Hit(ctx, key, fmt.Sprintf("evt_%d", i), t0.Add(time.Duration(i)*time.Second), time.Hour, 5)
					if err != nil {
						t.Errorf("Hit() error = %v", err)
						return
					}
					if res.Triggered {
						atomic.AddInt32(&triggered, 1)
					}
				}(i)
			}
			wg.Wait()

			if triggered != 2 {
				t.Errorf("triggered %d times for 10 events with threshold 5, want 2", triggered)
			}
		})
	}
}

func TestMemoryCounter_Sweep(t *testing.T) {
	c := NewMemoryCounter()
	now := t0
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Hit(ctx, CounterKey{RuleID: "rule_1", ScopeKey: "a"}, "evt_1", now, time.Hour, 5)
	now = now.Add(2 * time.Hour)
	c.Hit(ctx, CounterKey{RuleID: "rule_1", ScopeKey: "b"}, "evt_2", now, time.Hour, 5)

	if removed := c.Sweep(time.Hour); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}

	res, _ := c.Hit(ctx, CounterKey{RuleID: "rule_1", ScopeKey: "b"}, "evt_3", now, time.Hour, 5)
	if res.Count != 2 {
		t.Errorf("surviving window count = %d, want 2", res.Count)
	}
}
