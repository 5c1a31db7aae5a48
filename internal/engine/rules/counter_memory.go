package rules

import (
	"context"
	"sync"
	"time"
)

type stamp struct {
	eventID string
	at      time.Time
}

type counterWindow struct {
	mu       sync.Mutex
	stamps   []stamp
	fired    []stamp // stamps consumed by a trigger, kept until they leave the window
	lastSeen time.Time
	dead     bool // removed from the map by Sweep; callers must re-fetch
}

// MemoryCounter keeps rolling windows in process memory with one lock per key.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[CounterKey]*counterWindow
	now     func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		windows: make(map[CounterKey]*counterWindow),
		now:     time.Now,
	}
}

func (c *MemoryCounter) window(key CounterKey) *counterWindow {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok {
		w = &counterWindow{}
		c.windows[key] = w
	}
	return w
}

func (c *MemoryCounter) Hit(_ context.Context, key CounterKey, eventID string, at time.Time, window time.Duration, threshold int) (HitResult, error) {
	for {
		w := c.window(key)
		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}
		res := w.hit(eventID, at, window, threshold)
		w.lastSeen = c.now()
		w.mu.Unlock()
		return res, nil
	}
}

func (w *counterWindow) hit(eventID string, at time.Time, window time.Duration, threshold int) HitResult {
	newest := at
	for _, s := range w.stamps {
		if s.at.After(newest) {
			newest = s.at
		}
	}
	for _, s := range w.fired {
		if s.at.After(newest) {
			newest = s.at
		}
	}

	cutoff := newest.Add(-window)
	w.stamps = prune(w.stamps, cutoff)
	w.fired = prune(w.fired, cutoff)

	if at.Before(cutoff) || contains(w.stamps, eventID) || contains(w.fired, eventID) {
		return HitResult{Count: len(w.stamps)}
	}
	w.stamps = append(w.stamps, stamp{eventID: eventID, at: at})

	count := len(w.stamps)
	if count >= threshold {
		w.fired = append(w.fired, w.stamps...)
		w.stamps = nil
		return HitResult{Count: count, Triggered: true}
	}
	return HitResult{Count: count}
}

func prune(stamps []stamp, cutoff time.Time) []stamp {
	kept := stamps[:0]
	for _, s := range stamps {
		if !s.at.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	return kept
}

func contains(stamps []stamp, eventID string) bool {
	for _, s := range stamps {
		if s.eventID == eventID {
			return true
		}
	}
	return false
}

// Sweep removes windows that have not been hit within idle. Windows are
// bounded by pruning on every hit; this only reclaims keys that went quiet.
func (c *MemoryCounter) Sweep(idle time.Duration) int {
	cutoff := c.now().Add(-idle)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, w := range c.windows {
		w.mu.Lock()
		if w.lastSeen.Before(cutoff) {
			w.dead = true
			delete(c.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}
