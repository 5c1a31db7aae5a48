package suppression

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger keeps suppression entries in process memory.
type MemoryLedger struct {
	store sync.Map // map[rule|scope]time.Time
	now   func() time.Time
}

func NewMemoryLedger(now func() time.Time) *MemoryLedger {
	if now == nil {
		now = time.Now
	}
	return &MemoryLedger{now: now}
}

func (l *MemoryLedger) IsSuppressed(_ context.Context, ruleID, scopeKey string) (bool, error) {
	k := key(ruleID, scopeKey)
	val, ok := l.store.Load(k)
	if !ok {
		return false, nil
	}

	if l.now().After(val.(time.Time)) {
		l.store.CompareAndDelete(k, val)
		return false, nil
	}
	return true, nil
}

func (l *MemoryLedger) Suppress(_ context.Context, ruleID, scopeKey string, until time.Time) error {
	l.store.Store(key(ruleID, scopeKey), until)
	return nil
}

// Sweep drops expired entries and reports how many were removed. Reads never
// depend on it; it only bounds memory.
func (l *MemoryLedger) Sweep() int {
	now := l.now()
	removed := 0
	l.store.Range(func(k, v interface{}) bool {
		if now.After(v.(time.Time)) && l.store.CompareAndDelete(k, v) {
			removed++
		}
		return true
	})
	return removed
}
