package rules

import (
	"context"
	"time"
)

// CounterKey narrows a rule's "count in window" condition to one scope.
type CounterKey struct {
	RuleID   string
	ScopeKey string
}

type HitResult struct {
	Count     int  // events inside the window after this hit (before any reset)
	Triggered bool // threshold reached; the window has been reset
}

// CounterStore implementations must make Hit atomic per key: append, prune
// and the conditional reset happen as one step.
type CounterStore interface {
	// Hit records eventID at time at, drops entries older than window before
	// the newest time seen for the key, and resets the key when the remaining
	// count reaches threshold. An event older than that window is not counted.
	// Recording the same eventID twice for a key counts it once, including
	// after a reset while the triggering events are still inside the window.
	Hit(ctx context.Context, key CounterKey, eventID string, at time.Time, window time.Duration, threshold int) (HitResult, error)
}
