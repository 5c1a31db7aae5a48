// Package suppression holds the short-lived mutes written by suppress actions.
// Entries are advisory: the rule matcher consults them before counting an
// event, and they expire lazily on read.
package suppression

import (
	"context"
	"time"
)

type Ledger interface {
	IsSuppressed(ctx context.Context, ruleID, scopeKey string) (bool, error)
	// Suppress sets (or overwrites) the expiry for the pair; it never stacks.
	Suppress(ctx context.Context, ruleID, scopeKey string, until time.Time) error
}

func key(ruleID, scopeKey string) string {
	return ruleID + "|" + scopeKey
}
