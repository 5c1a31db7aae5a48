package actions

import (
	"sync"

	"notifyd/internal/platform/models"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

type ActionOutcome struct {
	Index       int               `json:"index"`
	Type        models.ActionType `json:"type"`
	Status      Status            `json:"status"`
	Target      string            `json:"target,omitempty"`
	Error       string            `json:"error,omitempty"`
	DeliveryIDs []string          `json:"delivery_ids,omitempty"`
}

// Pass is the dispatch scope of one event across every rule it matched.
// Rules must be dispatched through it in evaluation order.
type Pass struct {
	mu    sync.Mutex
	muted map[string]string // effect key -> id of the rule that muted it
}

func NewPass() *Pass {
	return &Pass{muted: make(map[string]string)}
}

func (p *Pass) mute(key, ruleID string) {
	if p == nil || key == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.muted[key]; !ok {
		p.muted[key] = ruleID
	}
}

// mutedBy reports the rule that muted key, ignoring mutes set by ruleID itself.
func (p *Pass) mutedBy(key, ruleID string) (string, bool) {
	if p == nil || key == "" {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	by, ok := p.muted[key]
	if !ok || by == ruleID {
		return "", false
	}
	return by, true
}
