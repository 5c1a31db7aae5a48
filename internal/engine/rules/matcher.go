package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"notifyd/internal/engine/suppression"
	"notifyd/internal/pkg/logger"
	"notifyd/internal/platform/models"
)

type Outcome string

const (
	OutcomeMatched    Outcome = "matched"
	OutcomeCounted    Outcome = "counted"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeError      Outcome = "error"
)

type MatchResult struct {
	Rule    *models.NotificationRule `json:"-"`
	RuleID  string                   `json:"rule_id"`
	Outcome Outcome                  `json:"outcome"`
	Count   int                      `json:"count,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

func (r MatchResult) Matched() bool {
	return r.Outcome == OutcomeMatched
}

// RuleSource supplies the enabled rules for a trigger. It is read on every
// evaluation so disabling or deleting a rule applies to the next event.
type RuleSource interface {
	ListEnabledByTrigger(orgID string, trigger models.TriggerType) ([]*models.NotificationRule, error)
}

type Matcher struct {
	rules    RuleSource
	counters CounterStore
	ledger   suppression.Ledger
	log      zerolog.Logger
}

func NewMatcher(rules RuleSource, counters CounterStore, ledger suppression.Ledger) *Matcher {
	return &Matcher{
		rules:    rules,
		counters: counters,
		ledger:   ledger,
		log:      logger.Component("matcher"),
	}
}

// Evaluate runs every enabled rule for the event's trigger type and returns
// one result per rule, in ascending priority (ties by rule id).
func (m *Matcher) Evaluate(ctx context.Context, event *models.Event) ([]MatchResult, error) {
	candidates, err := m.rules.ListEnabledByTrigger(event.OrganizationID, event.TriggerType)
	if err != nil {
		return nil, fmt.Errorf("load rules for %s: %w", event.TriggerType, err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})

	results := make([]MatchResult, 0, len(candidates))
	for _, rule := range candidates {
		if !rule.Enabled || rule.TriggerType != event.TriggerType {
			continue
		}
		results = append(results, m.evaluateRule(ctx, rule, event))
	}
	return results, nil
}

func (m *Matcher) evaluateRule(ctx context.Context, rule *models.NotificationRule, event *models.Event) MatchResult {
	result := MatchResult{Rule: rule, RuleID: rule.ID}

	suppressed, err := m.ledger.IsSuppressed(ctx, rule.ID, event.ScopeKey)
	if err != nil {
		m.log.Error().Err(err).Str("rule_id", rule.ID).Str("event_id", event.ID).Msg("suppression lookup failed")
		result.Outcome, result.Error = OutcomeError, err.Error()
		return result
	}
	if suppressed {
		result.Outcome = OutcomeSuppressed
		return result
	}

	threshold := rule.Conditions.Count
	if threshold < 1 {
		threshold = 1
	}

	hit, err := m.counters.Hit(ctx, CounterKey{RuleID: rule.ID, ScopeKey: event.ScopeKey},
		event.ID, event.OccurredAt, rule.Conditions.Window(), threshold)
	if err != nil {
		m.log.Error().Err(err).Str("rule_id", rule.ID).Str("event_id", event.ID).Msg("counter update failed")
		result.Outcome, result.Error = OutcomeError, err.Error()
		return result
	}

	result.Count = hit.Count
	if hit.Triggered {
		result.Outcome = OutcomeMatched
		m.log.Info().
			Str("rule_id", rule.ID).
			Str("event_id", event.ID).
			Str("scope_key", event.ScopeKey).
			Int("count", hit.Count).
			Msg("rule matched")
	} else {
		result.Outcome = OutcomeCounted
	}
	return result
}
