// Package events is the entry point of the engine: it validates inbound
// domain events, evaluates rules and dispatches the actions of matched rules.
package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"notifyd/internal/engine/actions"
	"notifyd/internal/engine/rules"
	apperrors "notifyd/internal/pkg/errors"
	"notifyd/internal/pkg/logger"
	"notifyd/internal/pkg/metrics"
	"notifyd/internal/platform/models"
)

// maxClockSkew is how far in the future a producer's occurred_at may be.
const maxClockSkew = 5 * time.Minute

type RuleResult struct {
	rules.MatchResult
	Actions []actions.ActionOutcome `json:"actions,omitempty"`
}

type ProcessResult struct {
	EventID string       `json:"event_id"`
	Rules   []RuleResult `json:"rules"`
}

// Matched returns the number of rules that fired for the event.
func (r *ProcessResult) Matched() int {
	n := 0
	for _, rr := range r.Rules {
		if rr.Matched() {
			n++
		}
	}
	return n
}

type Processor struct {
	matcher    *rules.Matcher
	dispatcher *actions.Dispatcher
	metrics    *metrics.Metrics
	log        zerolog.Logger
	now        func() time.Time
}

func NewProcessor(matcher *rules.Matcher, dispatcher *actions.Dispatcher, m *metrics.Metrics) *Processor {
	return &Processor{
		matcher:    matcher,
		dispatcher: dispatcher,
		metrics:    m,
		log:        logger.Component("processor"),
		now:        time.Now,
	}
}

// Normalize fills defaults and rejects events the matcher cannot key.
func (p *Processor) Normalize(event *models.Event) error {
	event.OrganizationID = strings.TrimSpace(event.OrganizationID)
	event.ScopeKey = strings.TrimSpace(event.ScopeKey)

	if event.OrganizationID == "" {
		return apperrors.Invalid("organization_id", "is required")
	}
	if !event.TriggerType.Valid() {
		return apperrors.Invalid("trigger_type", "unknown trigger type %q", event.TriggerType)
	}
	if event.ScopeKey == "" {
		return apperrors.Invalid("scope_key", "is required")
	}
	if event.ID == "" {
		event.ID = "evt_" + uuid.New().String()
	}
	now := p.now()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	if event.OccurredAt.After(now.Add(maxClockSkew)) {
		return apperrors.Invalid("occurred_at", "is more than %s in the future", maxClockSkew)
	}
	return nil
}

// Process evaluates the event and dispatches matched rules in evaluation
// order through one shared pass. Action failures are reported in the result;
// only an invalid event or an unreadable rule set returns an error.
func (p *Processor) Process(ctx context.Context, event *models.Event) (*ProcessResult, error) {
	if err := p.Normalize(event); err != nil {
		return nil, err
	}

	matches, err := p.matcher.Evaluate(ctx, event)
	if err != nil {
		return nil, err
	}
	p.metrics.EventsProcessed.WithLabelValues(string(event.TriggerType)).Inc()

	result := &ProcessResult{EventID: event.ID, Rules: make([]RuleResult, 0, len(matches))}
	pass := actions.NewPass()
	for _, match := range matches {
		p.metrics.RuleEvaluations.WithLabelValues(string(match.Outcome)).Inc()

		rr := RuleResult{MatchResult: match}
		if match.Matched() {
			rr.Actions = p.dispatcher.Dispatch(ctx, match.Rule, event, pass)
		}
		result.Rules = append(result.Rules, rr)
	}

	p.log.Debug().
		Str("event_id", event.ID).
		Str("trigger_type", string(event.TriggerType)).
		Str("scope_key", event.ScopeKey).
		Int("rules", len(result.Rules)).
		Int("matched", result.Matched()).
		Msg("event processed")

	return result, nil
}
