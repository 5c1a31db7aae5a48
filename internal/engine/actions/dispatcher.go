package actions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"notifyd/internal/engine/channels"
	"notifyd/internal/engine/suppression"
	"notifyd/internal/engine/webhooks"
	"notifyd/internal/pkg/logger"
	"notifyd/internal/pkg/metrics"
	"notifyd/internal/platform/models"
)

type ChannelSender interface {
	Send(ctx context.Context, channelID string, msg channels.Message) error
}

type WebhookDispatcher interface {
	Enqueue(ctx context.Context, target webhooks.Target, event *models.Event, ruleID string) ([]string, error)
	Probe(ctx context.Context, target webhooks.Target, event *models.Event) error
}

var triggerTitles = map[models.TriggerType]string{
	models.TriggerBackupFailed:         "Backup failed",
	models.TriggerBackupCompleted:      "Backup completed",
	models.TriggerAgentOffline:         "Agent offline",
	models.TriggerAgentOnline:          "Agent back online",
	models.TriggerSLABreach:            "SLA breached",
	models.TriggerMaintenanceStarted:   "Maintenance started",
	models.TriggerMaintenanceEnded:     "Maintenance ended",
	models.TriggerStorageQuotaExceeded: "Storage quota exceeded",
}

// Dispatcher executes the actions of matched rules.
type Dispatcher struct {
	channels ChannelSender
	webhooks WebhookDispatcher
	ledger   suppression.Ledger
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

func NewDispatcher(ch ChannelSender, wh WebhookDispatcher, ledger suppression.Ledger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		channels: ch,
		webhooks: wh,
		ledger:   ledger,
		metrics:  m,
		log:      logger.Component("dispatcher"),
		now:      time.Now,
	}
}

// Dispatch runs every action of a fired rule in list order. A suppress
// action only affects future events, so it never stops its siblings; it does
// mute the rule's escalate and webhook targets for lower priority rules
// dispatched later in the same pass. Failures are reported per action.
func (d *Dispatcher) Dispatch(ctx context.Context, rule *models.NotificationRule, event *models.Event, pass *Pass) []ActionOutcome {
	resolved, outcomes := d.resolveAll(rule)

	for i, action := range resolved {
		if action == nil {
			continue
		}
		out := &outcomes[i]

		if by, muted := pass.mutedBy(effectKey(action, event.TriggerType), rule.ID); muted {
			out.Status = StatusSkipped
			out.Error = fmt.Sprintf("muted by higher priority rule %s", by)
			d.record(rule, event, *out)
			continue
		}

		switch a := action.(type) {
		case NotifyChannel:
			out.Target = "channel:" + a.ChannelID
			d.finish(out, d.channels.Send(ctx, a.ChannelID, d.message(rule, event, a.Message, false)))

		case Escalate:
			out.Target = "channel:" + a.ChannelID
			d.finish(out, d.channels.Send(ctx, a.ChannelID, d.message(rule, event, a.Message, true)))

		case Suppress:
			until := d.now().Add(a.Duration)
			out.Target = fmt.Sprintf("%s/%s until %s", rule.ID, event.ScopeKey, until.UTC().Format(time.RFC3339))
			err := d.ledger.Suppress(ctx, rule.ID, event.ScopeKey, until)
			d.finish(out, err)
			if err == nil {
				for _, sibling := range resolved {
					if sibling != nil {
						pass.mute(effectKey(sibling, event.TriggerType), rule.ID)
					}
				}
			}

		case Webhook:
			out.Target = effectKey(a, event.TriggerType)
			ids, err := d.webhooks.Enqueue(ctx, webhooks.Target{
				OrganizationID: rule.OrganizationID,
				EndpointID:     a.EndpointID,
				URL:            a.URL,
			}, event, rule.ID)
			out.DeliveryIDs = ids
			d.finish(out, err)

		default:
			d.finish(out, fmt.Errorf("unsupported action %T", action))
		}

		d.record(rule, event, *out)
	}
	return outcomes
}

// TestFire runs a rule's actions against a synthetic event. A suppress
// action is not persisted and skips every action after it; webhooks are
// probed with one synchronous attempt and leave no delivery records.
func (d *Dispatcher) TestFire(ctx context.Context, rule *models.NotificationRule) []ActionOutcome {
	event := &models.Event{
		ID:             "evt_test_" + uuid.New().String(),
		OrganizationID: rule.OrganizationID,
		TriggerType:    rule.TriggerType,
		ScopeKey:       "rule-test",
		OccurredAt:     d.now(),
		Data:           map[string]interface{}{"test": true, "rule_id": rule.ID},
	}

	resolved, outcomes := d.resolveAll(rule)
	suppressedAt := -1

	for i, action := range resolved {
		if action == nil {
			continue
		}
		out := &outcomes[i]

		if suppressedAt >= 0 {
			out.Status = StatusSkipped
			out.Error = fmt.Sprintf("suppressed by action %d", suppressedAt)
			continue
		}

		switch a := action.(type) {
		case NotifyChannel:
			out.Target = "channel:" + a.ChannelID
			d.finish(out, d.channels.Send(ctx, a.ChannelID, d.testMessage(rule, event, a.Message, false)))

		case Escalate:
			out.Target = "channel:" + a.ChannelID
			d.finish(out, d.channels.Send(ctx, a.ChannelID, d.testMessage(rule, event, a.Message, true)))

		case Suppress:
			out.Target = fmt.Sprintf("%s for %s (not persisted)", rule.ID, a.Duration)
			out.Status = StatusSucceeded
			suppressedAt = i

		case Webhook:
			out.Target = effectKey(a, event.TriggerType)
			d.finish(out, d.webhooks.Probe(ctx, webhooks.Target{
				OrganizationID: rule.OrganizationID,
				EndpointID:     a.EndpointID,
				URL:            a.URL,
			}, event))

		default:
			d.finish(out, fmt.Errorf("unsupported action %T", action))
		}
	}
	return outcomes
}

func (d *Dispatcher) resolveAll(rule *models.NotificationRule) ([]Action, []ActionOutcome) {
	resolved := make([]Action, len(rule.Actions))
	outcomes := make([]ActionOutcome, len(rule.Actions))
	for i, raw := range rule.Actions {
		outcomes[i] = ActionOutcome{Index: i, Type: raw.Type}
		action, err := Resolve(raw)
		if err != nil {
			outcomes[i].Status = StatusFailed
			outcomes[i].Error = err.Error()
			d.metrics.ActionsExecuted.WithLabelValues(string(raw.Type), string(StatusFailed)).Inc()
			continue
		}
		resolved[i] = action
	}
	return resolved, outcomes
}

func (d *Dispatcher) finish(out *ActionOutcome, err error) {
	if err != nil {
		out.Status = StatusFailed
		out.Error = err.Error()
		return
	}
	out.Status = StatusSucceeded
}

func (d *Dispatcher) record(rule *models.NotificationRule, event *models.Event, out ActionOutcome) {
	d.metrics.ActionsExecuted.WithLabelValues(string(out.Type), string(out.Status)).Inc()

	evt := d.log.Info()
	if out.Status == StatusFailed {
		evt = d.log.Warn().Str("error", out.Error)
	}
	evt.Str("rule_id", rule.ID).
		Str("event_id", event.ID).
		Int("action_index", out.Index).
		Str("action_type", string(out.Type)).
		Str("target", out.Target).
		Str("status", string(out.Status)).
		Msg("rule action executed")
}

func (d *Dispatcher) message(rule *models.NotificationRule, event *models.Event, override string, escalation bool) channels.Message {
	title, ok := triggerTitles[event.TriggerType]
	if !ok {
		title = string(event.TriggerType)
	}

	text := override
	if text == "" {
		text = fmt.Sprintf("%s for %s (rule %q)", title, event.ScopeKey, rule.Name)
	}

	return channels.Message{
		Escalation: escalation,
		Title:      fmt.Sprintf("%s: %s", title, event.ScopeKey),
		Text:       text,
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		EventID:    event.ID,
		EventType:  event.TriggerType,
		ScopeKey:   event.ScopeKey,
		OccurredAt: event.OccurredAt,
	}
}

func (d *Dispatcher) testMessage(rule *models.NotificationRule, event *models.Event, override string, escalation bool) channels.Message {
	msg := d.message(rule, event, override, escalation)
	if !strings.HasPrefix(msg.Title, "[TEST]") {
		msg.Title = "[TEST] " + msg.Title
	}
	return msg
}
