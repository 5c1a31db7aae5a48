package actions

import (
	"net/url"
	"time"

	apperrors "notifyd/internal/pkg/errors"
	"notifyd/internal/platform/models"
)

// Action is the resolved, type-safe form of a stored RuleAction. Only the
// fields relevant to the action's type survive resolution.
type Action interface {
	Type() models.ActionType
}

type NotifyChannel struct {
	ChannelID string
	Message   string
}

type Escalate struct {
	ChannelID string
	Message   string
}

type Suppress struct {
	Duration time.Duration
}

// Webhook targets one registered endpoint, one ad hoc URL, or (both empty)
// every enabled endpoint subscribed to the event type.
type Webhook struct {
	EndpointID string
	URL        string
}

func (NotifyChannel) Type() models.ActionType { return models.ActionNotifyChannel }
func (Escalate) Type() models.ActionType      { return models.ActionEscalate }
func (Suppress) Type() models.ActionType      { return models.ActionSuppress }
func (Webhook) Type() models.ActionType       { return models.ActionWebhook }

// Resolve validates a stored action and converts it to its variant.
func Resolve(a models.RuleAction) (Action, error) {
	switch a.Type {
	case models.ActionNotifyChannel:
		if a.ChannelID == "" {
			return nil, apperrors.Invalid("channel_id", "is required for notify_channel")
		}
		return NotifyChannel{ChannelID: a.ChannelID, Message: a.Message}, nil

	case models.ActionEscalate:
		if a.EscalateToChannelID == "" {
			return nil, apperrors.Invalid("escalate_to_channel_id", "is required for escalate")
		}
		return Escalate{ChannelID: a.EscalateToChannelID, Message: a.Message}, nil

	case models.ActionSuppress:
		if a.SuppressDurationMinutes < 1 {
			return nil, apperrors.Invalid("suppress_duration_minutes", "must be at least 1")
		}
		return Suppress{Duration: time.Duration(a.SuppressDurationMinutes) * time.Minute}, nil

	case models.ActionWebhook:
		if a.EndpointID != "" && a.WebhookURL != "" {
			return nil, apperrors.Invalid("webhook_url", "endpoint_id and webhook_url are mutually exclusive")
		}
		if a.WebhookURL != "" {
			u, err := url.Parse(a.WebhookURL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return nil, apperrors.Invalid("webhook_url", "must be an http:// or https:// URL")
			}
		}
		return Webhook{EndpointID: a.EndpointID, URL: a.WebhookURL}, nil

	default:
		return nil, apperrors.Invalid("type", "unknown action type %q", a.Type)
	}
}

// effectKey identifies the downstream effect of an action, so a higher
// priority rule that suppresses can keep lower priority rules in the same
// pass from hitting the same target. Empty means the action is never muted.
func effectKey(a Action, trigger models.TriggerType) string {
	switch v := a.(type) {
	case Escalate:
		return "channel:" + v.ChannelID
	case Webhook:
		switch {
		case v.EndpointID != "":
			return "endpoint:" + v.EndpointID
		case v.URL != "":
			return "url:" + v.URL
		default:
			return "subscribers:" + string(trigger)
		}
	}
	return ""
}
