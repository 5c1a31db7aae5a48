package models

import "time"

type ActionType string

const (
	ActionNotifyChannel ActionType = "notify_channel"
	ActionEscalate      ActionType = "escalate"
	ActionSuppress      ActionType = "suppress"
	ActionWebhook       ActionType = "webhook"
)

type RuleConditions struct {
	Count             int `json:"count"`
	TimeWindowMinutes int `json:"time_window_minutes"`
}

func (c RuleConditions) Window() time.Duration {
	return time.Duration(c.TimeWindowMinutes) * time.Minute
}

// RuleAction is the stored shape of an action. Which fields matter depends on Type.
type RuleAction struct {
	Type                    ActionType `json:"type"`
	ChannelID               string     `json:"channel_id,omitempty"`
	EscalateToChannelID     string     `json:"escalate_to_channel_id,omitempty"`
	WebhookURL              string     `json:"webhook_url,omitempty"`
	EndpointID              string     `json:"endpoint_id,omitempty"`
	SuppressDurationMinutes int        `json:"suppress_duration_minutes,omitempty"`
	Message                 string     `json:"message,omitempty"`
}

type NotificationRule struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	TriggerType    TriggerType    `json:"trigger_type"`
	Enabled        bool           `json:"enabled"`
	Priority       int            `json:"priority"`
	Conditions     RuleConditions `json:"conditions"`
	Actions        []RuleAction   `json:"actions"` // JSON array in DB
	CreatedAt      int64          `json:"created_at"`
	UpdatedAt      int64          `json:"updated_at"`
}
