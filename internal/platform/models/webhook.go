package models

import "encoding/json"

type WebhookEndpoint struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id"`
	Name           string        `json:"name"`
	URL            string        `json:"url"`
	Secret         string        `json:"-"` // encrypted in DB, never serialized
	EventTypes     []TriggerType `json:"event_types"` // JSON array in DB
	RetryCount     int           `json:"retry_count"`
	TimeoutSeconds int           `json:"timeout_seconds"`
	Enabled        bool          `json:"enabled"`
	CreatedAt      int64         `json:"created_at"`
	UpdatedAt      int64         `json:"updated_at"`
}

func (e *WebhookEndpoint) Subscribes(t TriggerType) bool {
	for _, et := range e.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

func (e *WebhookEndpoint) MaxAttempts() int {
	return e.RetryCount + 1
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRetrying  DeliveryStatus = "retrying"
	DeliveryFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

// WebhookDelivery is one attempt chain for one (target, event) pair.
// EndpointID is empty for ad hoc targets, which record TargetURL instead.
type WebhookDelivery struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	EndpointID     string          `json:"endpoint_id,omitempty"`
	TargetURL      string          `json:"target_url,omitempty"`
	RuleID         string          `json:"rule_id,omitempty"`
	EventID        string          `json:"event_id"`
	EventType      TriggerType     `json:"event_type"`
	Payload        json.RawMessage `json:"-"`
	Status         DeliveryStatus  `json:"status"`
	ResponseStatus int             `json:"response_status,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	AttemptNumber  int             `json:"attempt_number"`
	MaxAttempts    int             `json:"max_attempts"`
	TimeoutSeconds int             `json:"timeout_seconds"`
	RetryOf        string          `json:"retry_of,omitempty"`
	NextAttemptAt  int64           `json:"next_attempt_at,omitempty"`
	CreatedAt      int64           `json:"created_at"`
	ProcessedAt    int64           `json:"processed_at,omitempty"`
}

// WebhookPayload is the JSON body POSTed to webhook targets.
type WebhookPayload struct {
	EventType  TriggerType            `json:"event_type"`
	EventID    string                 `json:"event_id"`
	OccurredAt string                 `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}
