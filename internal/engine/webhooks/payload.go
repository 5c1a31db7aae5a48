package webhooks

import (
	"encoding/json"
	"time"

	"notifyd/internal/platform/models"
)

// BuildPayload renders the outbound body. The bytes are stored on the
// delivery so every attempt, including manual retries, signs the same body.
func BuildPayload(event *models.Event) ([]byte, error) {
	data := event.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	if event.ScopeKey != "" {
		if _, ok := data["scope_key"]; !ok {
			withScope := make(map[string]interface{}, len(data)+1)
			for k, v := range data {
				withScope[k] = v
			}
			withScope["scope_key"] = event.ScopeKey
			data = withScope
		}
	}

	return json.Marshal(models.WebhookPayload{
		EventType:  event.TriggerType,
		EventID:    event.ID,
		OccurredAt: event.OccurredAt.UTC().Format(time.RFC3339),
		Data:       data,
	})
}
