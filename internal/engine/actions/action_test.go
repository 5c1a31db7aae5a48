package actions

import (
	"errors"
	"testing"
	"time"

	apperrors "notifyd/internal/pkg/errors"
	"notifyd/internal/platform/models"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		action    models.RuleAction
		want      Action
		wantField string
	}{
		{
			name:   "notify ignores unrelated fields",
			action: models.RuleAction{Type: models.ActionNotifyChannel, ChannelID: "ops", WebhookURL: "https://x", SuppressDurationMinutes: 9},
			want:   NotifyChannel{ChannelID: "ops"},
		},
		{
			name:   "escalate",
			action: models.RuleAction{Type: models.ActionEscalate, EscalateToChannelID: "pager", Message: "m"},
			want:   Escalate{ChannelID: "pager", Message: "m"},
		},
		{
			name:   "suppress",
			action: models.RuleAction{Type: models.ActionSuppress, SuppressDurationMinutes: 30},
			want:   Suppress{Duration: 30 * time.Minute},
		},
		{
			name:   "webhook fan out",
			action: models.RuleAction{Type: models.ActionWebhook},
			want:   Webhook{},
		},
		{
			name:   "webhook ad hoc",
			action: models.RuleAction{Type: models.ActionWebhook, WebhookURL: "https://example.com/hook"},
			want:   Webhook{URL: "https://example.com/hook"},
		},
		{name: "notify without channel", action: models.RuleAction{Type: models.ActionNotifyChannel}, wantField: "channel_id"},
		{name: "escalate without channel", action: models.RuleAction{Type: models.ActionEscalate}, wantField: "escalate_to_channel_id"},
		{name: "suppress without duration", action: models.RuleAction{Type: models.ActionSuppress}, wantField: "suppress_duration_minutes"},
		{
			name:      "webhook with both targets",
			action:    models.RuleAction{Type: models.ActionWebhook, EndpointID: "wh_1", WebhookURL: "https://example.com"},
			wantField: "webhook_url",
		},
		{
			name:      "webhook with bad url",
			action:    models.RuleAction{Type: models.ActionWebhook, WebhookURL: "mailto:ops@example.com"},
			wantField: "webhook_url",
		},
		{name: "unknown type", action: models.RuleAction{Type: "page_everyone"}, wantField: "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.action)
			if tt.wantField != "" {
				var verr *apperrors.ValidationError
				if !errors.As(err, &verr) || verr.Field != tt.wantField {
					t.Fatalf("Resolve() error = %v, want field %s", err, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
