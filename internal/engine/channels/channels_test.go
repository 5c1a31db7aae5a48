package channels

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"notifyd/internal/platform/config"
	"notifyd/internal/platform/models"
)

func testMessage(escalation bool) Message {
	return Message{
		Escalation: escalation,
		Title:      "Backup failed 3 times",
		Text:       "agent-a failed its nightly backup",
		RuleID:     "rule_1",
		RuleName:   "Repeated backup failures",
		EventID:    "evt_1",
		EventType:  models.TriggerBackupFailed,
		ScopeKey:   "agent-a",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRegistry_SendFormatsPerKind(t *testing.T) {
	tests := []struct {
		kind  string
		check func(t *testing.T, body map[string]interface{})
	}{
		{kind: KindSlack, check: func(t *testing.T, body map[string]interface{}) {
			attachments, ok := body["attachments"].([]interface{})
			if !ok || len(attachments) != 1 {
				t.Fatalf("attachments = %v", body["attachments"])
			}
			if color := attachments[0].(map[string]interface{})["color"]; color != "danger" {
				t.Errorf("color = %v, want danger for escalation", color)
			}
		}},
		{kind: KindDiscord, check: func(t *testing.T, body map[string]interface{}) {
			embeds, ok := body["embeds"].([]interface{})
			if !ok || len(embeds) != 1 {
				t.Fatalf("embeds = %v", body["embeds"])
			}
			if color := embeds[0].(map[string]interface{})["color"]; color != float64(colorRed) {
				t.Errorf("color = %v, want %d", color, colorRed)
			}
		}},
		{kind: KindGeneric, check: func(t *testing.T, body map[string]interface{}) {
			if body["type"] != "escalation" || body["event_id"] != "evt_1" || body["scope_key"] != "agent-a" {
				t.Errorf("body = %v", body)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			var body map[string]interface{}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if ct := r.Header.Get("Content-Type"); ct != "application/json" {
					t.Errorf("Content-Type = %q", ct)
				}
				json.NewDecoder(r.Body).Decode(&body)
			}))
			defer server.Close()

			reg, err := NewRegistry(map[string]config.ChannelConfig{"pager": {Kind: tt.kind, URL: server.URL}})
			if err != nil {
				t.Fatalf("NewRegistry() error = %v", err)
			}
			if err := reg.Send(context.Background(), "pager", testMessage(true)); err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			tt.check(t, body)
		})
	}
}

func TestRegistry_SendErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	reg, err := NewRegistry(map[string]config.ChannelConfig{"ops": {Kind: KindSlack, URL: server.URL}})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	if err := reg.Send(context.Background(), "ops", testMessage(false)); err == nil {
		t.Error("Send() to a 403 channel succeeded")
	}
	if err := reg.Send(context.Background(), "missing", testMessage(false)); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Send(missing) error = %v, want ErrUnknownChannel", err)
	}
}

func TestNewRegistry_RejectsUnknownKind(t *testing.T) {
	if _, err := NewRegistry(map[string]config.ChannelConfig{"x": {Kind: "carrier-pigeon", URL: "https://example.com"}}); err == nil {
		t.Error("NewRegistry() accepted an unknown kind")
	}

	reg, err := NewRegistry(map[string]config.ChannelConfig{"x": {URL: "https://example.com"}})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if !reg.Has("x") || reg.Has("y") {
		t.Error("Has() does not reflect configured channels")
	}
}
