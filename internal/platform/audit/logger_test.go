package audit

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"notifyd/internal/platform/auth"
)

func TestLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWith(zerolog.New(&buf))

	req := httptest.NewRequest("POST", "/api/v1/webhooks", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("User-Agent", "admin-ui")

	l.Log(req, &auth.Claims{UserID: "usr_1", OrganizationID: "org_1", Role: "admin"}, Entry{
		Action:       "webhook.created",
		ResourceType: "webhook_endpoint",
		ResourceID:   "wh_1",
		Metadata:     map[string]interface{}{"url": "https://example.com"},
	})

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Failed to decode log line: %v", err)
	}

	want := map[string]string{
		"action":          "webhook.created",
		"resource_id":     "wh_1",
		"organization_id": "org_1",
		"user_id":         "usr_1",
		"ip_address":      "203.0.113.9",
		"user_agent":      "admin-ui",
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("%s = %v, want %s", k, line[k], v)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Errorf("clientIP() = %s, want 192.0.2.1", got)
	}
}
