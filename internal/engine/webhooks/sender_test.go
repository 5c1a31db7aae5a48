package webhooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"notifyd/internal/platform/models"
)

func TestSender_Send(t *testing.T) {
	var got *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	res := NewSender("notifyd-test").Send(context.Background(), Attempt{
		URL:           server.URL,
		Secret:        "whsec_1",
		Body:          []byte(`{}`),
		EventType:     models.TriggerBackupFailed,
		EventID:       "evt_1",
		DeliveryID:    "whd_1",
		AttemptNumber: 2,
		Timeout:       time.Second,
	})

	if !res.Success() || res.StatusCode != http.StatusAccepted {
		t.Fatalf("Send() = %+v, want success with 202", res)
	}
	if got.Header.Get("X-Delivery-Attempt") != "2" || got.Header.Get("X-Event-Type") != "backup_failed" {
		t.Errorf("headers = %v", got.Header)
	}
	if got.Header.Get(SignatureHeader) != SignatureValue("whsec_1", []byte(`{}`)) {
		t.Errorf("%s = %q", SignatureHeader, got.Header.Get(SignatureHeader))
	}
}

func TestSender_SendTimesOut(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	res := NewSender("notifyd-test").Send(context.Background(), Attempt{
		URL:     server.URL,
		Body:    []byte(`{}`),
		Timeout: 50 * time.Millisecond,
	})

	if res.Err == nil {
		t.Fatalf("Send() err = nil, status %d", res.StatusCode)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Send() err = %v, want deadline exceeded", res.Err)
	}
	if res.Success() {
		t.Error("Success() = true for a timed out attempt")
	}
	if res.ErrorMessage() == "" {
		t.Error("ErrorMessage() is empty for a timed out attempt")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Send() took %v, want it bounded by the attempt timeout", elapsed)
	}
}

func TestAttemptResult_ClientErrorIsFailure(t *testing.T) {
	res := AttemptResult{StatusCode: http.StatusNotFound}
	if res.Success() {
		t.Error("Success() = true for 404")
	}
	if res.ErrorMessage() != "HTTP 404" {
		t.Errorf("ErrorMessage() = %q, want HTTP 404", res.ErrorMessage())
	}
}
