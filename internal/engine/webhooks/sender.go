package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"notifyd/internal/platform/models"
)

// Attempt describes one HTTP POST of a delivery.
type Attempt struct {
	URL           string
	Secret        string // empty for ad hoc targets: the request goes out unsigned
	Body          []byte
	EventType     models.TriggerType
	EventID       string
	DeliveryID    string
	AttemptNumber int
	Timeout       time.Duration
}

type AttemptResult struct {
	StatusCode int
	Duration   time.Duration
	Err        error
}

func (r AttemptResult) Success() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// ErrorMessage describes a failed attempt for the delivery record.
func (r AttemptResult) ErrorMessage() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if !r.Success() {
		return fmt.Sprintf("HTTP %d", r.StatusCode)
	}
	return ""
}

type Sender struct {
	client    *http.Client
	userAgent string
}

// NewSender builds a sender. Deadlines come from each attempt's context, so
// the client itself carries no timeout.
func NewSender(userAgent string) *Sender {
	return &Sender{
		client:    &http.Client{},
		userAgent: userAgent,
	}
}

// Send performs exactly one attempt. Timeouts and transport errors are
// reported in Err and treated like any other failure by the caller.
func (s *Sender) Send(ctx context.Context, a Attempt) AttemptResult {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(a.Body))
	if err != nil {
		return AttemptResult{Err: fmt.Errorf("build request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("X-Event-Type", string(a.EventType))
	req.Header.Set("X-Event-Id", a.EventID)
	req.Header.Set("X-Delivery-Id", a.DeliveryID)
	req.Header.Set("X-Delivery-Attempt", strconv.Itoa(a.AttemptNumber))
	if a.Secret != "" {
		req.Header.Set(SignatureHeader, SignatureValue(a.Secret, a.Body))
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return AttemptResult{Duration: duration, Err: err}
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return AttemptResult{StatusCode: resp.StatusCode, Duration: duration}
}
