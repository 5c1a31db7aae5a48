package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	apperrors "notifyd/internal/pkg/errors"
	"notifyd/internal/pkg/logger"
	"notifyd/internal/pkg/metrics"
	"notifyd/internal/platform/models"
	"notifyd/internal/platform/repositories"
)

const (
	recoveryBatchSize = 500

	// attemptLease outlasts the longest allowed attempt timeout.
	attemptLease = 150 * time.Second
)

// Target is where a webhook action sends an event: a registered endpoint, an
// ad hoc URL, or with both empty, every enabled endpoint of the organization
// subscribed to the event type.
type Target struct {
	OrganizationID string
	EndpointID     string
	URL            string
}

type Options struct {
	Backoff               Backoff
	DefaultRetryCount     int
	DefaultTimeoutSeconds int
}

// Service owns webhook delivery: it creates delivery records, runs attempts
// on the worker pool and drives each record through its state machine.
type Service struct {
	endpoints  *repositories.WebhookRepository
	deliveries *repositories.DeliveryRepository
	sender     *Sender
	pool       *Pool
	opts       Options
	metrics    *metrics.Metrics
	log        zerolog.Logger
	now        func() time.Time
}

func NewService(endpoints *repositories.WebhookRepository, deliveries *repositories.DeliveryRepository,
	sender *Sender, pool *Pool, opts Options, m *metrics.Metrics) *Service {
	return &Service{
		endpoints:  endpoints,
		deliveries: deliveries,
		sender:     sender,
		pool:       pool,
		opts:       opts,
		metrics:    m,
		log:        logger.Component("webhooks"),
		now:        time.Now,
	}
}

func (s *Service) Start() {
	s.pool.Start(s.process)
}

// Stop waits for in-flight attempts. Anything not yet attempted stays
// pending in the store for the recovery sweep of the next process.
func (s *Service) Stop() {
	s.pool.Stop()
}

// Enqueue creates one pending delivery per resolved target and hands each to
// the worker pool. It returns the ids of the created deliveries.
func (s *Service) Enqueue(ctx context.Context, target Target, event *models.Event, ruleID string) ([]string, error) {
	payload, err := BuildPayload(event)
	if err != nil {
		return nil, fmt.Errorf("build payload: %w", err)
	}

	var deliveries []*models.WebhookDelivery
	switch {
	case target.URL != "":
		deliveries = append(deliveries, s.newDelivery(event, ruleID, payload, func(d *models.WebhookDelivery) {
			d.TargetURL = target.URL
			d.MaxAttempts = s.opts.DefaultRetryCount + 1
			d.TimeoutSeconds = s.opts.DefaultTimeoutSeconds
		}))

	case target.EndpointID != "":
		endpoint, err := s.endpoints.GetByID(target.OrganizationID, target.EndpointID)
		if err != nil {
			return nil, err
		}
		if !endpoint.Enabled {
			return nil, fmt.Errorf("webhook endpoint %s is disabled", endpoint.ID)
		}
		if !endpoint.Subscribes(event.TriggerType) {
			return nil, fmt.Errorf("webhook endpoint %s is not subscribed to %s", endpoint.ID, event.TriggerType)
		}
		deliveries = append(deliveries, s.endpointDelivery(endpoint, event, ruleID, payload))

	default:
		endpoints, err := s.endpoints.ListSubscribed(target.OrganizationID, event.TriggerType)
		if err != nil {
			return nil, fmt.Errorf("list subscribed endpoints: %w", err)
		}
		for _, endpoint := range endpoints {
			deliveries = append(deliveries, s.endpointDelivery(endpoint, event, ruleID, payload))
		}
	}

	ids := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		if err := s.deliveries.Create(d); err != nil {
			return ids, fmt.Errorf("create delivery: %w", err)
		}
		ids = append(ids, d.ID)
		s.pool.Enqueue(d.ID)
	}

	s.log.Debug().Str("event_id", event.ID).Str("rule_id", ruleID).Int("deliveries", len(ids)).Msg("webhook deliveries queued")
	return ids, nil
}

func (s *Service) endpointDelivery(endpoint *models.WebhookEndpoint, event *models.Event, ruleID string, payload []byte) *models.WebhookDelivery {
	return s.newDelivery(event, ruleID, payload, func(d *models.WebhookDelivery) {
		d.EndpointID = endpoint.ID
		d.MaxAttempts = endpoint.MaxAttempts()
		d.TimeoutSeconds = endpoint.TimeoutSeconds
	})
}

func (s *Service) newDelivery(event *models.Event, ruleID string, payload []byte, target func(d *models.WebhookDelivery)) *models.WebhookDelivery {
	d := &models.WebhookDelivery{
		OrganizationID: event.OrganizationID,
		RuleID:         ruleID,
		EventID:        event.ID,
		EventType:      event.TriggerType,
		Payload:        payload,
		Status:         models.DeliveryPending,
		AttemptNumber:  1,
		CreatedAt:      s.now().Unix(),
	}
	target(d)
	return d
}

// Probe makes one synchronous attempt per resolved target without creating
// delivery records. Rule test firings use it.
func (s *Service) Probe(ctx context.Context, target Target, event *models.Event) error {
	payload, err := BuildPayload(event)
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	var endpoints []*models.WebhookEndpoint
	switch {
	case target.URL != "":
		result := s.probe(ctx, target.URL, "", s.opts.DefaultTimeoutSeconds, event, payload)
		if !result.Success() {
			return fmt.Errorf("%s: %s", target.URL, result.ErrorMessage())
		}
		return nil
	case target.EndpointID != "":
		endpoint, err := s.endpoints.GetByID(target.OrganizationID, target.EndpointID)
		if err != nil {
			return err
		}
		endpoints = append(endpoints, endpoint)
	default:
		endpoints, err = s.endpoints.ListSubscribed(target.OrganizationID, event.TriggerType)
		if err != nil {
			return fmt.Errorf("list subscribed endpoints: %w", err)
		}
	}

	var errs []error
	for _, endpoint := range endpoints {
		result := s.probe(ctx, endpoint.URL, endpoint.Secret, endpoint.TimeoutSeconds, event, payload)
		if !result.Success() {
			errs = append(errs, fmt.Errorf("endpoint %s: %s", endpoint.ID, result.ErrorMessage()))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) probe(ctx context.Context, url, secret string, timeoutSeconds int, event *models.Event, payload []byte) AttemptResult {
	result := s.sender.Send(ctx, Attempt{
		URL:           url,
		Secret:        secret,
		Body:          payload,
		EventType:     event.TriggerType,
		EventID:       event.ID,
		DeliveryID:    "whd_test_" + uuid.New().String(),
		AttemptNumber: 1,
		Timeout:       time.Duration(timeoutSeconds) * time.Second,
	})
	s.metrics.DeliveryDuration.Observe(result.Duration.Seconds())
	return result
}

type TestResult struct {
	Success        bool   `json:"success"`
	ResponseStatus int    `json:"response_status,omitempty"`
	DurationMs     int64  `json:"duration_ms"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// Test sends one signed synthetic event to the endpoint and reports the
// result. Nothing is persisted and nothing is retried.
func (s *Service) Test(ctx context.Context, orgID, endpointID string) (*TestResult, error) {
	endpoint, err := s.endpoints.GetByID(orgID, endpointID)
	if err != nil {
		return nil, err
	}

	trigger := models.TriggerBackupFailed
	if len(endpoint.EventTypes) > 0 {
		trigger = endpoint.EventTypes[0]
	}
	event := &models.Event{
		ID:             "evt_test_" + uuid.New().String(),
		OrganizationID: orgID,
		TriggerType:    trigger,
		ScopeKey:       "webhook-test",
		OccurredAt:     s.now(),
		Data: map[string]interface{}{
			"test":    true,
			"message": "Test event from notifyd",
		},
	}
	payload, err := BuildPayload(event)
	if err != nil {
		return nil, err
	}

	result := s.probe(ctx, endpoint.URL, endpoint.Secret, endpoint.TimeoutSeconds, event, payload)
	s.log.Info().
		Str("endpoint_id", endpoint.ID).
		Int("status", result.StatusCode).
		Bool("success", result.Success()).
		Msg("webhook endpoint test")

	return &TestResult{
		Success:        result.Success(),
		ResponseStatus: result.StatusCode,
		DurationMs:     result.Duration.Milliseconds(),
		ErrorMessage:   result.ErrorMessage(),
	}, nil
}

// process runs one attempt of a delivery and records the outcome. The
// returned time is when the next attempt is due, zero when none is.
func (s *Service) process(id string) time.Time {
	d, err := s.deliveries.GetByID(id)
	if err != nil {
		s.log.Error().Err(err).Str("delivery_id", id).Msg("failed to load delivery")
		return time.Time{}
	}
	if d.Status.Terminal() {
		return time.Time{}
	}
	if due := time.Unix(d.NextAttemptAt, 0); d.NextAttemptAt > 0 && due.After(s.now()) {
		return due
	}

	// Another process sharing the database may hold the same delivery; only
	// the worker that claims the attempt sends it.
	claimedAt := s.now()
	claimed, err := s.deliveries.Claim(d.ID, d.AttemptNumber, claimedAt.Unix(), claimedAt.Add(attemptLease).Unix())
	if err != nil {
		s.log.Error().Err(err).Str("delivery_id", id).Msg("failed to claim delivery attempt")
		return time.Time{}
	}
	if !claimed {
		s.log.Debug().Str("delivery_id", id).Int("attempt", d.AttemptNumber).Msg("delivery attempt claimed by another worker")
		return time.Time{}
	}

	url, secret, timeout := d.TargetURL, "", d.TimeoutSeconds
	if d.EndpointID != "" {
		endpoint, err := s.endpoints.Get(d.EndpointID)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			s.fail(d, "webhook endpoint was deleted")
			return time.Time{}
		case err != nil:
			s.log.Error().Err(err).Str("delivery_id", id).Msg("failed to load webhook endpoint")
			return time.Time{}
		case !endpoint.Enabled:
			s.fail(d, "webhook endpoint is disabled")
			return time.Time{}
		}
		url, secret, timeout = endpoint.URL, endpoint.Secret, endpoint.TimeoutSeconds
	}

	// The attempt is not bound to any caller: shutdown waits for it instead
	// of aborting it mid-flight.
	result := s.sender.Send(context.Background(), Attempt{
		URL:           url,
		Secret:        secret,
		Body:          d.Payload,
		EventType:     d.EventType,
		EventID:       d.EventID,
		DeliveryID:    d.ID,
		AttemptNumber: d.AttemptNumber,
		Timeout:       time.Duration(timeout) * time.Second,
	})
	s.metrics.DeliveryDuration.Observe(result.Duration.Seconds())

	now := s.now()
	d.ResponseStatus = result.StatusCode
	d.ProcessedAt = now.Unix()
	d.NextAttemptAt = 0

	var next time.Time
	switch {
	case result.Success():
		d.Status = models.DeliveryDelivered
		d.ErrorMessage = ""
	case d.AttemptNumber < d.MaxAttempts:
		next = now.Add(s.opts.Backoff.Delay(d.AttemptNumber))
		d.Status = models.DeliveryRetrying
		d.ErrorMessage = result.ErrorMessage()
		d.AttemptNumber++
		d.NextAttemptAt = next.Unix()
	default:
		d.Status = models.DeliveryFailed
		d.ErrorMessage = result.ErrorMessage()
	}

	if err := s.deliveries.RecordAttempt(d); err != nil {
		s.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to record delivery attempt")
		return time.Time{}
	}
	s.metrics.DeliveryAttempts.WithLabelValues(string(d.Status)).Inc()

	evt := s.log.Info()
	if d.Status != models.DeliveryDelivered {
		evt = s.log.Warn().Str("error", d.ErrorMessage)
	}
	evt.Str("delivery_id", d.ID).
		Str("endpoint_id", d.EndpointID).
		Str("status", string(d.Status)).
		Int("response_status", d.ResponseStatus).
		Int("attempt", d.AttemptNumber).
		Int("max_attempts", d.MaxAttempts).
		Dur("duration", result.Duration).
		Msg("webhook attempt finished")

	return next
}

func (s *Service) fail(d *models.WebhookDelivery, reason string) {
	d.Status = models.DeliveryFailed
	d.ErrorMessage = reason
	d.NextAttemptAt = 0
	d.ProcessedAt = s.now().Unix()
	if err := s.deliveries.RecordAttempt(d); err != nil {
		s.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to record delivery failure")
		return
	}
	s.metrics.DeliveryAttempts.WithLabelValues(string(d.Status)).Inc()
	s.log.Warn().Str("delivery_id", d.ID).Str("endpoint_id", d.EndpointID).Str("reason", reason).Msg("webhook delivery abandoned")
}

const (
	defaultDeliveryPageSize = 20
	maxDeliveryPageSize     = 100
)

func (s *Service) ListDeliveries(orgID, endpointID string, limit, offset int) ([]*models.WebhookDelivery, error) {
	if _, err := s.endpoints.GetByID(orgID, endpointID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultDeliveryPageSize
	}
	if limit > maxDeliveryPageSize {
		limit = maxDeliveryPageSize
	}
	if offset < 0 {
		offset = 0
	}

	deliveries, err := s.deliveries.ListByEndpoint(orgID, endpointID, limit, offset)
	if err != nil {
		return nil, err
	}
	if deliveries == nil {
		deliveries = []*models.WebhookDelivery{}
	}
	return deliveries, nil
}

// RetryDelivery starts a new attempt chain for a failed delivery. The failed
// record is left untouched; the new one points back at it through RetryOf.
func (s *Service) RetryDelivery(ctx context.Context, orgID, deliveryID string) (*models.WebhookDelivery, error) {
	orig, err := s.deliveries.GetForOrg(orgID, deliveryID)
	if err != nil {
		return nil, err
	}
	if orig.Status != models.DeliveryFailed {
		return nil, fmt.Errorf("delivery %s is %s, only failed deliveries can be retried: %w",
			orig.ID, orig.Status, apperrors.ErrInvalidState)
	}

	retry := &models.WebhookDelivery{
		OrganizationID: orig.OrganizationID,
		EndpointID:     orig.EndpointID,
		TargetURL:      orig.TargetURL,
		RuleID:         orig.RuleID,
		EventID:        orig.EventID,
		EventType:      orig.EventType,
		Payload:        orig.Payload,
		Status:         models.DeliveryPending,
		AttemptNumber:  1,
		MaxAttempts:    orig.MaxAttempts,
		TimeoutSeconds: orig.TimeoutSeconds,
		RetryOf:        orig.ID,
		CreatedAt:      s.now().Unix(),
	}

	if orig.EndpointID != "" {
		endpoint, err := s.endpoints.GetByID(orgID, orig.EndpointID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("webhook endpoint %s no longer exists: %w", orig.EndpointID, apperrors.ErrInvalidState)
		}
		if err != nil {
			return nil, err
		}
		if !endpoint.Enabled {
			return nil, fmt.Errorf("webhook endpoint %s is disabled: %w", endpoint.ID, apperrors.ErrInvalidState)
		}
		retry.MaxAttempts = endpoint.MaxAttempts()
		retry.TimeoutSeconds = endpoint.TimeoutSeconds
	}

	if err := s.deliveries.Create(retry); err != nil {
		return nil, err
	}
	s.pool.Enqueue(retry.ID)

	s.log.Info().Str("delivery_id", retry.ID).Str("retry_of", orig.ID).Msg("manual webhook retry queued")
	return retry, nil
}

// Recover re-enqueues pending and retrying deliveries whose attempt has been
// due for longer than grace, covering restarts and queue overflow. Periodic
// sweeps pass a grace so attempts already scheduled in memory are left alone.
func (s *Service) Recover(ctx context.Context, grace time.Duration) (int, error) {
	now := s.now()
	due, err := s.deliveries.ListDue(now.Add(-grace).Unix(), now.Unix(), recoveryBatchSize)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, d := range due {
		if ctx.Err() != nil {
			break
		}
		if s.pool.Enqueue(d.ID) {
			queued++
		}
	}
	return queued, nil
}

// PruneHistory deletes finished deliveries older than retention.
func (s *Service) PruneHistory(retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	return s.deliveries.DeleteTerminalBefore(s.now().Add(-retention).Unix())
}
