package webhooks

import (
	"crypto/rand"
	"encoding/hex"
	"net/url"
	"strings"

	apperrors "notifyd/internal/pkg/errors"
	"notifyd/internal/platform/models"
)

const secretPrefix = "whsec_"

// EndpointInput is the create/update payload of an endpoint. On update, nil
// and empty fields keep their current value.
type EndpointInput struct {
	Name           string               `json:"name"`
	URL            string               `json:"url"`
	Secret         string               `json:"secret"`
	EventTypes     []models.TriggerType `json:"event_types"`
	RetryCount     *int                 `json:"retry_count"`
	TimeoutSeconds *int                 `json:"timeout_seconds"`
	Enabled        *bool                `json:"enabled"`
}

func (s *Service) CreateEndpoint(orgID string, in EndpointInput) (*models.WebhookEndpoint, error) {
	endpoint := &models.WebhookEndpoint{
		OrganizationID: orgID,
		RetryCount:     s.opts.DefaultRetryCount,
		TimeoutSeconds: s.opts.DefaultTimeoutSeconds,
		Enabled:        true,
	}
	in.apply(endpoint)

	if endpoint.Secret == "" {
		secret, err := GenerateSecret()
		if err != nil {
			return nil, err
		}
		endpoint.Secret = secret
	}

	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	if err := s.endpoints.Create(endpoint); err != nil {
		return nil, err
	}

	s.log.Info().Str("endpoint_id", endpoint.ID).Str("organization_id", orgID).Msg("webhook endpoint created")
	return endpoint, nil
}

func (s *Service) UpdateEndpoint(orgID, id string, in EndpointInput) (*models.WebhookEndpoint, error) {
	endpoint, err := s.endpoints.GetByID(orgID, id)
	if err != nil {
		return nil, err
	}
	in.apply(endpoint)

	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	if err := s.endpoints.Update(endpoint); err != nil {
		return nil, err
	}
	return endpoint, nil
}

func (s *Service) GetEndpoint(orgID, id string) (*models.WebhookEndpoint, error) {
	return s.endpoints.GetByID(orgID, id)
}

func (s *Service) ListEndpoints(orgID string) ([]*models.WebhookEndpoint, error) {
	endpoints, err := s.endpoints.List(orgID)
	if err != nil {
		return nil, err
	}
	if endpoints == nil {
		endpoints = []*models.WebhookEndpoint{}
	}
	return endpoints, nil
}

// DeleteEndpoint removes the endpoint. Its delivery history stays; pending
// deliveries fail on their next attempt.
func (s *Service) DeleteEndpoint(orgID, id string) error {
	if err := s.endpoints.Delete(orgID, id); err != nil {
		return err
	}
	s.log.Info().Str("endpoint_id", id).Str("organization_id", orgID).Msg("webhook endpoint deleted")
	return nil
}

func (in EndpointInput) apply(endpoint *models.WebhookEndpoint) {
	if in.Name != "" {
		endpoint.Name = strings.TrimSpace(in.Name)
	}
	if in.URL != "" {
		endpoint.URL = strings.TrimSpace(in.URL)
	}
	if in.Secret != "" {
		endpoint.Secret = in.Secret
	}
	if len(in.EventTypes) > 0 {
		endpoint.EventTypes = in.EventTypes
	}
	if in.RetryCount != nil {
		endpoint.RetryCount = *in.RetryCount
	}
	if in.TimeoutSeconds != nil {
		endpoint.TimeoutSeconds = *in.TimeoutSeconds
	}
	if in.Enabled != nil {
		endpoint.Enabled = *in.Enabled
	}
}

func ValidateEndpoint(endpoint *models.WebhookEndpoint) error {
	if endpoint.Name == "" {
		return apperrors.Invalid("name", "is required")
	}
	u, err := url.Parse(endpoint.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.Invalid("url", "must be an http:// or https:// URL")
	}
	if len(endpoint.EventTypes) == 0 {
		return apperrors.Invalid("event_types", "at least one event type is required")
	}
	for _, t := range endpoint.EventTypes {
		if !t.Valid() {
			return apperrors.Invalid("event_types", "unknown event type %q", t)
		}
	}
	if endpoint.RetryCount < 0 || endpoint.RetryCount > 10 {
		return apperrors.Invalid("retry_count", "must be between 0 and 10")
	}
	if endpoint.TimeoutSeconds < 5 || endpoint.TimeoutSeconds > 120 {
		return apperrors.Invalid("timeout_seconds", "must be between 5 and 120")
	}
	return nil
}

// GenerateSecret returns a new random signing secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}
