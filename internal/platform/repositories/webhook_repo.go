package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "notifyd/internal/pkg/errors"
	"notifyd/internal/pkg/fieldcrypt"
	"notifyd/internal/platform/models"
)

const endpointColumns = `id, organization_id, name, url, secret, event_types, retry_count, timeout_seconds, enabled, created_at, updated_at`

// WebhookRepository stores registered endpoints. Secrets are encrypted on
// write and decrypted on read; callers only ever see plaintext in memory.
type WebhookRepository struct {
	db  *sql.DB
	enc *fieldcrypt.Encryptor
}

func NewWebhookRepository(db *sql.DB, enc *fieldcrypt.Encryptor) *WebhookRepository {
	return &WebhookRepository{db: db, enc: enc}
}

func (r *WebhookRepository) Create(endpoint *models.WebhookEndpoint) error {
	endpoint.ID = "wh_" + uuid.New().String()
	endpoint.CreatedAt = time.Now().Unix()
	endpoint.UpdatedAt = endpoint.CreatedAt

	eventsJSON, err := json.Marshal(endpoint.EventTypes)
	if err != nil {
		return err
	}
	secret, err := r.enc.Encrypt(endpoint.Secret)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO webhook_endpoints (` + endpointColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, endpoint.ID, endpoint.OrganizationID, endpoint.Name, endpoint.URL, secret, string(eventsJSON),
		endpoint.RetryCount, endpoint.TimeoutSeconds, endpoint.Enabled, endpoint.CreatedAt, endpoint.UpdatedAt)
	return err
}

// Get loads an endpoint without organization scoping; used by the delivery
// worker, which only holds the weak endpoint reference of a delivery.
func (r *WebhookRepository) Get(id string) (*models.WebhookEndpoint, error) {
	row := r.db.QueryRow(`SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = ?`, id)
	return r.scanOne(row, id)
}

func (r *WebhookRepository) GetByID(orgID, id string) (*models.WebhookEndpoint, error) {
	row := r.db.QueryRow(`SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = ? AND organization_id = ?`, id, orgID)
	return r.scanOne(row, id)
}

func (r *WebhookRepository) List(orgID string) ([]*models.WebhookEndpoint, error) {
	rows, err := r.db.Query(`SELECT `+endpointColumns+` FROM webhook_endpoints WHERE organization_id = ? ORDER BY created_at DESC, id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []*models.WebhookEndpoint
	for rows.Next() {
		endpoint, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, rows.Err()
}

// ListSubscribed returns the enabled endpoints of an organization that
// subscribe to the given event type. Subscription lists are small JSON arrays,
// so the filter runs in the application.
func (r *WebhookRepository) ListSubscribed(orgID string, eventType models.TriggerType) ([]*models.WebhookEndpoint, error) {
	rows, err := r.db.Query(`SELECT `+endpointColumns+` FROM webhook_endpoints WHERE organization_id = ? AND enabled = 1 ORDER BY id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matched []*models.WebhookEndpoint
	for rows.Next() {
		endpoint, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		if endpoint.Subscribes(eventType) {
			matched = append(matched, endpoint)
		}
	}
	return matched, rows.Err()
}

func (r *WebhookRepository) Update(endpoint *models.WebhookEndpoint) error {
	eventsJSON, err := json.Marshal(endpoint.EventTypes)
	if err != nil {
		return err
	}
	secret, err := r.enc.Encrypt(endpoint.Secret)
	if err != nil {
		return err
	}
	endpoint.UpdatedAt = time.Now().Unix()

	query := `
		UPDATE webhook_endpoints
		SET name = ?, url = ?, secret = ?, event_types = ?, retry_count = ?, timeout_seconds = ?, enabled = ?, updated_at = ?
		WHERE id = ? AND organization_id = ?
	`
	res, err := r.db.Exec(query, endpoint.Name, endpoint.URL, secret, string(eventsJSON), endpoint.RetryCount,
		endpoint.TimeoutSeconds, endpoint.Enabled, endpoint.UpdatedAt, endpoint.ID, endpoint.OrganizationID)
	if err != nil {
		return err
	}
	return expectAffected(res, "webhook endpoint", endpoint.ID)
}

func (r *WebhookRepository) Delete(orgID, id string) error {
	res, err := r.db.Exec(`DELETE FROM webhook_endpoints WHERE id = ? AND organization_id = ?`, id, orgID)
	if err != nil {
		return err
	}
	return expectAffected(res, "webhook endpoint", id)
}

func (r *WebhookRepository) scanOne(row *sql.Row, id string) (*models.WebhookEndpoint, error) {
	endpoint, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("webhook endpoint %s: %w", id, apperrors.ErrNotFound)
	}
	return endpoint, err
}

func (r *WebhookRepository) scan(row rowScanner) (*models.WebhookEndpoint, error) {
	var w models.WebhookEndpoint
	var secret, eventsStr string

	err := row.Scan(&w.ID, &w.OrganizationID, &w.Name, &w.URL, &secret, &eventsStr, &w.RetryCount,
		&w.TimeoutSeconds, &w.Enabled, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(eventsStr), &w.EventTypes); err != nil {
		return nil, fmt.Errorf("decode event types for endpoint %s: %w", w.ID, err)
	}
	w.Secret, err = r.enc.Decrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret for endpoint %s: %w", w.ID, err)
	}
	return &w, nil
}
