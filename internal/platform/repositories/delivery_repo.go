package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "notifyd/internal/pkg/errors"
	"notifyd/internal/platform/models"
)

const deliveryColumns = `id, organization_id, endpoint_id, target_url, rule_id, event_id, event_type, payload, status,
	response_status, error_message, attempt_number, max_attempts, timeout_seconds, retry_of, next_attempt_at,
	created_at, processed_at`

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) Create(d *models.WebhookDelivery) error {
	d.ID = "whd_" + uuid.New().String()
	if d.CreatedAt == 0 {
		d.CreatedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO webhook_deliveries (` + deliveryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, d.ID, d.OrganizationID, nullString(d.EndpointID), nullString(d.TargetURL),
		nullString(d.RuleID), d.EventID, string(d.EventType), string(d.Payload), string(d.Status),
		nullInt(int64(d.ResponseStatus)), nullString(d.ErrorMessage), d.AttemptNumber, d.MaxAttempts,
		d.TimeoutSeconds, nullString(d.RetryOf), nullInt(d.NextAttemptAt), d.CreatedAt, nullInt(d.ProcessedAt))
	return err
}

func (r *DeliveryRepository) GetByID(id string) (*models.WebhookDelivery, error) {
	row := r.db.QueryRow(`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = ?`, id)
	d, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("delivery %s: %w", id, apperrors.ErrNotFound)
	}
	return d, err
}

func (r *DeliveryRepository) GetForOrg(orgID, id string) (*models.WebhookDelivery, error) {
	row := r.db.QueryRow(`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = ? AND organization_id = ?`, id, orgID)
	d, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("delivery %s: %w", id, apperrors.ErrNotFound)
	}
	return d, err
}

// ListByEndpoint pages through an endpoint's delivery history, newest first.
func (r *DeliveryRepository) ListByEndpoint(orgID, endpointID string, limit, offset int) ([]*models.WebhookDelivery, error) {
	rows, err := r.db.Query(`SELECT `+deliveryColumns+` FROM webhook_deliveries
		WHERE organization_id = ? AND endpoint_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, orgID, endpointID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

// ListDue returns non-terminal deliveries whose attempt has been due since
// dueBefore and that no worker holds a lease on at now. Pending rows are due
// from their creation time.
func (r *DeliveryRepository) ListDue(dueBefore, now int64, limit int) ([]*models.WebhookDelivery, error) {
	rows, err := r.db.Query(`SELECT `+deliveryColumns+` FROM webhook_deliveries
		WHERE status IN ('pending', 'retrying') AND COALESCE(next_attempt_at, created_at) <= ?
		AND (lease_until IS NULL OR lease_until <= ?)
		ORDER BY created_at ASC LIMIT ?`, dueBefore, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

// Claim leases attempt attemptNumber of a delivery until leaseUntil. It
// returns false when the row is terminal, has moved on to another attempt or
// is leased by another worker.
func (r *DeliveryRepository) Claim(id string, attemptNumber int, now, leaseUntil int64) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE webhook_deliveries SET lease_until = ?
		WHERE id = ? AND attempt_number = ? AND status IN ('pending', 'retrying')
		AND (lease_until IS NULL OR lease_until <= ?)
	`, leaseUntil, id, attemptNumber, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecordAttempt persists the outcome of an attempt. Rows already in a
// terminal state are never rewritten; ErrInvalidState is returned instead.
func (r *DeliveryRepository) RecordAttempt(d *models.WebhookDelivery) error {
	res, err := r.db.Exec(`
		UPDATE webhook_deliveries
		SET status = ?, response_status = ?, error_message = ?, attempt_number = ?, next_attempt_at = ?, processed_at = ?,
		    lease_until = NULL
		WHERE id = ? AND status NOT IN ('delivered', 'failed')
	`, string(d.Status), nullInt(int64(d.ResponseStatus)), nullString(d.ErrorMessage), d.AttemptNumber,
		nullInt(d.NextAttemptAt), nullInt(d.ProcessedAt), d.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("delivery %s is terminal or missing: %w", d.ID, apperrors.ErrInvalidState)
	}
	return nil
}

// DeleteTerminalBefore prunes finished deliveries created before the cutoff.
func (r *DeliveryRepository) DeleteTerminalBefore(cutoff int64) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM webhook_deliveries WHERE status IN ('delivered', 'failed') AND created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanDelivery(row rowScanner) (*models.WebhookDelivery, error) {
	var d models.WebhookDelivery
	var endpointID, targetURL, ruleID, errorMessage, retryOf sql.NullString
	var responseStatus, nextAttemptAt, processedAt sql.NullInt64
	var eventType, payload, status string

	err := row.Scan(&d.ID, &d.OrganizationID, &endpointID, &targetURL, &ruleID, &d.EventID, &eventType, &payload,
		&status, &responseStatus, &errorMessage, &d.AttemptNumber, &d.MaxAttempts, &d.TimeoutSeconds, &retryOf,
		&nextAttemptAt, &d.CreatedAt, &processedAt)
	if err != nil {
		return nil, err
	}

	d.EndpointID = endpointID.String
	d.TargetURL = targetURL.String
	d.RuleID = ruleID.String
	d.EventType = models.TriggerType(eventType)
	d.Payload = []byte(payload)
	d.Status = models.DeliveryStatus(status)
	d.ResponseStatus = int(responseStatus.Int64)
	d.ErrorMessage = errorMessage.String
	d.RetryOf = retryOf.String
	d.NextAttemptAt = nextAttemptAt.Int64
	d.ProcessedAt = processedAt.Int64
	return &d, nil
}

func collectDeliveries(rows *sql.Rows) ([]*models.WebhookDelivery, error) {
	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
