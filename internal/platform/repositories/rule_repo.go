package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "notifyd/internal/pkg/errors"
	"notifyd/internal/platform/models"
)

const ruleColumns = `id, organization_id, name, description, trigger_type, enabled, priority, condition_count, condition_window_minutes, actions, created_at, updated_at`

type RuleRepository struct {
	db *sql.DB
}

func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) Create(rule *models.NotificationRule) error {
	rule.ID = "rule_" + uuid.New().String()
	rule.CreatedAt = time.Now().Unix()
	rule.UpdatedAt = rule.CreatedAt

	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO notification_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, rule.ID, rule.OrganizationID, rule.Name, rule.Description, string(rule.TriggerType),
		rule.Enabled, rule.Priority, rule.Conditions.Count, rule.Conditions.TimeWindowMinutes, string(actionsJSON),
		rule.CreatedAt, rule.UpdatedAt)
	return err
}

func (r *RuleRepository) GetByID(orgID, id string) (*models.NotificationRule, error) {
	row := r.db.QueryRow(`SELECT `+ruleColumns+` FROM notification_rules WHERE id = ? AND organization_id = ?`, id, orgID)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s: %w", id, apperrors.ErrNotFound)
	}
	return rule, err
}

func (r *RuleRepository) List(orgID string, limit, offset int) ([]*models.NotificationRule, error) {
	rows, err := r.db.Query(`SELECT `+ruleColumns+` FROM notification_rules WHERE organization_id = ? ORDER BY priority ASC, id ASC LIMIT ? OFFSET ?`,
		orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

// ListEnabledByTrigger returns the enabled rules for a trigger in evaluation
// order: ascending priority, ties broken by id.
func (r *RuleRepository) ListEnabledByTrigger(orgID string, trigger models.TriggerType) ([]*models.NotificationRule, error) {
	rows, err := r.db.Query(`SELECT `+ruleColumns+` FROM notification_rules
		WHERE organization_id = ? AND trigger_type = ? AND enabled = 1
		ORDER BY priority ASC, id ASC`, orgID, string(trigger))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

func (r *RuleRepository) Update(rule *models.NotificationRule) error {
	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return err
	}
	rule.UpdatedAt = time.Now().Unix()

	query := `
		UPDATE notification_rules
		SET name = ?, description = ?, trigger_type = ?, enabled = ?, priority = ?,
		    condition_count = ?, condition_window_minutes = ?, actions = ?, updated_at = ?
		WHERE id = ? AND organization_id = ?
	`
	res, err := r.db.Exec(query, rule.Name, rule.Description, string(rule.TriggerType), rule.Enabled, rule.Priority,
		rule.Conditions.Count, rule.Conditions.TimeWindowMinutes, string(actionsJSON), rule.UpdatedAt,
		rule.ID, rule.OrganizationID)
	if err != nil {
		return err
	}
	return expectAffected(res, "rule", rule.ID)
}

func (r *RuleRepository) SetEnabled(orgID, id string, enabled bool) error {
	res, err := r.db.Exec(`UPDATE notification_rules SET enabled = ?, updated_at = ? WHERE id = ? AND organization_id = ?`,
		enabled, time.Now().Unix(), id, orgID)
	if err != nil {
		return err
	}
	return expectAffected(res, "rule", id)
}

func (r *RuleRepository) Delete(orgID, id string) error {
	res, err := r.db.Exec(`DELETE FROM notification_rules WHERE id = ? AND organization_id = ?`, id, orgID)
	if err != nil {
		return err
	}
	return expectAffected(res, "rule", id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*models.NotificationRule, error) {
	var rule models.NotificationRule
	var description sql.NullString
	var trigger, actionsStr string

	err := row.Scan(&rule.ID, &rule.OrganizationID, &rule.Name, &description, &trigger, &rule.Enabled, &rule.Priority,
		&rule.Conditions.Count, &rule.Conditions.TimeWindowMinutes, &actionsStr, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.TriggerType = models.TriggerType(trigger)
	if err := json.Unmarshal([]byte(actionsStr), &rule.Actions); err != nil {
		return nil, fmt.Errorf("decode actions for rule %s: %w", rule.ID, err)
	}
	return &rule, nil
}

func collectRules(rows *sql.Rows) ([]*models.NotificationRule, error) {
	var rules []*models.NotificationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func expectAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, apperrors.ErrNotFound)
	}
	return nil
}
