package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"notifyd/internal/engine/actions"
	"notifyd/internal/pkg/logger"
	"notifyd/internal/platform/models"
	"notifyd/internal/platform/repositories"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type TestFirer interface {
	TestFire(ctx context.Context, rule *models.NotificationRule) []actions.ActionOutcome
}

// Service manages notification rules for an organization.
type Service struct {
	repo  *repositories.RuleRepository
	firer TestFirer
	log   zerolog.Logger
}

func NewService(repo *repositories.RuleRepository, firer TestFirer) *Service {
	return &Service{
		repo:  repo,
		firer: firer,
		log:   logger.Component("rules"),
	}
}

func (s *Service) Create(orgID string, rule *models.NotificationRule) error {
	rule.OrganizationID = orgID
	rule.Name = strings.TrimSpace(rule.Name)
	if err := Validate(rule); err != nil {
		return err
	}
	if err := s.repo.Create(rule); err != nil {
		return err
	}

	s.log.Info().Str("rule_id", rule.ID).Str("organization_id", orgID).Str("trigger_type", string(rule.TriggerType)).Msg("rule created")
	return nil
}

// Update replaces the editable fields of a rule. Rolling counters are kept:
// a lowered count applies on the next event.
func (s *Service) Update(orgID, id string, in *models.NotificationRule) (*models.NotificationRule, error) {
	rule, err := s.repo.GetByID(orgID, id)
	if err != nil {
		return nil, err
	}

	rule.Name = strings.TrimSpace(in.Name)
	rule.Description = in.Description
	rule.TriggerType = in.TriggerType
	rule.Enabled = in.Enabled
	rule.Priority = in.Priority
	rule.Conditions = in.Conditions
	rule.Actions = in.Actions

	if err := Validate(rule); err != nil {
		return nil, err
	}
	if err := s.repo.Update(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) Get(orgID, id string) (*models.NotificationRule, error) {
	return s.repo.GetByID(orgID, id)
}

func (s *Service) List(orgID string, limit, offset int) ([]*models.NotificationRule, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	rules, err := s.repo.List(orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []*models.NotificationRule{}
	}
	return rules, nil
}

// SetEnabled toggles a rule without a full edit. The matcher reads rules on
// every event, so the change applies to the next evaluation.
func (s *Service) SetEnabled(orgID, id string, enabled bool) (*models.NotificationRule, error) {
	if err := s.repo.SetEnabled(orgID, id, enabled); err != nil {
		return nil, err
	}
	s.log.Info().Str("rule_id", id).Bool("enabled", enabled).Msg("rule toggled")
	return s.repo.GetByID(orgID, id)
}

// Delete stops future matching. Delivery history referencing the rule is kept.
func (s *Service) Delete(orgID, id string) error {
	if err := s.repo.Delete(orgID, id); err != nil {
		return err
	}
	s.log.Info().Str("rule_id", id).Str("organization_id", orgID).Msg("rule deleted")
	return nil
}

type TestResult struct {
	Success  bool                    `json:"success"`
	Message  string                  `json:"message"`
	Outcomes []actions.ActionOutcome `json:"outcomes"`
}

// Test fires the rule's actions against a synthetic event, regardless of its
// conditions and enabled flag.
func (s *Service) Test(ctx context.Context, orgID, id string) (*TestResult, error) {
	rule, err := s.repo.GetByID(orgID, id)
	if err != nil {
		return nil, err
	}

	outcomes := s.firer.TestFire(ctx, rule)

	var failed []string
	executed, skipped := 0, 0
	for _, o := range outcomes {
		switch o.Status {
		case actions.StatusFailed:
			failed = append(failed, fmt.Sprintf("action %d (%s): %s", o.Index, o.Type, o.Error))
		case actions.StatusSkipped:
			skipped++
		default:
			executed++
		}
	}

	result := &TestResult{Success: len(failed) == 0, Outcomes: outcomes}
	if result.Success {
		result.Message = fmt.Sprintf("%d action(s) executed, %d skipped", executed, skipped)
	} else {
		result.Message = strings.Join(failed, "; ")
	}

	s.log.Info().Str("rule_id", rule.ID).Bool("success", result.Success).Msg("rule test fired")
	return result, nil
}
