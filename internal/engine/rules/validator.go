package rules

import (
	"errors"
	"fmt"
	"strings"

	"notifyd/internal/engine/actions"
	apperrors "notifyd/internal/pkg/errors"
	"notifyd/internal/platform/models"
)

// Validate rejects rule shapes the engine cannot execute.
func Validate(rule *models.NotificationRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return apperrors.Invalid("name", "is required")
	}
	if !rule.TriggerType.Valid() {
		return apperrors.Invalid("trigger_type", "unknown trigger type %q", rule.TriggerType)
	}
	if rule.Conditions.Count < 1 {
		return apperrors.Invalid("conditions.count", "must be at least 1")
	}
	if rule.Conditions.TimeWindowMinutes < 1 {
		return apperrors.Invalid("conditions.time_window_minutes", "must be at least 1")
	}
	if len(rule.Actions) == 0 {
		return apperrors.Invalid("actions", "at least one action is required")
	}

	for i, raw := range rule.Actions {
		if _, err := actions.Resolve(raw); err != nil {
			var verr *apperrors.ValidationError
			if errors.As(err, &verr) {
				return apperrors.Invalid(fmt.Sprintf("actions[%d].%s", i, verr.Field), "%s", verr.Message)
			}
			return err
		}
	}
	return nil
}
