package rules

import (
	"context"
	"errors"
	"strings"
	"testing"

	"notifyd/internal/engine/actions"
	apperrors "notifyd/internal/pkg/errors"
	"notifyd/internal/platform/database"
	"notifyd/internal/platform/models"
	"notifyd/internal/platform/repositories"
)

type fakeFirer struct {
	outcomes []actions.ActionOutcome
	fired    []string
}

func (f *fakeFirer) TestFire(ctx context.Context, rule *models.NotificationRule) []actions.ActionOutcome {
	f.fired = append(f.fired, rule.ID)
	return f.outcomes
}

func setupService(t *testing.T) (*Service, *fakeFirer) {
	t.Helper()
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	firer := &fakeFirer{}
	return NewService(repositories.NewRuleRepository(db), firer), firer
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *models.NotificationRule)
		wantField string
	}{
		{name: "valid", mutate: func(r *models.NotificationRule) {}},
		{name: "blank name", mutate: func(r *models.NotificationRule) { r.Name = "  " }, wantField: "name"},
		{name: "unknown trigger", mutate: func(r *models.NotificationRule) { r.TriggerType = "disk_full" }, wantField: "trigger_type"},
		{name: "zero count", mutate: func(r *models.NotificationRule) { r.Conditions.Count = 0 }, wantField: "conditions.count"},
		{name: "zero window", mutate: func(r *models.NotificationRule) {
			r.Conditions.TimeWindowMinutes = 0
		}, wantField: "conditions.time_window_minutes"},
		{name: "no actions", mutate: func(r *models.NotificationRule) { r.Actions = nil }, wantField: "actions"},
		{name: "webhook with both targets", mutate: func(r *models.NotificationRule) {
			r.Actions = append(r.Actions, models.RuleAction{
				Type: models.ActionWebhook, EndpointID: "wh_1", WebhookURL: "https://example.com",
			})
		}, wantField: "actions[1].webhook_url"},
		{name: "suppress without duration", mutate: func(r *models.NotificationRule) {
			r.Actions[0] = models.RuleAction{Type: models.ActionSuppress}
		}, wantField: "actions[0].suppress_duration_minutes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRule("rule_1", 0, 3, 60)
			tt.mutate(r)
			err := Validate(r)

			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			var verr *apperrors.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.wantField {
				t.Errorf("Validate() error = %v, want field %s", err, tt.wantField)
			}
		})
	}
}

func TestService_Lifecycle(t *testing.T) {
	svc, _ := setupService(t)

	rule := newRule("", 5, 3, 60)
	if err := svc.Create("org_1", rule); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(rule.ID, "rule_") || rule.OrganizationID != "org_1" {
		t.Fatalf("created rule = %+v", rule)
	}

	edit := *rule
	edit.Name = "Paging on repeated failures"
	edit.Conditions.Count = 2
	updated, err := svc.Update("org_1", rule.ID, &edit)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != edit.Name || updated.Conditions.Count != 2 {
		t.Errorf("Update() = %+v", updated)
	}

	toggled, err := svc.SetEnabled("org_1", rule.ID, false)
	if err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	if toggled.Enabled {
		t.Error("SetEnabled(false) left the rule enabled")
	}

	if _, err := svc.Get("org_2", rule.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Get() from another org error = %v, want ErrNotFound", err)
	}

	list, err := svc.List("org_1", 0, 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %d rules, err %v", len(list), err)
	}

	if err := svc.Delete("org_1", rule.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete("org_1", rule.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestService_CreateRejectsInvalid(t *testing.T) {
	svc, _ := setupService(t)

	rule := newRule("", 0, 0, 60)
	err := svc.Create("org_1", rule)
	var verr *apperrors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Create() error = %v, want ValidationError", err)
	}

	list, _ := svc.List("org_1", 10, 0)
	if len(list) != 0 {
		t.Error("invalid rule was persisted")
	}
}

func TestService_Test(t *testing.T) {
	svc, firer := setupService(t)
	rule := newRule("", 0, 3, 60)
	if err := svc.Create("org_1", rule); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	firer.outcomes = []actions.ActionOutcome{
		{Index: 0, Type: models.ActionNotifyChannel, Status: actions.StatusSucceeded},
		{Index: 1, Type: models.ActionSuppress, Status: actions.StatusSucceeded},
		{Index: 2, Type: models.ActionWebhook, Status: actions.StatusSkipped},
	}
	res, err := svc.Test(context.Background(), "org_1", rule.ID)
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if !res.Success || res.Message != "2 action(s) executed, 1 skipped" {
		t.Errorf("Test() = %+v", res)
	}

	firer.outcomes = []actions.ActionOutcome{
		{Index: 0, Type: models.ActionNotifyChannel, Status: actions.StatusFailed, Error: "channel unreachable"},
	}
	res, err = svc.Test(context.Background(), "org_1", rule.ID)
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if res.Success || !strings.Contains(res.Message, "channel unreachable") {
		t.Errorf("Test() = %+v, want failure mentioning the channel error", res)
	}

	if _, err := svc.Test(context.Background(), "org_1", "rule_missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Test(missing) error = %v, want ErrNotFound", err)
	}
}
