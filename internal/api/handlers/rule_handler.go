package handlers

import (
	"net/http"

	"notifyd/internal/engine/rules"
	"notifyd/internal/pkg/errors"
	"notifyd/internal/platform/audit"
	"notifyd/internal/platform/models"
)

type RuleHandler struct {
	svc   *rules.Service
	audit *audit.Logger
}

func NewRuleHandler(svc *rules.Service, auditLog *audit.Logger) *RuleHandler {
	return &RuleHandler{svc: svc, audit: auditLog}
}

func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var rule models.NotificationRule
	if !decodeJSON(w, r, &rule) {
		return
	}

	if err := h.svc.Create(claims.OrganizationID, &rule); err != nil {
		errors.WriteServiceError(w, err)
		return
	}

	h.audit.Log(r, claims, audit.Entry{Action: "rule.created", ResourceType: "notification_rule", ResourceID: rule.ID})
	writeJSON(w, http.StatusCreated, rule)
}

func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(claimsFrom(r).OrganizationID, queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		errors.WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.svc.Get(claimsFrom(r).OrganizationID, param(r, "rule_id"))
	if err != nil {
		errors.WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req models.NotificationRule
	if !decodeJSON(w, r, &req) {
		return
	}

	rule, err := h.svc.Update(claims.OrganizationID, param(r, "rule_id"), &req)
	if err != nil {
		errors.WriteServiceError(w, err)
		return
	}

	h.audit.Log(r, claims, audit.Entry{Action: "rule.updated", ResourceType: "notification_rule", ResourceID: rule.ID})
	writeJSON(w, http.StatusOK, rule)
}

func (h *RuleHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		errors.WriteServiceError(w, errors.Invalid("enabled", "is required"))
		return
	}

	rule, err := h.svc.SetEnabled(claims.OrganizationID, param(r, "rule_id"), *req.Enabled)
	if err != nil {
		errors.WriteServiceError(w, err)
		return
	}

	h.audit.Log(r, claims, audit.Entry{
		Action:       "rule.toggled",
		ResourceType: "notification_rule",
		ResourceID:   rule.ID,
		Metadata:     map[string]interface{}{"enabled": rule.Enabled},
	})
	writeJSON(w, http.StatusOK, rule)
}

func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	id := param(r, "rule_id")

	if err := h.svc.Delete(claims.OrganizationID, id); err != nil {
		errors.WriteServiceError(w, err)
		return
	}

	h.audit.Log(r, claims, audit.Entry{Action: "rule.deleted", ResourceType: "notification_rule", ResourceID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *RuleHandler) Test(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Test(r.Context(), claimsFrom(r).OrganizationID, param(r, "rule_id"))
	if err != nil {
		errors.WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
