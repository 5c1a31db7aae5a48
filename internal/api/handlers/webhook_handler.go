package handlers

import (
	"net/http"

	"notifyd/internal/engine/webhooks"
	"notifyd/internal/pkg/errors"
	"notifyd/internal/platform/audit"
	"notifyd/internal/platform/models"
)

type WebhookHandler struct {
	svc   *webhooks.Service
	audit *audit.Logger
}

func NewWebhookHandler(svc *webhooks.Service, auditLog *audit.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, audit: auditLog}
}

// createdEndpoint is the only response that carries the signing secret.
type createdEndpoint struct {
	*models.WebhookEndpoint
	Secret string `json:"secret"`
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req webhooks.EndpointInput
	if !decodeJSON(w, r, &req) {
		return
	}

	endpoint, err := h.svc.CreateEndpoint(claims.OrganizationID, req)
	if err != nil {
		errors.WriteServiceError(w, err)
		return
	}

	h.audit.Log(r, claims, audit.Entry{
		Action:       "webhook.created",
		ResourceType: "webhook_endpoint",
		ResourceID:   endpoint.ID,
		Metadata:     map[string]interface{}{"url": endpoint.URL},
	})
	writeJSON(w, http.StatusCreated, createdEndpoint{WebhookEndpoint: endpoint, Secret: endpoint.Secret})
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.svc.ListEndpoints(claimsFrom(r).OrganizationID)
	if err != nil {
		errors.WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, endpoints)
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	endpoint, err := h.svc.GetEndpoint(claimsFrom(r).OrganizationID, param(r, "webhook_id"))
	if err != nil {
		errors.WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, endpoint)
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req webhooks.EndpointInput
	if !decodeJSON(w, r, &req) {
		return
	}

	endpoint, err := h.svc.UpdateEndpoint(claims.OrganizationID, param(r, "webhook_id"), req)
	if err != nil {
		errors.WriteServiceError(w, err)
		return
	}

	h.audit.Log(r, claims, audit.Entry{
		Action:       "webhook.updated",
		ResourceType: "webhook_endpoint",
		ResourceID:   endpoint.ID,
		Metadata:     map[string]interface{}{"secret_rotated": req.Secret != ""},
	})
	writeJSON(w, http.StatusOK, endpoint)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	id := param(r, "webhook_id")

	if err := h.svc.DeleteEndpoint(claims.OrganizationID, id); err != nil {
		errors.WriteServiceError(w, err)
		return
	}

	h.audit.Log(r, claims, audit.Entry{Action: "webhook.deleted", ResourceType: "webhook_endpoint", ResourceID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Test(r.Context(), claimsFrom(r).OrganizationID, param(r, "webhook_id"))
	if err != nil {
		errors.WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *WebhookHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := h.svc.ListDeliveries(claimsFrom(r).OrganizationID, param(r, "webhook_id"),
		queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		errors.WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deliveries)
}

func (h *WebhookHandler) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	delivery, err := h.svc.RetryDelivery(r.Context(), claims.OrganizationID, param(r, "delivery_id"))
	if err != nil {
		errors.WriteServiceError(w, err)
		return
	}

	h.audit.Log(r, claims, audit.Entry{
		Action:       "webhook_delivery.retried",
		ResourceType: "webhook_delivery",
		ResourceID:   delivery.ID,
		Metadata:     map[string]interface{}{"retry_of": delivery.RetryOf},
	})
	writeJSON(w, http.StatusAccepted, delivery)
}
