package handlers

import (
	"net/http"

	"notifyd/internal/engine/events"
	"notifyd/internal/pkg/errors"
	"notifyd/internal/platform/models"
)

type EventHandler struct {
	processor *events.Processor
}

func NewEventHandler(processor *events.Processor) *EventHandler {
	return &EventHandler{processor: processor}
}

// Ingest evaluates one domain event. The organization always comes from the
// caller's token, never from the body.
func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if !decodeJSON(w, r, &event) {
		return
	}
	event.OrganizationID = claimsFrom(r).OrganizationID

	result, err := h.processor.Process(r.Context(), &event)
	if err != nil {
		errors.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
