package handlers

import (
	"net/http"

	"notifyd/internal/pkg/metrics"
)

type MetricsHandler struct {
	handler http.Handler
}

func NewMetricsHandler(m *metrics.Metrics) *MetricsHandler {
	return &MetricsHandler{handler: m.Handler()}
}

func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}
