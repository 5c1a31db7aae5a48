package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type HealthHandler struct {
	db    *sql.DB
	redis goredis.UniversalClient // nil when the rule stores are in memory
}

func NewHealthHandler(db *sql.DB, redis goredis.UniversalClient) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	degraded := false

	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
		degraded = true
	} else {
		checks["database"] = "healthy"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			degraded = true
		} else {
			checks["redis"] = "healthy"
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if degraded {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
