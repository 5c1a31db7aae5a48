package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "notifyd/internal/api/context"
	"notifyd/internal/api/handlers"
	"notifyd/internal/api/middleware"
	"notifyd/internal/platform/auth"
)

type Dependencies struct {
	EventHandler   *handlers.EventHandler
	RuleHandler    *handlers.RuleHandler
	WebhookHandler *handlers.WebhookHandler
	HealthHandler  *handlers.HealthHandler
	MetricsHandler *handlers.MetricsHandler
	AuthMiddleware *middleware.AuthMiddleware
	RateLimiter    *middleware.RateLimiter
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	authMid := deps.AuthMiddleware.Handle
	admin := middleware.RequireRole(auth.RoleAdmin, auth.RoleOwner)
	producer := middleware.RequireRole(auth.RoleService, auth.RoleAdmin, auth.RoleOwner)

	// Event ingestion
	router.POST("/api/v1/events",
		chain(deps.EventHandler.Ingest, authMid, producer, deps.RateLimiter.Handle))

	// Notification rules
	router.GET("/api/v1/notification-rules",
		chain(deps.RuleHandler.List, authMid))
	router.POST("/api/v1/notification-rules",
		chain(deps.RuleHandler.Create, authMid, admin))
	router.GET("/api/v1/notification-rules/:rule_id",
		chain(deps.RuleHandler.Get, authMid))
	router.PUT("/api/v1/notification-rules/:rule_id",
		chain(deps.RuleHandler.Update, authMid, admin))
	router.PATCH("/api/v1/notification-rules/:rule_id/enabled",
		chain(deps.RuleHandler.SetEnabled, authMid, admin))
	router.DELETE("/api/v1/notification-rules/:rule_id",
		chain(deps.RuleHandler.Delete, authMid, admin))
	router.POST("/api/v1/notification-rules/:rule_id/test",
		chain(deps.RuleHandler.Test, authMid, admin))

	// Webhook endpoints
	router.GET("/api/v1/webhooks",
		chain(deps.WebhookHandler.List, authMid))
	router.POST("/api/v1/webhooks",
		chain(deps.WebhookHandler.Create, authMid, admin))
	router.GET("/api/v1/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Get, authMid))
	router.PATCH("/api/v1/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Update, authMid, admin))
	router.DELETE("/api/v1/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Delete, authMid, admin))
	router.POST("/api/v1/webhooks/:webhook_id/test",
		chain(deps.WebhookHandler.Test, authMid, admin))
	router.GET("/api/v1/webhooks/:webhook_id/deliveries",
		chain(deps.WebhookHandler.ListDeliveries, authMid))

	// Delivery history
	router.POST("/api/v1/webhook-deliveries/:delivery_id/retry",
		chain(deps.WebhookHandler.RetryDelivery, authMid, admin))

	return router
}

// chain applies middlewares outermost first.
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
