package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"notifyd/internal/api"
	"notifyd/internal/api/handlers"
	"notifyd/internal/api/middleware"
	"notifyd/internal/app"
	"notifyd/internal/pkg/logger"
	"notifyd/internal/platform/audit"
	"notifyd/internal/platform/auth"
	"notifyd/internal/platform/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}
	defer engine.Close()

	engine.Start(ctx)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	auditLog := audit.NewLogger()

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)
	rateLimiter := middleware.NewRateLimiter(cfg.Server.EventsPerMinute)
	go rateLimiter.Run(ctx)

	deps := &api.Dependencies{
		EventHandler:   handlers.NewEventHandler(engine.Processor),
		RuleHandler:    handlers.NewRuleHandler(engine.Rules, auditLog),
		WebhookHandler: handlers.NewWebhookHandler(engine.Webhooks, auditLog),
		HealthHandler:  handlers.NewHealthHandler(engine.DB, engine.Redis),
		MetricsHandler: handlers.NewMetricsHandler(engine.Metrics),
		AuthMiddleware: authMiddleware,
		RateLimiter:    rateLimiter,
	}
	router := api.NewRouter(deps)

	if engine.Consumer != nil {
		go func() {
			if err := engine.Consumer.Run(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	engine.Stop()
}
