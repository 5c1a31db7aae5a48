package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"notifyd/internal/app"
	"notifyd/internal/pkg/logger"
	"notifyd/internal/platform/config"
)

// The worker runs the engine without the HTTP API: it consumes domain events
// from Kafka and delivers webhooks.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.Logging)

	if !cfg.Kafka.Enabled {
		log.Warn().Msg("kafka is disabled; worker will only deliver pending webhooks and run maintenance jobs")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}
	defer engine.Close()

	log.Info().Msg("starting notifyd worker")
	engine.Start(ctx)

	if engine.Consumer != nil {
		if err := engine.Consumer.Run(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer stopped")
			stop()
		}
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	engine.Stop()
}
