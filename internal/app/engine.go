// Package app assembles the notification engine from configuration. Both the
// API server and the standalone worker run the same engine.
package app

import (
	"context"
	"database/sql"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"notifyd/internal/engine/actions"
	"notifyd/internal/engine/channels"
	"notifyd/internal/engine/events"
	"notifyd/internal/engine/rules"
	"notifyd/internal/engine/suppression"
	"notifyd/internal/engine/webhooks"
	"notifyd/internal/pkg/fieldcrypt"
	"notifyd/internal/pkg/metrics"
	"notifyd/internal/platform/config"
	"notifyd/internal/platform/database"
	"notifyd/internal/platform/redis"
	"notifyd/internal/platform/repositories"
	"notifyd/internal/workers"
)

const secretPurpose = "webhook-endpoint-secret"

type Engine struct {
	DB        *sql.DB
	Redis     goredis.UniversalClient // nil unless redis.enabled
	Metrics   *metrics.Metrics
	Processor *events.Processor
	Rules     *rules.Service
	Webhooks  *webhooks.Service
	Consumer  *events.Consumer // nil unless kafka.enabled
	Scheduler *workers.Scheduler
}

func Build(ctx context.Context, cfg *config.Config) (*Engine, error) {
	e := &Engine{Metrics: metrics.New()}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	e.DB = db
	if err := database.Migrate(db); err != nil {
		e.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	if cfg.Redis.Enabled {
		client, err := redis.NewUniversalClient(ctx, cfg.Redis)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		e.Redis = client
	}

	enc, err := fieldcrypt.New([]byte(cfg.Security.EncryptionKey), secretPurpose)
	if err != nil {
		e.Close()
		return nil, err
	}

	registry, err := channels.NewRegistry(cfg.Channels)
	if err != nil {
		e.Close()
		return nil, err
	}

	var (
		counters      rules.CounterStore
		ledger        suppression.Ledger
		memoryCounter *rules.MemoryCounter
		memoryLedger  *suppression.MemoryLedger
	)
	if cfg.Rules.CounterStore == "redis" {
		counters = rules.NewRedisCounter(e.Redis, cfg.Redis.KeyPrefix)
	} else {
		memoryCounter = rules.NewMemoryCounter()
		counters = memoryCounter
	}
	if cfg.Rules.SuppressionStore == "redis" {
		ledger = suppression.NewRedisLedger(e.Redis, cfg.Redis.KeyPrefix)
	} else {
		memoryLedger = suppression.NewMemoryLedger(nil)
		ledger = memoryLedger
	}

	ruleRepo := repositories.NewRuleRepository(db)
	endpointRepo := repositories.NewWebhookRepository(db, enc)
	deliveryRepo := repositories.NewDeliveryRepository(db)

	wh := cfg.Webhooks
	e.Webhooks = webhooks.NewService(endpointRepo, deliveryRepo,
		webhooks.NewSender(wh.UserAgent),
		webhooks.NewPool(wh.WorkerCount, wh.QueueSize, e.Metrics),
		webhooks.Options{
			Backoff:               webhooks.Backoff{Base: wh.BaseBackoff, Max: wh.MaxBackoff},
			DefaultRetryCount:     wh.DefaultRetryCount,
			DefaultTimeoutSeconds: wh.DefaultTimeoutSeconds,
		}, e.Metrics)

	dispatcher := actions.NewDispatcher(registry, e.Webhooks, ledger, e.Metrics)
	matcher := rules.NewMatcher(ruleRepo, counters, ledger)
	e.Processor = events.NewProcessor(matcher, dispatcher, e.Metrics)
	e.Rules = rules.NewService(ruleRepo, dispatcher)

	if cfg.Kafka.Enabled {
		consumer, err := events.NewConsumer(cfg.Kafka, e.Processor)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.Consumer = consumer
	}

	e.Scheduler = workers.NewScheduler(
		workers.DeliveryRecovery(e.Webhooks, wh.RecoveryInterval),
		workers.HistoryPruning(e.Webhooks, wh.HistoryRetention, wh.RecoveryInterval),
		workers.MemorySweep(memoryCounter, memoryLedger, cfg.Rules.CounterIdleTTL, cfg.Rules.SweepInterval),
	)

	return e, nil
}

// Start begins webhook delivery, requeues deliveries left over from a
// previous run and starts the periodic jobs.
func (e *Engine) Start(ctx context.Context) {
	e.Webhooks.Start()

	n, err := e.Webhooks.Recover(ctx, 0)
	if err != nil {
		log.Error().Err(err).Msg("startup delivery recovery failed")
	} else if n > 0 {
		log.Info().Int("requeued", n).Msg("requeued deliveries from previous run")
	}

	e.Scheduler.Start(ctx)
}

// Stop waits for the periodic jobs (ctx passed to Start must be done) and
// drains the delivery pool.
func (e *Engine) Stop() {
	e.Scheduler.Wait()
	e.Webhooks.Stop()
}

func (e *Engine) Close() {
	if e.Consumer != nil {
		if err := e.Consumer.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka consumer")
		}
	}
	if e.Redis != nil {
		e.Redis.Close()
	}
	if e.DB != nil {
		e.DB.Close()
	}
}
