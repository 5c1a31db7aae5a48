// Package workers runs the engine's periodic maintenance jobs.
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"notifyd/internal/engine/rules"
	"notifyd/internal/engine/suppression"
	"notifyd/internal/engine/webhooks"
	"notifyd/internal/pkg/logger"
)

// Job is a unit of periodic work. Run errors are logged and the job keeps its
// schedule.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs []Job
	log  zerolog.Logger
	wg   sync.WaitGroup
}

func NewScheduler(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, log: logger.Component("workers")}
}

// Start launches one goroutine per job with a positive interval. They stop
// when ctx is done; Wait blocks until they have.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			s.log.Info().Str("job", job.Name).Msg("job disabled")
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.log.Info().Str("job", job.Name).Dur("interval", job.Interval).Msg("job scheduled")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := job.Run(ctx); err != nil {
				s.log.Error().Err(err).Str("job", job.Name).Msg("job failed")
				continue
			}
			s.log.Debug().Str("job", job.Name).Dur("took", time.Since(start)).Msg("job finished")
		}
	}
}

// DeliveryRecovery re-enqueues deliveries that are overdue by more than one
// interval, which only happens when their in-memory timer was lost.
func DeliveryRecovery(svc *webhooks.Service, interval time.Duration) Job {
	log := logger.Component("workers")
	return Job{
		Name:     "delivery_recovery",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := svc.Recover(ctx, interval)
			if n > 0 {
				log.Info().Int("requeued", n).Msg("recovered overdue deliveries")
			}
			return err
		},
	}
}

// HistoryPruning deletes finished deliveries older than retention. A zero
// retention keeps history forever.
func HistoryPruning(svc *webhooks.Service, retention, interval time.Duration) Job {
	log := logger.Component("workers")
	if retention <= 0 {
		interval = 0
	}
	return Job{
		Name:     "history_pruning",
		Interval: interval,
		Run: func(context.Context) error {
			n, err := svc.PruneHistory(retention)
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("pruned delivery history")
			}
			return err
		},
	}
}

// MemorySweep bounds the in-memory counter and suppression stores. Either
// may be nil when the Redis implementation is in use.
func MemorySweep(counter *rules.MemoryCounter, ledger *suppression.MemoryLedger, idle, interval time.Duration) Job {
	log := logger.Component("workers")
	if counter == nil && ledger == nil {
		interval = 0
	}
	return Job{
		Name:     "memory_sweep",
		Interval: interval,
		Run: func(context.Context) error {
			var windows, entries int
			if counter != nil {
				windows = counter.Sweep(idle)
			}
			if ledger != nil {
				entries = ledger.Sweep()
			}
			log.Debug().Int("counter_windows", windows).Int("suppressions", entries).Msg("swept memory stores")
			return nil
		},
	}
}
