package webhooks

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"notifyd/internal/pkg/logger"
	"notifyd/internal/pkg/metrics"
)

// Pool is a bounded set of workers consuming delivery ids. A delivery id is
// handled by at most one worker at a time, which keeps each attempt chain
// strictly sequential.
type Pool struct {
	jobs     chan string
	workers  int
	handler  func(deliveryID string) time.Time
	inflight sync.Map // delivery id -> struct{}
	timers   sync.Map // delivery id -> *time.Timer
	metrics  *metrics.Metrics
	log      zerolog.Logger

	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
}

func NewPool(workers, queueSize int, m *metrics.Metrics) *Pool {
	return &Pool{
		jobs:    make(chan string, queueSize),
		workers: workers,
		metrics: m,
		log:     logger.Component("webhook_pool"),
		done:    make(chan struct{}),
	}
}

// Start launches the workers. handler runs one attempt for a delivery and
// returns when the next attempt is due, or the zero time when none is.
func (p *Pool) Start(handler func(deliveryID string) time.Time) {
	p.handler = handler
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	p.log.Info().Int("workers", p.workers).Msg("webhook worker pool started")
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case id := <-p.jobs:
			p.metrics.QueueDepth.Dec()
			p.run(id)
		}
	}
}

func (p *Pool) run(id string) {
	if _, busy := p.inflight.LoadOrStore(id, struct{}{}); busy {
		// The running attempt schedules whatever comes next.
		return
	}

	next := p.call(id)
	p.inflight.Delete(id)

	if !next.IsZero() {
		p.Schedule(id, next)
	}
}

func (p *Pool) call(id string) (next time.Time) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("delivery_id", id).Msg("recovered from panic in delivery worker")
		}
	}()
	return p.handler(id)
}

// Enqueue hands a delivery to the workers without blocking. It returns false
// when the queue is full or the pool is stopped; the delivery stays due in the
// store and the recovery sweep picks it up.
func (p *Pool) Enqueue(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}

	select {
	case p.jobs <- id:
		p.metrics.QueueDepth.Inc()
		return true
	default:
		p.log.Warn().Str("delivery_id", id).Msg("webhook queue full, deferring to recovery sweep")
		return false
	}
}

// Schedule enqueues the delivery once at has passed. A later Schedule for the
// same id replaces the earlier timer.
func (p *Pool) Schedule(id string, at time.Time) {
	p.mu.RLock()
	stopped := p.stopped
	p.mu.RUnlock()
	if stopped {
		return
	}

	delay := time.Until(at)
	if delay <= 0 {
		p.Enqueue(id)
		return
	}

	timer := time.AfterFunc(delay, func() {
		p.timers.Delete(id)
		p.Enqueue(id)
	})
	if prev, loaded := p.timers.Swap(id, timer); loaded {
		prev.(*time.Timer).Stop()
	}
}

// Stop stops timers and workers and waits for in-flight attempts to finish.
// Queued and scheduled deliveries remain pending in the store.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.timers.Range(func(key, value interface{}) bool {
		value.(*time.Timer).Stop()
		p.timers.Delete(key)
		return true
	})

	close(p.done)
	p.wg.Wait()
	p.log.Info().Msg("webhook worker pool stopped")
}
