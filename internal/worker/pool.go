// Package worker implements the bounded worker pool (spec §4.5): a
// fixed number of consumers lease jobs from the queue, rate-limited
// globally, each driving one order through the orchestrator before
// acking or nacking.
package worker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/swaprouter/engine/internal/observability"
	"github.com/swaprouter/engine/internal/orchestrator"
	"github.com/swaprouter/engine/internal/queue"
)

const (
	// DefaultConcurrency is the default number of consumer goroutines.
	DefaultConcurrency = 10
	// DefaultStartRate caps job starts per second across the pool.
	DefaultStartRate = 100
	// DefaultMaintenanceInterval is how often the pool promotes due
	// delayed retries and reclaims stalled leases (spec §4.4).
	DefaultMaintenanceInterval = 5 * time.Second
	// leaseBlock bounds how long a single Lease call waits for work
	// before a worker loops back to check for shutdown.
	leaseBlock = 2 * time.Second
)

// Options configures a Pool.
type Options struct {
	Concurrency         int
	StartRate           float64
	MaintenanceInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.StartRate <= 0 {
		o.StartRate = DefaultStartRate
	}
	if o.MaintenanceInterval <= 0 {
		o.MaintenanceInterval = DefaultMaintenanceInterval
	}
	return o
}

// Pool runs Options.Concurrency workers leasing from q and invoking
// orch.Execute for each job.
type Pool struct {
	q       *queue.Queue
	orch    *orchestrator.Orchestrator
	opts    Options
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New constructs a Pool. Run must be called to start consuming.
func New(q *queue.Queue, orch *orchestrator.Orchestrator, opts Options) *Pool {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		q:       q,
		orch:    orch,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.StartRate), 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Run starts the worker goroutines and the background maintenance
// loop. It returns immediately; call Shutdown to drain and stop them.
func (p *Pool) Run() {
	for i := 0; i < p.opts.Concurrency; i++ {
		p.wg.Add(1)
		go p.loop()
	}
	p.wg.Add(1)
	go p.maintain()
}

// maintain periodically promotes delayed retries whose backoff has
// elapsed and reclaims leases stalled past the queue's StallTimeout
// (spec §4.4), feeding reclaimed jobs back through process.
func (p *Pool) maintain() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.MaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.q.PromoteDue(p.ctx); err != nil {
				observability.Log().Error("worker: promote due retries failed", observability.Field{Key: "error", Value: err.Error()})
			}
			jobs, err := p.q.ReclaimStalled(p.ctx)
			if err != nil {
				observability.Log().Error("worker: reclaim stalled jobs failed", observability.Field{Key: "error", Value: err.Error()})
				continue
			}
			for _, job := range jobs {
				if p.ctx.Err() != nil {
					return
				}
				p.process(*job)
			}
		}
	}
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		if p.ctx.Err() != nil {
			return
		}
		if err := p.limiter.Wait(p.ctx); err != nil {
			return
		}

		job, err := p.q.Lease(p.ctx, leaseBlock)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			observability.Log().Error("worker: lease failed", observability.Field{Key: "error", Value: err.Error()})
			continue
		}
		if job == nil {
			continue
		}

		p.process(*job)
	}
}

func (p *Pool) process(job queue.Job) {
	outcome := p.orch.Execute(p.ctx, job.OrderID)
	if outcome.Ack {
		if err := p.q.Ack(p.ctx, job); err != nil {
			observability.Log().Error("worker: ack failed",
				observability.Field{Key: "order_id", Value: job.OrderID.String()},
				observability.Field{Key: "error", Value: err.Error()},
			)
		}
		return
	}
	if err := p.q.Nack(p.ctx, job, outcome.Reason); err != nil {
		observability.Log().Error("worker: nack failed",
			observability.Field{Key: "order_id", Value: job.OrderID.String()},
			observability.Field{Key: "error", Value: err.Error()},
		)
	}
}

// Shutdown stops accepting new leases and waits for in-flight jobs to
// finish, up to ctx's deadline. Outstanding leases past the deadline
// are abandoned to the queue's stall-reclaim mechanism, which is
// itself retriable (spec §4.5).
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(p.cancel)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
