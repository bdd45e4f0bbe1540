package loadgen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pior/emc"
	"github.com/pior/emc/internal/logger"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is how often the coordinator checks for an interrupt
// while waiting on workers.
const DefaultPollInterval = 50 * time.Millisecond

// Config holds configuration for a Pool.
type Config struct {
	// Addr is the server address.
	Addr string

	// Workers is the number of concurrent workers. Defaults to 4.
	Workers int

	// Client configures every client of the run.
	Client emc.Config

	// Logger defaults to logger.Nil.
	Logger logger.Logger

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// for testing purposes only
	constructor func(ctx context.Context) (*emc.Client, error)
}

// Pool runs a Task on concurrent workers, each with its own connection.
type Pool struct {
	config Config
	log    logger.Logger

	mu      sync.Mutex
	clients *ClientPool // set while running
}

// NewPool creates a pool driver.
func NewPool(config Config) *Pool {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Logger == nil {
		config.Logger = logger.Nil
	}
	if config.constructor == nil {
		config.constructor = DialConstructor(config.Addr, config.Client)
	}
	return &Pool{config: config, log: config.Logger}
}

// Run executes task: Pre on a dedicated client, Work on every worker, then
// Post with the aggregated report.
//
// Cancelling ctx, or reaching its deadline, is the interrupt: workers stop at their next unit boundary
// and Post still runs, on a context that is not cancelled. A worker error
// ends that worker only; it is listed in the report. Run returns an error
// only when the run could not start, or when Post fails.
func (p *Pool) Run(ctx context.Context, task Task) (Report, error) {
	workers := p.config.Workers
	log := p.log.With(task.Name())

	clients, err := NewClientPool(p.config.constructor, int32(workers+1))
	if err != nil {
		return Report{}, err
	}
	defer clients.Close()

	p.mu.Lock()
	p.clients = clients
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.clients = nil
		p.mu.Unlock()
	}()

	control, err := clients.Acquire(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("connecting to %s: %w", p.config.Addr, err)
	}
	var controlErr error
	defer func() { control.Release(controlErr) }()

	if controlErr = task.Pre(ctx, control.Client()); controlErr != nil {
		return Report{}, fmt.Errorf("%s pre-phase: %w", task.Name(), controlErr)
	}

	log.Debug("starting %d workers", workers)
	start := time.Now()

	metrics := make([]Metrics, workers)
	errs := make([]error, workers)
	stats := make([]emc.ClientStats, workers)

	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			stats[i], errs[i] = p.runWorker(ctx, clients, task, i, &metrics[i], log)
			return errs[i]
		})
	}

	p.wait(ctx, &g, log)

	var total emc.ClientStats
	for _, s := range stats {
		total = total.Add(s)
	}

	report := newReport(task.Name(), metrics, total)
	report.Duration = time.Since(start)
	report.Interrupted = ctx.Err() != nil
	for i, err := range errs {
		if err != nil && !errors.Is(err, ctx.Err()) {
			report.Errors = append(report.Errors, WorkerError{Worker: i + 1, Err: err})
		}
	}

	if controlErr = task.Post(context.WithoutCancel(ctx), control.Client(), report); controlErr != nil {
		return report, fmt.Errorf("%s post-phase: %w", task.Name(), controlErr)
	}
	return report, nil
}

func (p *Pool) runWorker(ctx context.Context, clients *ClientPool, task Task, index int, m *Metrics, log logger.Logger) (stats emc.ClientStats, err error) {
	id := index + 1
	wlog := log.With(fmt.Sprintf("worker%d", id))

	lease, err := clients.Acquire(ctx)
	if err != nil {
		wlog.Error("no connection: %v", err)
		return stats, err
	}
	client := lease.Client()
	before := client.ClientStats()

	start := time.Now()
	defer func() {
		m.Wall = time.Since(start)
		stats = client.ClientStats().Sub(before)
		lease.Release(err)
	}()

	w := &Worker{ID: id, Client: client, Metrics: m, Log: wlog}
	err = task.Work(ctx, w)
	if err != nil && !errors.Is(err, ctx.Err()) {
		wlog.Error("stopped: %v", err)
	}
	return stats, err
}

// wait blocks until every worker returned, polling so that an interrupt is
// reported as soon as it happens.
func (p *Pool) wait(ctx context.Context, g *errgroup.Group, log logger.Logger) {
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	interrupted := false
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !interrupted && ctx.Err() != nil {
				interrupted = true
				log.Warn("interrupted, waiting for workers to stop")
			}
		}
	}
}

// PoolStats returns the client pool statistics of the current run, if any.
func (p *Pool) PoolStats() (PoolStats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clients == nil {
		return PoolStats{}, false
	}
	return p.clients.Stats(), true
}
