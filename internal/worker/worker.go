// Package worker runs fire-and-forget side effects on a bounded pool with retry and backoff.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voice-orchestrator/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Job is one unit of background work.
type Job struct {
	// Key identifies the effect for cross-instance dedupe (e.g. "sms:call:CA1").
	Key string
	// Name is the low-cardinality job kind used in logs and metrics.
	Name string
	Run  func(ctx context.Context) error
}

// Guard lets exactly one instance run a given job key.
type Guard interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// Outcome is the final result of a job.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeFailed    Outcome = "failed"
	OutcomeDropped   Outcome = "dropped"
	OutcomeDuplicate Outcome = "duplicate"
)

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int

	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration

	// Rate caps attempts per second across all workers; zero means unlimited.
	Rate  rate.Limit
	Burst int

	Guard     Guard
	OnOutcome func(job string, outcome Outcome)
	Logger    *slog.Logger
}

func (c Config) withDefaults() Config {
	out := c
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 256
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BaseBackoff <= 0 {
		out.BaseBackoff = 500 * time.Millisecond
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = 30 * time.Second
	}
	if out.AttemptTimeout <= 0 {
		out.AttemptTimeout = 10 * time.Second
	}
	if out.Rate <= 0 {
		out.Rate = rate.Inf
	}
	if out.Burst <= 0 {
		out.Burst = out.Workers
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Dispatcher owns a bounded queue and a fixed set of workers.
// Submit never blocks the caller; a full queue drops the job.
type Dispatcher struct {
	cfg     Config
	queue   chan Job
	limiter *rate.Limiter

	mu      sync.RWMutex
	closed  bool
	started bool

	g      *errgroup.Group
	cancel context.CancelFunc

	// newTimer is injectable for tests; nil uses a real timer.
	newTimer func() backoff.Timer
}

func New(cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:     cfg,
		queue:   make(chan Job, cfg.QueueSize),
		limiter: rate.NewLimiter(cfg.Rate, cfg.Burst),
	}
}

// Start launches the workers. Jobs run on a context detached from ctx's cancellation
// so that Stop can drain the queue; Stop cancels them if its own deadline passes.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	d.g = g
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			for job := range d.queue {
				d.run(gctx, job)
			}
			return nil
		})
	}
	d.cfg.Logger.Info("worker pool started", "workers", d.cfg.Workers, "queue_size", d.cfg.QueueSize)
}

// Submit enqueues job without blocking. It returns false if the job was dropped.
func (d *Dispatcher) Submit(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || job.Run == nil {
		d.report(job.Name, OutcomeDropped)
		return false
	}
	select {
	case d.queue <- job:
		return true
	default:
		d.cfg.Logger.Warn("worker queue full, job dropped", "job", job.Name, "key", job.Key)
		d.report(job.Name, OutcomeDropped)
		return false
	}
}

// Stop refuses new jobs, drains the queue and waits for workers.
// If ctx expires first, in-flight jobs are cancelled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- d.g.Wait() }()

	select {
	case err := <-done:
		d.cancel()
		return err
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("worker: stop: %w", ctx.Err())
	}
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	log := d.cfg.Logger.With("job", job.Name, "key", job.Key)
	ctx = logger.With(ctx, log)

	if d.cfg.Guard != nil && job.Key != "" {
		ok, err := d.cfg.Guard.Claim(ctx, job.Key)
		switch {
		case err != nil:
			log.Warn("job guard unavailable, running unguarded", "err", err)
		case !ok:
			log.Debug("job already claimed elsewhere")
			d.report(job.Name, OutcomeDuplicate)
			return
		}
	}

	attempts := 0
	op := func() error {
		if err := d.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		defer cancel()
		err := job.Run(attemptCtx)
		if IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("job attempt failed, retrying", "attempt", attempts, "backoff_ms", wait.Milliseconds(), "err", err)
	}

	var timer backoff.Timer
	if d.newTimer != nil {
		timer = d.newTimer()
	}
	if err := backoff.RetryNotifyWithTimer(op, d.policy(ctx), notify, timer); err != nil {
		log.Error("job failed", "attempts", attempts, "err", err)
		d.report(job.Name, OutcomeFailed)
		return
	}
	if attempts > 1 {
		log.Info("job succeeded after retry", "attempt", attempts)
	}
	d.report(job.Name, OutcomeSent)
}

// policy doubles from BaseBackoff up to MaxBackoff with +/-50% jitter and stops after
// MaxAttempts tries or when ctx ends.
func (d *Dispatcher) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.BaseBackoff
	b.MaxInterval = d.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.cfg.MaxAttempts-1)), ctx)
}

func (d *Dispatcher) report(name string, o Outcome) {
	if d.cfg.OnOutcome != nil {
		d.cfg.OnOutcome(name, o)
	}
}
