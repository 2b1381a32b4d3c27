package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one job. Return Defer to reschedule, Permanent to give up,
// or any other error to retry with backoff.
type Handler func(ctx context.Context, job Job) error

// FailureHook is called once a job has failed for good.
type FailureHook func(ctx context.Context, job Job, err error)

// Job outcomes reported to the observer.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeDeferred  = "deferred"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
)

// RunnerConfig holds runner settings
type RunnerConfig struct {
	PollInterval time.Duration
	Concurrency  int
	MaxRetries   int
}

// DefaultRunnerConfig polls every second, runs five jobs at a time and retries three times.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		PollInterval: time.Second,
		Concurrency:  5,
		MaxRetries:   3,
	}
}

// Runner polls a Backend and dispatches due jobs to registered handlers.
type Runner struct {
	backend Backend
	cfg     RunnerConfig
	log     *zap.Logger
	now     func() time.Time

	mu        sync.RWMutex
	handlers  map[string]Handler
	onFailure []FailureHook
	observer  func(jobType, outcome string)

	sem    chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewRunner creates a runner. Call Start to begin polling.
func NewRunner(backend Backend, cfg RunnerConfig, log *zap.Logger) *Runner {
	def := DefaultRunnerConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}

	return &Runner{
		backend:  backend,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		handlers: make(map[string]Handler),
		observer: func(string, string) {},
		sem:      make(chan struct{}, cfg.Concurrency),
		stopCh:   make(chan struct{}),
	}
}

// Register binds a handler to a job type.
func (r *Runner) Register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

// OnFailure adds a hook run after a job fails permanently.
func (r *Runner) OnFailure(hook FailureHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFailure = append(r.onFailure, hook)
}

// Observe sets a callback for job outcomes (metrics).
func (r *Runner) Observe(fn func(jobType, outcome string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = fn
}

// Enqueue schedules a job. A job already queued under the same ID is kept.
func (r *Runner) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.now()
	}
	if job.RunAt.IsZero() {
		job.RunAt = r.now()
	}

	added, err := r.backend.Push(ctx, job)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", job.ID, err)
	}
	if added {
		r.log.Debug("job enqueued",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Time("run_at", job.RunAt),
		)
	}
	return nil
}

// Pending counts queued jobs.
func (r *Runner) Pending(ctx context.Context) (int64, error) {
	return r.backend.Pending(ctx)
}

// Failed lists recently failed jobs.
func (r *Runner) Failed(ctx context.Context, limit int) ([]Job, error) {
	return r.backend.Failed(ctx, limit)
}

// Start begins polling in the background.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()

		r.log.Info("job runner started",
			zap.Duration("poll_interval", r.cfg.PollInterval),
			zap.Int("concurrency", r.cfg.Concurrency),
			zap.Int("max_retries", r.cfg.MaxRetries),
		)

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.poll(ctx)
			}
		}
	}()
}

// Stop stops polling and waits for running jobs to finish.
func (r *Runner) Stop() {
	r.once.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
	r.log.Info("job runner stopped")
}

// RunOnce claims due jobs and blocks until they have been handled.
func (r *Runner) RunOnce(ctx context.Context) int {
	batch := r.poll(ctx)
	batch.wg.Wait()
	return batch.n
}

type batch struct {
	wg *sync.WaitGroup
	n  int
}

func (r *Runner) poll(ctx context.Context) batch {
	b := batch{wg: &sync.WaitGroup{}}

	free := cap(r.sem) - len(r.sem)
	if free <= 0 {
		return b
	}

	jobs, err := r.backend.PopDue(ctx, r.now(), free)
	if err != nil {
		r.log.Error("failed to claim due jobs", zap.Error(err))
	}

	for _, job := range jobs {
		r.sem <- struct{}{}
		b.n++
		b.wg.Add(1)
		r.wg.Add(1)
		go func(job Job) {
			defer func() {
				<-r.sem
				b.wg.Done()
				r.wg.Done()
			}()
			r.process(ctx, job)
		}(job)
	}
	return b
}

func (r *Runner) process(ctx context.Context, job Job) {
	r.mu.RLock()
	handler, ok := r.handlers[job.Type]
	observer := r.observer
	r.mu.RUnlock()

	if !ok {
		r.fail(ctx, job, Permanent(fmt.Errorf("no handler for job type %q", job.Type)))
		observer(job.Type, OutcomeFailed)
		return
	}

	err := r.invoke(ctx, handler, job)

	var deferErr *DeferError
	switch {
	case err == nil:
		r.log.Debug("job succeeded", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		observer(job.Type, OutcomeSucceeded)

	case errors.As(err, &deferErr):
		job.RunAt = deferErr.Until
		if !job.RunAt.After(r.now()) {
			job.RunAt = r.now().Add(r.cfg.PollInterval)
		}
		r.requeue(ctx, job)
		r.log.Info("job deferred",
			zap.String("job_id", job.ID),
			zap.Time("run_at", job.RunAt),
			zap.String("reason", deferErr.Reason),
		)
		observer(job.Type, OutcomeDeferred)

	case IsPermanent(err) || job.Attempt >= r.cfg.MaxRetries:
		r.fail(ctx, job, err)
		observer(job.Type, OutcomeFailed)

	default:
		job.Attempt++
		job.LastError = err.Error()
		job.RunAt = r.now().Add(Backoff(job.Attempt))
		r.requeue(ctx, job)
		r.log.Warn("job failed, retrying",
			zap.String("job_id", job.ID),
			zap.Int("attempt", job.Attempt),
			zap.Time("run_at", job.RunAt),
			zap.Error(err),
		)
		observer(job.Type, OutcomeRetried)
	}
}

func (r *Runner) invoke(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return h(ctx, job)
}

func (r *Runner) requeue(ctx context.Context, job Job) {
	if _, err := r.backend.Push(ctx, job); err != nil {
		r.log.Error("failed to requeue job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (r *Runner) fail(ctx context.Context, job Job, err error) {
	now := r.now()
	job.FailedAt = &now
	job.LastError = err.Error()

	r.log.Error("job failed permanently",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempt),
		zap.Error(err),
	)

	if ferr := r.backend.Fail(ctx, job); ferr != nil {
		r.log.Error("failed to record failed job", zap.String("job_id", job.ID), zap.Error(ferr))
	}

	r.mu.RLock()
	hooks := r.onFailure
	r.mu.RUnlock()
	for _, hook := range hooks {
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.log.Error("failure hook panicked", zap.String("job_id", job.ID), zap.Any("panic", p))
				}
			}()
			hook(ctx, job, err)
		}()
	}
}
