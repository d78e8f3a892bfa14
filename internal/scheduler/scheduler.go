package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kevin07696/voucher-ledger/internal/domain"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/kevin07696/voucher-ledger/pkg/observability"
	"github.com/kevin07696/voucher-ledger/pkg/resilience"
	"github.com/kevin07696/voucher-ledger/pkg/shutdown"
)

// ErrUnknownJob is returned by RunNow for a name no job carries
var ErrUnknownJob = errors.New("unknown job")

// Result holds the counters a job run reports, e.g. {"expired": 3}
type Result map[string]int

// Job is one named unit of background work run on a fixed interval
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (Result, error)
}

// Scheduler runs each job in its own periodic worker. A job never overlaps
// itself; different jobs run concurrently.
type Scheduler struct {
	jobs     []Job
	timeouts *resilience.TimeoutConfig
	logger   ports.Logger

	mu      sync.Mutex
	workers []*shutdown.PeriodicWorker
}

// New creates a scheduler for the given jobs. Jobs with a non-positive
// interval are disabled.
func New(jobs []Job, timeouts *resilience.TimeoutConfig, logger ports.Logger) *Scheduler {
	return &Scheduler{jobs: jobs, timeouts: timeouts, logger: logger}
}

// Start launches one worker per enabled job
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.logger.Info("Job disabled", ports.String("job", job.Name))
			continue
		}
		job := job
		w := shutdown.NewPeriodicWorker(job.Name, job.Interval, s.logger)
		w.Start(func(ctx context.Context) {
			_, _ = s.runOnce(ctx, job, "scheduler")
		})
		s.workers = append(s.workers, w)
	}
	s.logger.Info("Scheduler started", ports.Int("workers", len(s.workers)))
}

// RunNow runs the named job once outside its schedule. trigger labels the
// run in logs and metrics.
func (s *Scheduler) RunNow(ctx context.Context, name, trigger string) (Result, error) {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.runOnce(ctx, job, trigger)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

// Jobs lists the configured job names in registration order
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for _, job := range s.jobs {
		names = append(names, job.Name)
	}
	return names
}

func (s *Scheduler) runOnce(ctx context.Context, job Job, trigger string) (Result, error) {
	ctx, cancel := s.timeouts.CronContext(ctx)
	defer cancel()

	start := time.Now()
	result, err := job.Run(ctx)
	elapsed := time.Since(start)
	observability.RecordJobRun(job.Name, trigger, domain.OutcomeLabel(err), elapsed.Seconds())

	if err != nil {
		s.logger.Error("Job failed",
			ports.String("job", job.Name),
			ports.String("trigger", trigger),
			ports.Duration("elapsed", elapsed),
			ports.Err(err),
		)
		return result, err
	}
	s.logger.Debug("Job finished",
		ports.String("job", job.Name),
		ports.String("trigger", trigger),
		ports.Duration("elapsed", elapsed),
		ports.Any("result", result),
	)
	return result, nil
}

// Shutdown stops all workers, waiting for running jobs or ctx
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	workers := s.workers
	s.workers = nil
	s.mu.Unlock()

	var firstErr error
	for _, w := range workers {
		if err := w.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
