// Package scheduler runs background jobs on clock-aligned schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// JobFunc is the function signature for scheduled jobs
type JobFunc func(ctx context.Context) error

// Config holds scheduler configuration
type Config struct {
	Timezone       *time.Location // Timezone for cron expressions (default: UTC)
	RunImmediately bool           // Run every job once on Start
	Logger         *slog.Logger
}

// Scheduler wraps gocron v2. Jobs never overlap with themselves: a run that
// is still in progress when the next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron           gocron.Scheduler
	jobs           map[string]gocron.Job
	timezone       *time.Location
	runImmediately bool
	logger         *slog.Logger
}

// New creates a scheduler with no jobs
func New(cfg Config) (*Scheduler, error) {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cron, err := gocron.NewScheduler(
		gocron.WithLocation(cfg.Timezone),
		gocron.WithLogger(newGocronLoggerAdapter(cfg.Logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		cron:           cron,
		jobs:           make(map[string]gocron.Job),
		timezone:       cfg.Timezone,
		runImmediately: cfg.RunImmediately,
		logger:         cfg.Logger,
	}, nil
}

// Add registers fn under name. interval is a duration ("5m") or a cron expression.
func (s *Scheduler) Add(ctx context.Context, name, interval string, fn JobFunc) error {
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	expr, withSeconds, err := toCron(interval)
	if err != nil {
		return fmt.Errorf("job %q: %w", name, err)
	}

	logger := s.logger.With("job", name)
	job, err := s.cron.NewJob(
		gocron.CronJob(expr, withSeconds),
		gocron.NewTask(func() {
			start := time.Now()
			if err := fn(ctx); err != nil {
				logger.Error("Job execution failed", "error", err, "duration", time.Since(start).String())
				return
			}
			logger.Debug("Job completed", "duration", time.Since(start).String())
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduled job %q: %w", name, err)
	}

	logger.Info("Job scheduled", "schedule", DescribeSchedule(interval, s.timezone))
	s.jobs[name] = job
	return nil
}

// Start begins the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()

	for name, job := range s.jobs {
		if s.runImmediately {
			if err := job.RunNow(); err != nil {
				s.logger.Error("Immediate execution failed", "job", name, "error", err)
			}
		}
		if next, err := job.NextRun(); err == nil {
			s.logger.Info("Scheduler started", "job", name, "next_run", next.Format(time.RFC3339))
		}
	}
}

// Stop stops the scheduler gracefully, waiting for running jobs
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	return s.cron.Shutdown()
}

// NextRun returns the next scheduled run time of a job
func (s *Scheduler) NextRun(name string) (time.Time, error) {
	job, ok := s.jobs[name]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown job %q", name)
	}
	next, err := job.NextRun()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get next run: %w", err)
	}
	return next, nil
}

// ExpectedInterval returns the period between runs for duration intervals.
// Cron expressions may be irregular, so a conservative default is returned.
func ExpectedInterval(interval string) time.Duration {
	if d, err := time.ParseDuration(interval); err == nil {
		return d
	}
	return 5 * time.Minute
}

// gocronLoggerAdapter adapts slog.Logger to gocron.Logger interface
type gocronLoggerAdapter struct {
	logger *slog.Logger
}

func newGocronLoggerAdapter(logger *slog.Logger) gocron.Logger {
	return &gocronLoggerAdapter{logger: logger}
}

func (a *gocronLoggerAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a *gocronLoggerAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *gocronLoggerAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *gocronLoggerAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
