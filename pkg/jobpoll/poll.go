// Package jobpoll waits for asynchronous remote jobs to reach a terminal status.
//
// Some report backends answer a query with a job handle instead of data. Wait polls the
// job's status at a fixed interval until it is done (yielding the payload) or failed
// (yielding a *JobFailedError). Unlike page fetch failures, a failed job is always
// returned to the caller: there is no partial result to fall back on.
package jobpoll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var (
	jobPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibreport_job_polls_total",
		Help: "Total job status polls by job kind",
	}, []string{"kind"})

	jobOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ibreport_job_outcomes_total",
		Help: "Total finished job waits by job kind and outcome",
	}, []string{"kind", "outcome"})
)

var (
	// ErrJobFailed matches every *JobFailedError via errors.Is.
	ErrJobFailed = errors.New("job failed")

	// ErrPollLimit is returned when MaxPolls polls saw no terminal status.
	ErrPollLimit = errors.New("job poll limit reached")

	// ErrInvalidConfig is returned before polling when Config is unusable.
	ErrInvalidConfig = errors.New("invalid job poll config")
)

// Status is the state of a remote job.
type Status int

const (
	// StatusPending means the job is queued or running.
	StatusPending Status = iota

	// StatusDone means the job finished and its value is available.
	StatusDone

	// StatusFailed means the job finished with an error.
	StatusFailed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether polling stops at s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Job is one observation of a remote job.
type Job[T any] struct {
	ID     string
	Status Status
	// Value is the payload once Status is StatusDone.
	Value T
	// Message is the remote error text once Status is StatusFailed.
	Message string
}

// PollFunc fetches the current state of the job.
type PollFunc[T any] func(ctx context.Context) (Job[T], error)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// JobFailedError is returned when a job reaches StatusFailed.
type JobFailedError struct {
	JobID   string
	Message string
	Polls   int
}

// Error implements the error interface.
func (e *JobFailedError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("job failed after %d polls: %s", e.Polls, e.Message)
	}
	return fmt.Sprintf("job %s failed after %d polls: %s", e.JobID, e.Polls, e.Message)
}

// Is makes errors.Is(err, ErrJobFailed) true.
func (e *JobFailedError) Is(target error) bool {
	return target == ErrJobFailed
}

// Config controls a Wait call.
type Config struct {
	// Kind labels logs and metrics (e.g. "redash").
	Kind string

	// Interval is the pause between polls.
	Interval time.Duration

	// MaxPolls bounds the number of polls (0 = unbounded, rely on ctx).
	MaxPolls int

	// Sleep replaces the context-aware timer, mainly for tests.
	Sleep SleepFunc
}

// DefaultConfig polls once per second without a poll bound.
func DefaultConfig(kind string) Config {
	return Config{
		Kind:     kind,
		Interval: 1 * time.Second,
	}
}

func (c Config) validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("%w: interval must not be negative (got %v)", ErrInvalidConfig, c.Interval)
	}
	if c.MaxPolls < 0 {
		return fmt.Errorf("%w: max polls must not be negative (got %d)", ErrInvalidConfig, c.MaxPolls)
	}
	return nil
}

// Wait polls until the job is done or failed.
// The first poll happens immediately; Interval separates subsequent polls.
func Wait[T any](ctx context.Context, cfg Config, poll PollFunc[T]) (T, error) {
	var zero T
	if poll == nil {
		return zero, fmt.Errorf("%w: poll function is required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return zero, err
	}
	if cfg.Kind == "" {
		cfg.Kind = "job"
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	logger := log.With().Str("component", "jobpoll").Str("kind", cfg.Kind).Logger()
	start := time.Now()

	for polls := 1; ; polls++ {
		job, err := poll(ctx)
		jobPollsTotal.WithLabelValues(cfg.Kind).Inc()
		if err != nil {
			jobOutcomesTotal.WithLabelValues(cfg.Kind, "poll_error").Inc()
			return zero, fmt.Errorf("poll %s job: %w", cfg.Kind, err)
		}

		logger.Debug().
			Str("job_id", job.ID).
			Str("status", job.Status.String()).
			Int("polls", polls).
			Msg("Polled job status")

		switch job.Status {
		case StatusDone:
			jobOutcomesTotal.WithLabelValues(cfg.Kind, "done").Inc()
			logger.Debug().
				Str("job_id", job.ID).
				Int("polls", polls).
				Dur("duration", time.Since(start)).
				Msg("Job finished")
			return job.Value, nil
		case StatusFailed:
			jobOutcomesTotal.WithLabelValues(cfg.Kind, "failed").Inc()
			logger.Warn().
				Str("job_id", job.ID).
				Int("polls", polls).
				Str("message", job.Message).
				Msg("Job failed")
			return zero, &JobFailedError{JobID: job.ID, Message: job.Message, Polls: polls}
		}

		if cfg.MaxPolls > 0 && polls >= cfg.MaxPolls {
			jobOutcomesTotal.WithLabelValues(cfg.Kind, "poll_limit").Inc()
			return zero, fmt.Errorf("%w: job %s still %s after %d polls", ErrPollLimit, job.ID, job.Status, polls)
		}

		if err := sleep(ctx, cfg.Interval); err != nil {
			jobOutcomesTotal.WithLabelValues(cfg.Kind, "cancelled").Inc()
			return zero, fmt.Errorf("wait for %s job %s: %w", cfg.Kind, job.ID, err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
