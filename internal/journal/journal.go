// Package journal records every periodic task and job the worker runs.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trackshift/platform/sqsworker/internal/tasks"
)

const (
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusUnknown   = "UNRESOLVED"
)

// Entry is one execution.
type Entry struct {
	ID         uuid.UUID
	Kind       tasks.Kind
	Name       string
	JobID      string
	Origin     string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	// EnqueuedAt is set for jobs whose producer stamped the payload.
	EnqueuedAt time.Time
}

// Store persists entries.
type Store interface {
	Record(ctx context.Context, entry Entry) error
}

type TaskResolver interface {
	ResolveTask(name string) (tasks.TaskFunc, error)
}

type JobRunner interface {
	RunJob(ctx context.Context, job tasks.Job) error
}

// Recorder decorates a task resolver and a job runner. Results pass through
// unchanged; a failed journal write is logged and never replaces them.
type Recorder struct {
	store Store
	tasks TaskResolver
	jobs  JobRunner
	log   zerolog.Logger
	now   func() time.Time
}

func NewRecorder(store Store, resolver TaskResolver, runner JobRunner, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store: store,
		tasks: resolver,
		jobs:  runner,
		log:   logger.With().Str("component", "journal").Logger(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ResolveTask records unresolvable names immediately; resolved tasks are
// recorded when the returned func finishes.
func (r *Recorder) ResolveTask(name string) (tasks.TaskFunc, error) {
	fn, err := r.tasks.ResolveTask(name)
	if err != nil {
		now := r.now()
		r.write(context.Background(), Entry{
			Kind:       tasks.KindTask,
			Name:       name,
			Status:     StatusUnknown,
			Error:      err.Error(),
			StartedAt:  now,
			FinishedAt: now,
		})
		return nil, err
	}
	return func(ctx context.Context) error {
		entry := Entry{Kind: tasks.KindTask, Name: name, Origin: tasks.OriginFrom(ctx), StartedAt: r.now()}
		runErr := fn(ctx)
		r.finish(ctx, entry, runErr)
		return runErr
	}, nil
}

func (r *Recorder) RunJob(ctx context.Context, job tasks.Job) error {
	entry := Entry{
		Kind:       tasks.KindJob,
		Name:       job.Name,
		JobID:      job.ID,
		Origin:     tasks.OriginFrom(ctx),
		StartedAt:  r.now(),
		EnqueuedAt: job.EnqueuedAt,
	}
	runErr := r.jobs.RunJob(ctx, job)
	r.finish(ctx, entry, runErr)
	return runErr
}

func (r *Recorder) finish(ctx context.Context, entry Entry, runErr error) {
	entry.FinishedAt = r.now()
	entry.Status = StatusSucceeded
	if runErr != nil {
		entry.Status = StatusFailed
		entry.Error = runErr.Error()
		var resErr *tasks.ResolutionError
		if errors.As(runErr, &resErr) {
			entry.Status = StatusUnknown
		}
	}
	r.write(ctx, entry)
}

func (r *Recorder) write(ctx context.Context, entry Entry) {
	entry.ID = uuid.New()
	// The request may already be cancelled once a long job returns.
	if err := r.store.Record(context.WithoutCancel(ctx), entry); err != nil {
		r.log.Error().
			Err(err).
			Str("kind", string(entry.Kind)).
			Str("name", entry.Name).
			Str("status", entry.Status).
			Msg("failed to record execution")
	}
}
