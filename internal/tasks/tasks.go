// Package tasks holds the named periodic tasks and queued job handlers the
// worker can run, and the wire shape of a queued job.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Kind separates periodic tasks from queued jobs in errors and journals.
type Kind string

const (
	KindTask Kind = "periodic_task"
	KindJob  Kind = "job"
)

// Job is a queued unit of work as enqueued by the producer. EnqueuedAt is
// the producer's RFC 3339 enqueue time and is zero when absent.
type Job struct {
	Name       string          `json:"job"`
	ID         string          `json:"job_id,omitempty"`
	Queue      string          `json:"queue_name,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at,omitempty"`
}

// ErrMalformedJob is returned by DecodeJob for a payload that is not a job
// description. No handler has been chosen at that point.
var ErrMalformedJob = errors.New("malformed job payload")

// DecodeJob reads one job description. Unknown fields are ignored so
// producers can add metadata without breaking older workers.
func DecodeJob(r io.Reader) (Job, error) {
	var job Job
	if err := json.NewDecoder(r).Decode(&job); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if job.Name == "" {
		return Job{}, fmt.Errorf("%w: job name missing", ErrMalformedJob)
	}
	return job, nil
}

type TaskFunc func(ctx context.Context) error

type JobFunc func(ctx context.Context, job Job) error

// ResolutionError reports a task or job name nothing is registered under.
type ResolutionError struct {
	Kind Kind
	Name string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("no %s registered as %q", e.Kind, e.Name)
}

// ExecutionError wraps a failure raised while running a task or job.
type ExecutionError struct {
	Kind Kind
	Name string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %q failed: %v", e.Kind, e.Name, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Registry maps names to handlers. Registration normally happens at start-up;
// lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]TaskFunc
	jobs  map[string]JobFunc
}

func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]TaskFunc),
		jobs:  make(map[string]JobFunc),
	}
}

// RegisterTask panics on an empty name, a nil func or a duplicate name.
func (r *Registry) RegisterTask(name string, fn TaskFunc) {
	if name == "" || fn == nil {
		panic("tasks: invalid periodic task registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[name]; exists {
		panic(fmt.Sprintf("tasks: periodic task %q registered twice", name))
	}
	r.tasks[name] = fn
}

// RegisterJob panics on an empty name, a nil func or a duplicate name.
func (r *Registry) RegisterJob(name string, fn JobFunc) {
	if name == "" || fn == nil {
		panic("tasks: invalid job registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[name]; exists {
		panic(fmt.Sprintf("tasks: job %q registered twice", name))
	}
	r.jobs[name] = fn
}

func (r *Registry) ResolveTask(name string) (TaskFunc, error) {
	r.mu.RLock()
	fn, ok := r.tasks[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ResolutionError{Kind: KindTask, Name: name}
	}
	return fn, nil
}

// RunJob runs the handler registered under job.Name synchronously.
func (r *Registry) RunJob(ctx context.Context, job Job) error {
	r.mu.RLock()
	fn, ok := r.jobs[job.Name]
	r.mu.RUnlock()
	if !ok {
		return &ResolutionError{Kind: KindJob, Name: job.Name}
	}
	if err := fn(ctx, job); err != nil {
		return &ExecutionError{Kind: KindJob, Name: job.Name, Err: err}
	}
	return nil
}

// TaskNames lists registered periodic tasks in sorted order.
func (r *Registry) TaskNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.tasks)
}

// JobNames lists registered jobs in sorted order.
func (r *Registry) JobNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.jobs)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type ctxKey string

const ctxKeyOrigin ctxKey = "origin"

// WithOrigin attaches the producer's origin marker to ctx.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, ctxKeyOrigin, origin)
}

// OriginFrom returns the origin marker attached by WithOrigin, or "".
func OriginFrom(ctx context.Context) string {
	origin, _ := ctx.Value(ctxKeyOrigin).(string)
	return origin
}
