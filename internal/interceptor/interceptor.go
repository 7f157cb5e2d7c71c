// Package interceptor routes requests from the worker-tier queue daemon to
// periodic tasks or signed jobs and passes everything else to the
// application.
package interceptor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trackshift/platform/sqsworker/internal/origin"
	"github.com/trackshift/platform/sqsworker/internal/signing"
	"github.com/trackshift/platform/sqsworker/internal/tasks"
)

const (
	HeaderTaskName      = "X-Aws-Sqsd-Taskname"
	HeaderOrigin        = "X-Aws-Sqsd-Attr-Origin"
	HeaderMessageDigest = "X-Aws-Sqsd-Attr-Message-Digest"

	DefaultPeriodicPrefix = "/periodic_tasks"

	okBody        = "OK"
	forbiddenBody = "Request forbidden!"
)

// Decision is the state a request ends in.
type Decision int

const (
	NotDaemonTraffic Decision = iota
	UntrustedOrigin
	PeriodicTask
	AwaitingSignature
	SignedJob
	InvalidSignature
)

func (d Decision) String() string {
	switch d {
	case NotDaemonTraffic:
		return "not_daemon_traffic"
	case UntrustedOrigin:
		return "untrusted_origin"
	case PeriodicTask:
		return "periodic_task"
	case AwaitingSignature:
		return "awaiting_signature"
	case SignedJob:
		return "signed_job"
	case InvalidSignature:
		return "invalid_signature"
	default:
		return "unknown"
	}
}

// TaskResolver looks up a periodic task by name.
type TaskResolver interface {
	ResolveTask(name string) (tasks.TaskFunc, error)
}

// JobRunner runs a decoded job to completion.
type JobRunner interface {
	RunJob(ctx context.Context, job tasks.Job) error
}

// ErrorHandler writes the response when a task or job fails. The
// interceptor never turns those failures into success.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Options configures an Interceptor. Everything is fixed at construction.
type Options struct {
	Classifier     *origin.Classifier
	Verifier       *signing.Verifier
	Tasks          TaskResolver
	Jobs           JobRunner
	PeriodicPrefix string
	MaxBodyBytes   int64
	ErrorHandler   ErrorHandler
	Logger         *zerolog.Logger
}

type Interceptor struct {
	classifier *origin.Classifier
	verifier   *signing.Verifier
	tasks      TaskResolver
	jobs       JobRunner
	prefix     string
	maxBody    int64
	onError    ErrorHandler
	log        zerolog.Logger
}

func New(opts Options) (*Interceptor, error) {
	switch {
	case opts.Classifier == nil:
		return nil, errors.New("interceptor: classifier required")
	case opts.Verifier == nil:
		return nil, errors.New("interceptor: verifier required")
	case opts.Tasks == nil:
		return nil, errors.New("interceptor: task resolver required")
	case opts.Jobs == nil:
		return nil, errors.New("interceptor: job runner required")
	}
	i := &Interceptor{
		classifier: opts.Classifier,
		verifier:   opts.Verifier,
		tasks:      opts.Tasks,
		jobs:       opts.Jobs,
		prefix:     opts.PeriodicPrefix,
		maxBody:    opts.MaxBodyBytes,
		onError:    opts.ErrorHandler,
		log:        log.With().Str("component", "interceptor").Logger(),
	}
	if opts.Logger != nil {
		i.log = opts.Logger.With().Str("component", "interceptor").Logger()
	}
	if i.prefix == "" {
		i.prefix = DefaultPeriodicPrefix
	}
	if i.maxBody <= 0 {
		i.maxBody = signing.DefaultMaxBodyBytes
	}
	if i.onError == nil {
		i.onError = i.internalError
	}
	return i, nil
}

// Middleware wraps the application handler.
func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := i.Dispatch(r)
		switch {
		case err != nil:
			i.onError(w, r, err)
		case decision == NotDaemonTraffic:
			next.ServeHTTP(w, r)
		case decision == UntrustedOrigin, decision == InvalidSignature:
			writeText(w, http.StatusForbidden, forbiddenBody)
		default:
			writeText(w, http.StatusOK, okBody)
		}
	})
}

// Dispatch classifies r and, for trusted daemon traffic, runs the periodic
// task or job it carries. The returned error comes from the task or job
// collaborators (or from reading the body) and is never a trust failure:
// those are reported as UntrustedOrigin or InvalidSignature.
func (i *Interceptor) Dispatch(r *http.Request) (Decision, error) {
	switch i.classifier.Classify(r) {
	case origin.NotDaemonTraffic:
		return NotDaemonTraffic, nil
	case origin.UntrustedOrigin:
		i.log.Warn().
			Err(origin.ErrUntrustedOrigin).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("remote_addr", r.RemoteAddr).
			Str("path", r.URL.Path).
			Msg("rejected daemon request")
		return UntrustedOrigin, nil
	}
	if strings.HasPrefix(r.URL.Path, i.prefix) {
		return PeriodicTask, i.runPeriodicTask(r)
	}
	return i.runSignedJob(r)
}

func (i *Interceptor) runPeriodicTask(r *http.Request) error {
	name := r.Header.Get(HeaderTaskName)
	logger := i.log.With().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("task", name).
		Logger()

	fn, err := i.tasks.ResolveTask(name)
	if err != nil {
		return err
	}
	logger.Info().Msg("running periodic task")
	if err := fn(i.jobContext(r)); err != nil {
		return &tasks.ExecutionError{Kind: tasks.KindTask, Name: name, Err: err}
	}
	logger.Debug().Msg("periodic task finished")
	return nil
}

func (i *Interceptor) runSignedJob(r *http.Request) (Decision, error) {
	logger := i.log.With().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("origin", r.Header.Get(HeaderOrigin)).
		Logger()

	body, err := signing.ReadAndRewind(r, i.maxBody)
	switch {
	case errors.Is(err, signing.ErrBodyTooLarge):
		logger.Warn().Err(err).Int64("limit", i.maxBody).Msg("rejected job payload")
		return InvalidSignature, nil
	case err != nil:
		return AwaitingSignature, err
	}

	if outcome := i.verifier.Verify(body, r.Header.Get(HeaderMessageDigest)); outcome != signing.Verified {
		logger.Warn().Err(outcome.Err()).Int("bytes", len(body)).Msg("rejected job payload")
		return InvalidSignature, nil
	}

	job, err := tasks.DecodeJob(r.Body)
	if err != nil {
		return SignedJob, err
	}
	logger.Info().Str("job", job.Name).Str("job_id", job.ID).Msg("running job")
	if err := i.jobs.RunJob(i.jobContext(r), job); err != nil {
		return SignedJob, err
	}
	return SignedJob, nil
}

func (i *Interceptor) jobContext(r *http.Request) context.Context {
	return tasks.WithOrigin(r.Context(), r.Header.Get(HeaderOrigin))
}

func (i *Interceptor) internalError(w http.ResponseWriter, r *http.Request, err error) {
	i.log.Error().
		Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg("daemon request failed")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, body)
}
