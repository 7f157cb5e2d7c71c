package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/trackshift/platform/sqsworker/internal/tasks"
)

// registerBuiltins adds the smoke-test handlers every deployment carries:
// the "noop" periodic task and the "log" job.
func registerBuiltins(reg *tasks.Registry, logger zerolog.Logger) {
	logger = logger.With().Str("component", "builtin").Logger()

	reg.RegisterTask("noop", func(ctx context.Context) error {
		logger.Info().Str("origin", tasks.OriginFrom(ctx)).Msg("noop periodic task ran")
		return nil
	})
	reg.RegisterJob("log", func(ctx context.Context, job tasks.Job) error {
		logger.Info().
			Str("job_id", job.ID).
			Str("queue", job.Queue).
			RawJSON("arguments", argumentsOrNull(job)).
			Msg("log job ran")
		return nil
	})
}

func argumentsOrNull(job tasks.Job) []byte {
	if len(job.Arguments) == 0 {
		return []byte("null")
	}
	return job.Arguments
}
