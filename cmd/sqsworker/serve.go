package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/trackshift/platform/sqsworker/internal/config"
	"github.com/trackshift/platform/sqsworker/internal/interceptor"
	"github.com/trackshift/platform/sqsworker/internal/journal"
	"github.com/trackshift/platform/sqsworker/internal/origin"
	"github.com/trackshift/platform/sqsworker/internal/secrets"
	"github.com/trackshift/platform/sqsworker/internal/signing"
	"github.com/trackshift/platform/sqsworker/internal/tasks"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath)
		},
	}
	configPathFlag(cmd, &configPath)
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	verifier, err := buildVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	toggle := config.NewToggle(cfg.Enabled)
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, toggle, log.Logger)
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Error().Err(err).Msg("config watcher stopped")
			}
		}()
	}

	registry := tasks.NewRegistry()
	registerBuiltins(registry, log.Logger)

	var (
		resolver interceptor.TaskResolver = registry
		runner   interceptor.JobRunner    = registry
	)
	if cfg.JournalDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.JournalDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		store := journal.NewPGStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		recorder := journal.NewRecorder(store, registry, registry, log.Logger)
		resolver, runner = recorder, recorder
		log.Info().Msg("execution journal enabled")
	}

	probe := origin.Cache(origin.CgroupProbe{CgroupPath: cfg.CgroupPath})
	ic, err := interceptor.New(interceptor.Options{
		Classifier:     origin.NewClassifier(toggle, origin.NewPolicy(probe)),
		Verifier:       verifier,
		Tasks:          resolver,
		Jobs:           runner,
		PeriodicPrefix: cfg.PeriodicPrefix,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Logger:         &log.Logger,
	})
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(ic.Middleware)
	r.Get("/healthz", healthz)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.HTTPAddr).
			Str("periodic_prefix", cfg.PeriodicPrefix).
			Bool("enabled", toggle.Enabled()).
			Strs("tasks", registry.TaskNames()).
			Strs("jobs", registry.JobNames()).
			Msg("sqsworker listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func buildVerifier(ctx context.Context, cfg config.Config) (*signing.Verifier, error) {
	secret, err := resolveSecret(ctx, cfg.Secret, cfg.SecretSource)
	if err != nil {
		return nil, err
	}
	if cfg.DeriveKey {
		if secret, err = signing.DeriveKey(secret); err != nil {
			return nil, err
		}
	}
	return signing.NewVerifier(secret, signing.Algorithm(cfg.SignatureAlgorithm))
}

func resolveSecret(ctx context.Context, literal, source string) ([]byte, error) {
	if source == "" {
		return []byte(literal), nil
	}
	loader := &secrets.Loader{}
	if secrets.NeedsAWS(source) {
		var err error
		if loader, err = secrets.NewAWSLoader(ctx); err != nil {
			return nil, err
		}
	}
	return loader.Load(ctx, source)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
