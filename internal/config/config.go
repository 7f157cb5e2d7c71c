// Package config loads worker settings from an optional YAML file with
// SQSWORKER_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

type Config struct {
	HTTPAddr           string `yaml:"http_addr" validate:"required"`
	Enabled            bool   `yaml:"enabled"`
	PeriodicPrefix     string `yaml:"periodic_prefix" validate:"required,startswith=/"`
	Secret             string `yaml:"secret" validate:"required_without=SecretSource"`
	SecretSource       string `yaml:"secret_source" validate:"excluded_with=Secret"`
	SignatureAlgorithm string `yaml:"signature_algorithm" validate:"oneof=sha256 sha1"`
	DeriveKey          bool   `yaml:"derive_key"`
	MaxBodyBytes       int64  `yaml:"max_body_bytes" validate:"min=1"`
	CgroupPath         string `yaml:"cgroup_path"`
	JournalDSN         string `yaml:"journal_dsn"`
	LogLevel           string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

func Default() Config {
	return Config{
		HTTPAddr:           ":8080",
		Enabled:            true,
		PeriodicPrefix:     "/periodic_tasks",
		SignatureAlgorithm: "sha256",
		MaxBodyBytes:       256 << 10,
		CgroupPath:         "/proc/1/cgroup",
		LogLevel:           "info",
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.SignatureAlgorithm = strings.ToLower(strings.TrimSpace(cfg.SignatureAlgorithm))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTPAddr = env("SQSWORKER_HTTP_ADDR", cfg.HTTPAddr)
	cfg.PeriodicPrefix = env("SQSWORKER_PERIODIC_PREFIX", cfg.PeriodicPrefix)
	cfg.Secret = env("SQSWORKER_SECRET", cfg.Secret)
	cfg.SecretSource = env("SQSWORKER_SECRET_SOURCE", cfg.SecretSource)
	cfg.SignatureAlgorithm = env("SQSWORKER_SIGNATURE_ALGORITHM", cfg.SignatureAlgorithm)
	cfg.CgroupPath = env("SQSWORKER_CGROUP_PATH", cfg.CgroupPath)
	cfg.JournalDSN = env("SQSWORKER_JOURNAL_DSN", cfg.JournalDSN)
	cfg.LogLevel = env("SQSWORKER_LOG_LEVEL", cfg.LogLevel)

	var err error
	if cfg.Enabled, err = boolEnv("SQSWORKER_ENABLED", cfg.Enabled); err != nil {
		return err
	}
	if cfg.DeriveKey, err = boolEnv("SQSWORKER_DERIVE_KEY", cfg.DeriveKey); err != nil {
		return err
	}
	if raw := strings.TrimSpace(os.Getenv("SQSWORKER_MAX_BODY_BYTES")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("SQSWORKER_MAX_BODY_BYTES: %w", err)
		}
		cfg.MaxBodyBytes = v
	}
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func boolEnv(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
