package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "counterd.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "COUNTERD_PORT")
	setString(&cfg.Server.CORSOrigin, "COUNTERD_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "COUNTERD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "COUNTERD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "COUNTERD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "COUNTERD_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "COUNTERD_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Subject, "COUNTERD_NATS_SUBJECT")
	setString(&cfg.Notify.Source, "COUNTERD_NOTIFY_SOURCE")
	setString(&cfg.Notify.Channel, "NOTIFY_CHANNEL")
	setDuration(&cfg.Listener.MinBackoff, "COUNTERD_LISTENER_MIN_BACKOFF")
	setDuration(&cfg.Listener.MaxBackoff, "COUNTERD_LISTENER_MAX_BACKOFF")
	setString(&cfg.Logging.Level, "COUNTERD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "COUNTERD_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "COUNTERD_LOG_ASYNC")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	switch cfg.Notify.Source {
	case "postgres":
		if cfg.Notify.Channel == "" {
			return errors.New("notify.channel is required")
		}
	case "nats":
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is required")
		}
		if cfg.NATS.Subject == "" {
			return errors.New("nats.subject is required")
		}
	default:
		return fmt.Errorf("notify.source must be \"postgres\" or \"nats\", got %q", cfg.Notify.Source)
	}
	if cfg.Listener.MinBackoff <= 0 {
		return errors.New("listener.min_backoff must be > 0")
	}
	if cfg.Listener.MaxBackoff < cfg.Listener.MinBackoff {
		return errors.New("listener.max_backoff must be >= listener.min_backoff")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
