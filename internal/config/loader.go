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
const DefaultConfigFile = "teamline.yaml"

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
	setString(&cfg.Server.Port, "TEAMLINE_PORT")
	setString(&cfg.Server.CORSOrigin, "TEAMLINE_CORS_ORIGIN")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TEAMLINE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TEAMLINE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TEAMLINE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TEAMLINE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TEAMLINE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.IdempotencyBucket, "TEAMLINE_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.NATS.IdempotencyTTL, "TEAMLINE_IDEMPOTENCY_TTL")

	setString(&cfg.Auth.JWTSecret, "TEAMLINE_JWT_SECRET")
	setDuration(&cfg.Auth.AccessTokenExpiry, "TEAMLINE_ACCESS_TOKEN_EXPIRY")
	setDuration(&cfg.Auth.RefreshTokenExpiry, "TEAMLINE_REFRESH_TOKEN_EXPIRY")
	setInt(&cfg.Auth.BcryptCost, "TEAMLINE_BCRYPT_COST")
	setDuration(&cfg.Auth.PrincipalCacheTTL, "TEAMLINE_PRINCIPAL_CACHE_TTL")

	setString(&cfg.Billing.StripeKey, "STRIPE_API_KEY")
	setString(&cfg.Billing.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setInt(&cfg.Billing.TrialDays, "TEAMLINE_TRIAL_DAYS")
	setDuration(&cfg.Billing.CallTimeout, "TEAMLINE_BILLING_CALL_TIMEOUT")
	setInt(&cfg.Billing.SyncMaxAttempts, "TEAMLINE_SYNC_MAX_ATTEMPTS")

	setString(&cfg.Logging.Level, "TEAMLINE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TEAMLINE_LOG_SERVICE")

	setInt(&cfg.Breaker.MaxFailures, "TEAMLINE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TEAMLINE_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerSecond, "TEAMLINE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "TEAMLINE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "TEAMLINE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "TEAMLINE_RATE_MAX_IDLE_TIME")

	setInt64(&cfg.Cache.MaxSizeMB, "TEAMLINE_CACHE_SIZE_MB")

	setString(&cfg.Telemetry.OTLPEndpoint, "TEAMLINE_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		return errors.New("auth.bcrypt_cost must be between 4 and 31")
	}
	if cfg.Billing.TrialDays < 0 {
		return errors.New("billing.trial_days must be >= 0")
	}
	if cfg.Billing.SyncMaxAttempts < 1 {
		return errors.New("billing.sync_max_attempts must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
