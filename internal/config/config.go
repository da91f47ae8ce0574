package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MemoryDatabaseURI selects the in-memory store instead of PostgreSQL.
const MemoryDatabaseURI = "memory://"

// Config holds application level configuration loaded from .env, environment and flags.
type Config struct {
	RunAddress      string
	DatabaseURI     string
	JWTSecret       string
	AdminToken      string
	TokenTTL        time.Duration
	PasswordCost    int
	SignupBonus     int
	ShutdownTimeout time.Duration

	ProviderAddress string
	ProviderAPIKey  string
	ProviderTimeout time.Duration
	DeliveryMode    string

	PollInterval      time.Duration
	PollTimeout       time.Duration
	SubmitMaxAttempts int
	BackoffBase       time.Duration
	BackoffCap        time.Duration

	MaxBatchItems     int
	LedgerMaxAttempts int
	RateLimitRequests int
	RateLimitWindow   time.Duration
	WorkerPoolSize    int

	RecoveryInterval   time.Duration
	RecoveryStaleAfter time.Duration
	RecoveryBatchSize  int

	NotifyQueueURL   string
	NotifyBufferSize int
	AWSRegion        string

	LogLevel string
	LogFile  string
}

const (
	defaultRunAddress         = ":8080"
	defaultJWTSecret          = "change-me-in-production"
	defaultShutdownTimeout    = 10 * time.Second
	defaultTokenTTL           = 24 * time.Hour
	defaultNotifyBufferSize   = 256
	defaultProviderTimeout    = 10 * time.Second
	defaultDeliveryMode       = "any"
	defaultPollInterval       = 5 * time.Second
	defaultPollTimeout        = 10 * time.Minute
	defaultSubmitMaxAttempts  = 5
	defaultBackoffBase        = time.Second
	defaultBackoffCap         = 30 * time.Second
	defaultMaxBatchItems      = 5
	defaultLedgerMaxAttempts  = 32
	defaultRateLimitRequests  = 10
	defaultRateLimitWindow    = time.Minute
	defaultWorkerPoolSize     = 8
	defaultRecoveryInterval   = 30 * time.Second
	defaultRecoveryStaleAfter = 2 * time.Minute
	defaultRecoveryBatchSize  = 32
	defaultAWSRegion          = "us-east-1"
	defaultLogLevel           = "info"
)

// Load parses configuration from an optional .env file, environment variables and flags.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return load(os.Args[1:], os.LookupEnv)
}

type envLookup func(string) (string, bool)

func load(args []string, lookup envLookup) (*Config, error) {
	var err error
	cfg := &Config{
		RunAddress:        getString(lookup, "RUN_ADDRESS", defaultRunAddress),
		DatabaseURI:       getString(lookup, "DATABASE_URI", ""),
		JWTSecret:         getString(lookup, "JWT_SECRET", defaultJWTSecret),
		AdminToken:        getString(lookup, "ADMIN_TOKEN", ""),
		PasswordCost:      getInt(lookup, "PASSWORD_COST", 0),
		SignupBonus:       getInt(lookup, "SIGNUP_BONUS", 0),
		ProviderAddress:   getString(lookup, "PROVIDER_ADDRESS", ""),
		ProviderAPIKey:    getString(lookup, "PROVIDER_API_KEY", ""),
		DeliveryMode:      getString(lookup, "DELIVERY_MODE", defaultDeliveryMode),
		SubmitMaxAttempts: getInt(lookup, "SUBMIT_MAX_ATTEMPTS", defaultSubmitMaxAttempts),
		MaxBatchItems:     getInt(lookup, "MAX_BATCH_ITEMS", defaultMaxBatchItems),
		LedgerMaxAttempts: getInt(lookup, "LEDGER_MAX_ATTEMPTS", defaultLedgerMaxAttempts),
		RateLimitRequests: getInt(lookup, "RATE_LIMIT_REQUESTS", defaultRateLimitRequests),
		WorkerPoolSize:    getInt(lookup, "WORKER_POOL_SIZE", defaultWorkerPoolSize),
		RecoveryBatchSize: getInt(lookup, "RECOVERY_BATCH_SIZE", defaultRecoveryBatchSize),
		NotifyQueueURL:    getString(lookup, "NOTIFY_QUEUE_URL", ""),
		NotifyBufferSize:  getInt(lookup, "NOTIFY_BUFFER", defaultNotifyBufferSize),
		AWSRegion:         getString(lookup, "AWS_REGION", defaultAWSRegion),
		LogLevel:          getString(lookup, "LOG_LEVEL", defaultLogLevel),
		LogFile:           getString(lookup, "LOG_FILE", ""),
	}

	durations := []struct {
		env  string
		flag string
		dst  *time.Duration
		def  time.Duration
		raw  string
		desc string
	}{
		{"SHUTDOWN_TIMEOUT", "shutdown-timeout", &cfg.ShutdownTimeout, defaultShutdownTimeout, "", "Graceful shutdown timeout"},
		{"TOKEN_TTL", "token-ttl", &cfg.TokenTTL, defaultTokenTTL, "", "Lifetime of issued auth tokens"},
		{"PROVIDER_TIMEOUT", "provider-timeout", &cfg.ProviderTimeout, defaultProviderTimeout, "", "Per-call provider timeout"},
		{"POLL_INTERVAL", "poll-interval", &cfg.PollInterval, defaultPollInterval, "", "Interval between provider status polls"},
		{"POLL_TIMEOUT", "poll-timeout", &cfg.PollTimeout, defaultPollTimeout, "", "Deadline for an order to become ready"},
		{"BACKOFF_BASE", "backoff-base", &cfg.BackoffBase, defaultBackoffBase, "", "Initial retry backoff"},
		{"BACKOFF_CAP", "backoff-cap", &cfg.BackoffCap, defaultBackoffCap, "", "Maximum retry backoff"},
		{"RATE_LIMIT_WINDOW", "rate-limit-window", &cfg.RateLimitWindow, defaultRateLimitWindow, "", "Window for batch submissions per user"},
		{"RECOVERY_INTERVAL", "recovery-interval", &cfg.RecoveryInterval, defaultRecoveryInterval, "", "Interval between stale order sweeps"},
		{"RECOVERY_STALE_AFTER", "recovery-stale-after", &cfg.RecoveryStaleAfter, defaultRecoveryStaleAfter, "", "Age after which an unfinished order is resumed"},
	}

	for i := range durations {
		d := &durations[i]
		d.raw = d.def.String()
		if v, ok := lookup(d.env); ok && v != "" {
			d.raw = v
		}
	}

	flags := flag.NewFlagSet("stockpoints", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	flags.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "HTTP server listen address")
	flags.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "PostgreSQL DSN or memory://")
	flags.StringVar(&cfg.ProviderAddress, "r", cfg.ProviderAddress, "Asset provider base URL")
	flags.StringVar(&cfg.ProviderAPIKey, "provider-key", cfg.ProviderAPIKey, "Asset provider API key")
	flags.StringVar(&cfg.DeliveryMode, "delivery-mode", cfg.DeliveryMode, "Download delivery mode")
	flags.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "Secret for signing auth tokens")
	flags.StringVar(&cfg.AdminToken, "admin-token", cfg.AdminToken, "Token guarding operator endpoints")
	flags.IntVar(&cfg.PasswordCost, "password-cost", cfg.PasswordCost, "bcrypt cost, 0 for the library default")
	flags.IntVar(&cfg.SignupBonus, "signup-bonus", cfg.SignupBonus, "Points credited to new accounts")
	flags.IntVar(&cfg.WorkerPoolSize, "worker-pool", cfg.WorkerPoolSize, "Number of concurrent fulfillment workers")
	flags.IntVar(&cfg.SubmitMaxAttempts, "submit-attempts", cfg.SubmitMaxAttempts, "Maximum provider attempts per order")
	flags.IntVar(&cfg.MaxBatchItems, "max-batch", cfg.MaxBatchItems, "Maximum items per batch")
	flags.IntVar(&cfg.LedgerMaxAttempts, "ledger-attempts", cfg.LedgerMaxAttempts, "Maximum optimistic ledger write attempts")
	flags.IntVar(&cfg.RateLimitRequests, "rate-limit", cfg.RateLimitRequests, "Batch submissions per window and user")
	flags.IntVar(&cfg.RecoveryBatchSize, "recovery-batch", cfg.RecoveryBatchSize, "Maximum orders resumed per sweep")
	flags.StringVar(&cfg.NotifyQueueURL, "notify-queue", cfg.NotifyQueueURL, "SQS queue URL for events")
	flags.StringVar(&cfg.AWSRegion, "aws-region", cfg.AWSRegion, "AWS region for the notification queue")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flags.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Optional rotating log file")
	for i := range durations {
		d := &durations[i]
		flags.StringVar(&d.raw, d.flag, d.raw, d.desc)
	}

	if err = flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(d.raw); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", strings.ToLower(strings.ReplaceAll(d.env, "_", " ")), err)
		}
		if *d.dst <= 0 {
			*d.dst = d.def
		}
	}

	if secretFile, ok := lookup("JWT_SECRET_FILE"); ok && secretFile != "" {
		content, err := os.ReadFile(secretFile)
		if err != nil {
			return nil, fmt.Errorf("read jwt secret file: %w", err)
		}
		cfg.JWTSecret = strings.TrimSpace(string(content))
	}

	normalizeInt(&cfg.WorkerPoolSize, defaultWorkerPoolSize)
	normalizeInt(&cfg.SubmitMaxAttempts, defaultSubmitMaxAttempts)
	normalizeInt(&cfg.MaxBatchItems, defaultMaxBatchItems)
	normalizeInt(&cfg.LedgerMaxAttempts, defaultLedgerMaxAttempts)
	normalizeInt(&cfg.RateLimitRequests, defaultRateLimitRequests)
	normalizeInt(&cfg.RecoveryBatchSize, defaultRecoveryBatchSize)
	normalizeInt(&cfg.NotifyBufferSize, defaultNotifyBufferSize)
	if cfg.SignupBonus < 0 {
		cfg.SignupBonus = 0
	}

	if cfg.BackoffCap < cfg.BackoffBase {
		cfg.BackoffCap = cfg.BackoffBase
	}

	if cfg.DeliveryMode == "" {
		cfg.DeliveryMode = defaultDeliveryMode
	}

	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("database URI must be provided")
	}

	if cfg.ProviderAddress == "" {
		return nil, fmt.Errorf("provider address must be provided")
	}

	return cfg, nil
}

// UseMemoryStore reports whether the in-memory store was requested.
func (c *Config) UseMemoryStore() bool {
	return c.DatabaseURI == MemoryDatabaseURI
}

func normalizeInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func getString(lookup envLookup, key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(lookup envLookup, key string, def int) int {
	if v, ok := lookup(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
