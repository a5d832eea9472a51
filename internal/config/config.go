// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"audittrail/internal/audit"
	"audittrail/internal/infrastructure/storage/postgres"
	"audittrail/pkg/logger"
)

// Config is populated from environment variables.
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	AppEnv      string `envconfig:"APP_ENV" default:"development"`

	Audit AuditConfig
	Pool  PoolConfig
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	Table             string `envconfig:"AUDIT_TABLE" default:"audit_log"`
	NamingStyle       string `envconfig:"AUDIT_NAMING_STYLE" default:"snake"`
	ExplicitTx        bool   `envconfig:"AUDIT_EXPLICIT_TX" default:"true"`
	CompressThreshold int    `envconfig:"AUDIT_COMPRESS_THRESHOLD" default:"10240"`
	// Filter is a CEL expression over table and action; empty audits everything.
	Filter string `envconfig:"AUDIT_FILTER"`
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxConns         int32         `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns         int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime  time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime  time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
	StatementTimeout time.Duration `envconfig:"DB_STATEMENT_TIMEOUT" default:"30s"`
}

// Load reads and validates the configuration.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if _, err := audit.ParseNamingStyle(c.Audit.NamingStyle); err != nil {
		return fmt.Errorf("AUDIT_NAMING_STYLE: %w", err)
	}
	if c.Audit.Table == "" {
		return fmt.Errorf("AUDIT_TABLE must not be empty")
	}
	if c.Audit.CompressThreshold < 0 {
		return fmt.Errorf("AUDIT_COMPRESS_THRESHOLD must not be negative")
	}
	if c.Pool.MinConns > c.Pool.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.Pool.MinConns, c.Pool.MaxConns)
	}
	return nil
}

// NamingStyle returns the parsed audit naming style.
func (c Config) NamingStyle() audit.NamingStyle {
	style, _ := audit.ParseNamingStyle(c.Audit.NamingStyle)
	return style
}

// Logger returns the logger settings.
func (c Config) Logger() logger.Config {
	return logger.Config{
		Level:       c.LogLevel,
		Development: c.AppEnv == "development",
	}
}

// DBPool returns the pgx pool settings.
func (c Config) DBPool() postgres.PoolConfig {
	pc := postgres.DefaultPoolConfig(c.DatabaseURL)
	pc.MaxConns = c.Pool.MaxConns
	pc.MinConns = c.Pool.MinConns
	pc.MaxConnLifetime = c.Pool.MaxConnLifetime
	pc.MaxConnIdleTime = c.Pool.MaxConnIdleTime
	return pc
}

// TxOptions returns the transaction settings used by the unit of work.
func (c Config) TxOptions() postgres.TxOptions {
	opts := postgres.DefaultTxOptions()
	opts.StatementTimeout = c.Pool.StatementTimeout
	return opts
}
