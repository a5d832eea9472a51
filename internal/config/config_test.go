package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/internal/audit"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/app")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "audit_log", cfg.Audit.Table)
	assert.Equal(t, audit.NamingSnake, cfg.NamingStyle())
	assert.True(t, cfg.Audit.ExplicitTx)
	assert.Equal(t, 10240, cfg.Audit.CompressThreshold)
	assert.Empty(t, cfg.Audit.Filter)

	pc := cfg.DBPool()
	assert.Equal(t, "postgres://localhost/app", pc.DSN)
	assert.Equal(t, int32(25), pc.MaxConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, 30*time.Second, cfg.TxOptions().StatementTimeout)
	assert.True(t, cfg.Logger().Development)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/app")
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUDIT_TABLE", "history")
	t.Setenv("AUDIT_NAMING_STYLE", "upper_snake")
	t.Setenv("AUDIT_EXPLICIT_TX", "false")
	t.Setenv("AUDIT_FILTER", `table != "sessions"`)
	t.Setenv("DB_STATEMENT_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "history", cfg.Audit.Table)
	assert.Equal(t, audit.NamingUpperSnake, cfg.NamingStyle())
	assert.False(t, cfg.Audit.ExplicitTx)
	assert.Equal(t, `table != "sessions"`, cfg.Audit.Filter)
	assert.Equal(t, 5*time.Second, cfg.TxOptions().StatementTimeout)
	assert.False(t, cfg.Logger().Development)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("missing database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown naming style", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://db/app")
		t.Setenv("AUDIT_NAMING_STYLE", "screaming")
		_, err := Load()
		assert.ErrorContains(t, err, "AUDIT_NAMING_STYLE")
	})

	t.Run("pool bounds", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://db/app")
		t.Setenv("DB_MIN_CONNS", "30")
		_, err := Load()
		assert.ErrorContains(t, err, "DB_MIN_CONNS")
	})
}
