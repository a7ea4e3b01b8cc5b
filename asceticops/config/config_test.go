package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("ASCETICOPS_DATABASE_URL", "postgres://localhost/app")

		c, err := Load(New())
		require.NoError(t, err)
		assert.Equal(t, EnginePg, c.Engine)
		assert.Equal(t, transaction.Unspecified, c.IsolationLevel)
		assert.Equal(t, transaction.DefaultMaxWait, c.Interactive.MaxWait)
		assert.Equal(t, transaction.DefaultTimeout, c.Interactive.Timeout)
		assert.Equal(t, "info", c.LogLevel)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("ASCETICOPS_ENGINE", "REST")
		t.Setenv("ASCETICOPS_ENGINE_ENDPOINT", "http://localhost:4466")
		t.Setenv("ASCETICOPS_ISOLATION_LEVEL", "repeatable read")
		t.Setenv("ASCETICOPS_INTERACTIVE_TIMEOUT", "30s")
		t.Setenv("ASCETICOPS_STANDALONE_FALLBACK", "true")

		c, err := Load(New())
		require.NoError(t, err)
		assert.Equal(t, EngineRest, c.Engine)
		assert.Equal(t, transaction.RepeatableRead, c.IsolationLevel)
		assert.Equal(t, transaction.RepeatableRead, c.Interactive.IsolationLevel)
		assert.Equal(t, 30*time.Second, c.Interactive.Timeout)

		opts := c.ClientOptions()
		assert.True(t, opts.StandaloneFallback)
		assert.Equal(t, transaction.RepeatableRead, opts.IsolationLevel)
	})

	t.Run("flags", func(t *testing.T) {
		cmd := &cobra.Command{Use: "test"}
		SetupFlags(cmd)
		require.NoError(t, cmd.PersistentFlags().Parse([]string{"--database-url", "postgres://db/app", "--interactive-max-wait", "500ms"}))

		v := New()
		require.NoError(t, v.BindPFlags(cmd.PersistentFlags()))
		c, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, "postgres://db/app", c.DatabaseURL)
		assert.Equal(t, 500*time.Millisecond, c.Interactive.MaxWait)
	})

	t.Run("invalid", func(t *testing.T) {
		cases := map[string]map[string]string{
			"missing database url": {},
			"missing endpoint":     {"ASCETICOPS_ENGINE": "rest"},
			"unknown engine":       {"ASCETICOPS_ENGINE": "mysql"},
			"negative timeout":     {"ASCETICOPS_DATABASE_URL": "postgres://db/app", "ASCETICOPS_INTERACTIVE_TIMEOUT": "-1s"},
		}
		for name, env := range cases {
			t.Run(name, func(t *testing.T) {
				for k, v := range env {
					t.Setenv(k, v)
				}
				_, err := Load(New())
				assert.ErrorIs(t, err, ErrInvalidConfig)
			})
		}
	})

	t.Run("unknown isolation level", func(t *testing.T) {
		t.Setenv("ASCETICOPS_DATABASE_URL", "postgres://db/app")
		t.Setenv("ASCETICOPS_ISOLATION_LEVEL", "eventual")
		_, err := Load(New())
		assert.ErrorIs(t, err, transaction.ErrUnknownIsolation)
	})
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ASCETICOPS_LOG_FORMAT=json\n"), 0o600))
	t.Setenv("ASCETICOPS_DATABASE_URL", "postgres://db/app")
	t.Cleanup(func() { _ = os.Unsetenv("ASCETICOPS_LOG_FORMAT") })

	LoadEnvFiles(path, filepath.Join(dir, "missing.env"))

	c, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "json", c.LogFormat)
}
