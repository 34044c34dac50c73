package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevedore/stevedore/internal/core"
)

func findRepoRootForTest(t *testing.T) string {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	t.Fatalf("could not locate repo root containing go.mod from %s", cwd)
	return ""
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	// Regression test: in CI containers the repo checkout may be outside $HOME.
	// When $HOME is not an ancestor of the repo, pathfinder's default home boundary
	// can prevent repo root discovery unless a CI boundary hint is applied.
	t.Run("CIBoundaryHint", func(t *testing.T) {
		repoRoot := findRepoRootForTest(t)
		t.Setenv("HOME", t.TempDir())
		t.Setenv("CI", "true")
		t.Setenv("FULMEN_WORKSPACE_ROOT", repoRoot)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)
	})

	// Test basic config loading with defaults
	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", t.TempDir())

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("stevedore"), "stevedore.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)
		assert.Equal(t, "", cfg.Store.URL)
		assert.Equal(t, "", cfg.Store.AuthToken)

		// Verify rate limit defaults
		assert.Equal(t, "fixed-window", cfg.RateLimit.Strategy)
		assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
		assert.Equal(t, time.Minute, cfg.RateLimit.Window)
		assert.Equal(t, time.Second, cfg.RateLimit.RetryAfter)
		assert.Equal(t, 2.0, cfg.RateLimit.BackoffMultiplier)
		assert.Equal(t, 5*time.Minute, cfg.RateLimit.MaxBackoffDelay)

		// Verify health defaults
		assert.True(t, cfg.Health.Enabled)
		assert.Equal(t, 30*time.Second, cfg.Health.Interval)
		assert.Equal(t, time.Hour, cfg.Health.TrendWindow)

		// Verify ingest defaults
		assert.Equal(t, 4, cfg.Ingest.Concurrency)

		// Verify logging defaults
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "SIMPLE", cfg.Logging.Profile)

		// Verify metrics defaults
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)

		// Verify debug defaults
		assert.False(t, cfg.Debug.Enabled)
		assert.False(t, cfg.Debug.PprofEnabled)
	})

	// Test runtime overrides
	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify overrides were applied
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)

		// Verify non-overridden values remain default
		assert.Equal(t, "SIMPLE", cfg.Logging.Profile)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	// Test environment variable overrides
	t.Run("EnvOverrides", func(t *testing.T) {
		require.NoError(t, os.Setenv("STEVEDORE_PORT", "3000"))
		require.NoError(t, os.Setenv("STEVEDORE_LOG_LEVEL", "warn"))
		require.NoError(t, os.Setenv("STEVEDORE_METRICS_ENABLED", "false"))
		require.NoError(t, os.Setenv("STEVEDORE_RATE_LIMIT_STRATEGY", "token-bucket"))
		require.NoError(t, os.Setenv("STEVEDORE_RATE_LIMIT_BACKOFF_MULTIPLIER", "1.5"))
		defer func() {
			_ = os.Unsetenv("STEVEDORE_PORT")
			_ = os.Unsetenv("STEVEDORE_LOG_LEVEL")
			_ = os.Unsetenv("STEVEDORE_METRICS_ENABLED")
			_ = os.Unsetenv("STEVEDORE_RATE_LIMIT_STRATEGY")
			_ = os.Unsetenv("STEVEDORE_RATE_LIMIT_BACKOFF_MULTIPLIER")
		}()

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify env overrides were applied
		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, "token-bucket", cfg.RateLimit.Strategy)
		assert.Equal(t, 1.5, cfg.RateLimit.BackoffMultiplier)
	})

	// Test dynamic backend declaration from the environment
	t.Run("BackendEnvOverrides", func(t *testing.T) {
		require.NoError(t, os.Setenv("STEVEDORE_BACKENDS_ARCHIVE_TYPE", "s3"))
		require.NoError(t, os.Setenv("STEVEDORE_BACKENDS_ARCHIVE_ENDPOINT", "minio.local:9000"))
		require.NoError(t, os.Setenv("STEVEDORE_BACKENDS_ARCHIVE_BUCKET", "archive"))
		require.NoError(t, os.Setenv("STEVEDORE_BACKENDS_ARCHIVE_SECURE", "true"))
		defer func() {
			_ = os.Unsetenv("STEVEDORE_BACKENDS_ARCHIVE_TYPE")
			_ = os.Unsetenv("STEVEDORE_BACKENDS_ARCHIVE_ENDPOINT")
			_ = os.Unsetenv("STEVEDORE_BACKENDS_ARCHIVE_BUCKET")
			_ = os.Unsetenv("STEVEDORE_BACKENDS_ARCHIVE_SECURE")
		}()

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		archive, ok := cfg.Backend("archive")
		require.True(t, ok)
		assert.Equal(t, core.BackendTypeS3, archive.Type)
		assert.Equal(t, "minio.local:9000", archive.Endpoint)
		assert.Equal(t, "archive", archive.Bucket)
		assert.True(t, archive.Secure)
	})

	// Test config precedence: runtime > env > defaults
	t.Run("ConfigPrecedence", func(t *testing.T) {
		require.NoError(t, os.Setenv("STEVEDORE_PORT", "4000"))
		defer func() {
			_ = os.Unsetenv("STEVEDORE_PORT")
		}()

		// Runtime override should win
		overrides := map[string]any{
			"server": map[string]any{
				"port": 5000,
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Runtime override should take precedence over env var
		assert.Equal(t, 5000, cfg.Server.Port)
	})
}

func TestGetConfig(t *testing.T) {
	ctx := context.Background()

	// Load config first
	cfg, err := Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Test GetConfig returns the same instance
	t.Run("GetConfigReturnsLoadedConfig", func(t *testing.T) {
		retrieved := GetConfig()
		assert.NotNil(t, retrieved)
		assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
		assert.Equal(t, cfg.Logging.Level, retrieved.Logging.Level)
	})
}

func TestEnvSpecs(t *testing.T) {
	// Need to set app identity for env specs
	ctx := context.Background()
	_, err := Load(ctx)
	require.NoError(t, err)

	specs := getEnvSpecs()
	assert.NotEmpty(t, specs)

	// Verify critical env var mappings exist
	envVarNames := make(map[string]bool)
	for _, spec := range specs {
		envVarNames[spec.Name] = true
	}

	// Check required Workhorse Standard env vars
	assert.True(t, envVarNames["STEVEDORE_LOG_LEVEL"], "LOG_LEVEL env var must be mapped")
	assert.True(t, envVarNames["STEVEDORE_PORT"], "PORT env var must be mapped")
	assert.True(t, envVarNames["STEVEDORE_HOST"], "HOST env var must be mapped")
	assert.True(t, envVarNames["STEVEDORE_METRICS_PORT"], "METRICS_PORT env var must be mapped")
	assert.True(t, envVarNames["STEVEDORE_DB_PATH"], "DB_PATH env var must be mapped")
	assert.True(t, envVarNames["STEVEDORE_RATE_LIMIT_STRATEGY"], "RATE_LIMIT_STRATEGY env var must be mapped")
	assert.True(t, envVarNames["STEVEDORE_HEALTH_INTERVAL"], "HEALTH_INTERVAL env var must be mapped")
	assert.True(t, envVarNames["STEVEDORE_INGEST_CONCURRENCY"], "INGEST_CONCURRENCY env var must be mapped")
}

func TestDurationParsing(t *testing.T) {
	ctx := context.Background()

	// Test duration parsing from string env var
	t.Run("DurationFromEnv", func(t *testing.T) {
		require.NoError(t, os.Setenv("STEVEDORE_READ_TIMEOUT", "45s"))
		require.NoError(t, os.Setenv("STEVEDORE_HEALTH_INTERVAL", "2m"))
		defer func() {
			_ = os.Unsetenv("STEVEDORE_READ_TIMEOUT")
			_ = os.Unsetenv("STEVEDORE_HEALTH_INTERVAL")
		}()

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 2*time.Minute, cfg.Health.Interval)
	})
}

func TestConfigReload(t *testing.T) {
	ctx := context.Background()

	// Load initial config
	cfg1, err := Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg1)
	initialPort := cfg1.Server.Port

	// Reload with different runtime overrides
	overrides := map[string]any{
		"server": map[string]any{
			"port": initialPort + 1000,
		},
	}

	cfg2, err := Load(ctx, overrides)
	require.NoError(t, err)
	require.NotNil(t, cfg2)

	// Verify reload updated the config
	assert.Equal(t, initialPort+1000, cfg2.Server.Port)

	// Verify GetConfig returns the updated config
	current := GetConfig()
	assert.Equal(t, cfg2.Server.Port, current.Server.Port)
}
