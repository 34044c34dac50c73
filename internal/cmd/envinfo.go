package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/stevedore/stevedore/internal/config"
	"github.com/stevedore/stevedore/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display comprehensive environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()

		observability.CLILogger.Info("=== Stevedore Environment Information ===")
		observability.CLILogger.Info("")

		// Application Info
		identity := GetAppIdentity()
		observability.CLILogger.Info("Application:")
		observability.CLILogger.Info("  Name:       " + identity.BinaryName)
		observability.CLILogger.Info("  Version:    " + versionInfo.Version)
		observability.CLILogger.Info("  Commit:     " + versionInfo.Commit)
		observability.CLILogger.Info("  Built:      " + versionInfo.BuildDate)
		observability.CLILogger.Info("")

		// SSOT Info
		observability.CLILogger.Info("SSOT:")
		observability.CLILogger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		observability.CLILogger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		observability.CLILogger.Info("")

		// Runtime Info
		observability.CLILogger.Info("Runtime:")
		observability.CLILogger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		observability.CLILogger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		observability.CLILogger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		observability.CLILogger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		observability.CLILogger.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
			return
		}

		// Configuration
		observability.CLILogger.Info("Configuration:")
		observability.CLILogger.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		observability.CLILogger.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		observability.CLILogger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		observability.CLILogger.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		observability.CLILogger.Info("  DB Driver:      "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			observability.CLILogger.Info("  DB URL:         "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
		} else {
			observability.CLILogger.Info("  DB Path:        "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		observability.CLILogger.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		observability.CLILogger.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		observability.CLILogger.Info("")

		// Backends
		backends := cfg.OrderedBackends()
		observability.CLILogger.Info(fmt.Sprintf("Backends (%d):", len(backends)))
		for _, b := range backends {
			target := b.Root
			if b.Type == "s3" {
				target = b.Endpoint + "/" + b.Bucket
			}
			observability.CLILogger.Info(fmt.Sprintf("  %s: type=%s target=%s", b.ID, b.Type, target))
		}
		observability.CLILogger.Info("")

		// Rate limiting
		observability.CLILogger.Info("Rate Limit:")
		observability.CLILogger.Info("  Strategy:       " + cfg.RateLimit.Strategy)
		observability.CLILogger.Info(fmt.Sprintf("  Max Requests:   %d", cfg.RateLimit.MaxRequests))
		observability.CLILogger.Info("  Window:         " + cfg.RateLimit.Window.String())
		observability.CLILogger.Info(fmt.Sprintf("  Backoff:        %t (x%.1f, max %s)",
			cfg.RateLimit.EnableBackoff, cfg.RateLimit.BackoffMultiplier, cfg.RateLimit.MaxBackoffDelay))
		observability.CLILogger.Info("")

		// Health monitoring
		observability.CLILogger.Info("Health Monitoring:")
		observability.CLILogger.Info(fmt.Sprintf("  Enabled:        %t", cfg.Health.Enabled), zap.Bool("health_enabled", cfg.Health.Enabled))
		observability.CLILogger.Info("  Interval:       " + cfg.Health.Interval.String())
		observability.CLILogger.Info("  Trend Window:   " + cfg.Health.TrendWindow.String())
		observability.CLILogger.Info("")

		// Ingest
		observability.CLILogger.Info("Ingest:")
		observability.CLILogger.Info(fmt.Sprintf("  Concurrency:    %d", cfg.Ingest.Concurrency), zap.Int("ingest_concurrency", cfg.Ingest.Concurrency))
		observability.CLILogger.Info("")

		observability.CLILogger.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
