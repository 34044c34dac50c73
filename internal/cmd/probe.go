package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stevedore/stevedore/internal/config"
	"github.com/stevedore/stevedore/internal/core"
	"github.com/stevedore/stevedore/internal/core/backend"
	"github.com/stevedore/stevedore/internal/core/health"
	"github.com/stevedore/stevedore/internal/core/store"
	"github.com/stevedore/stevedore/internal/metrics"
	"github.com/stevedore/stevedore/internal/output"
)

var probeCmd = &cobra.Command{
	Use:   "probe [backend-id...]",
	Short: "Probe storage backend health",
	Long: `Run a one-shot health check against configured backends.

Without arguments every configured backend is probed. A probe never fails
the command; unreachable backends are reported as unhealthy in the output.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	probeCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	probeCmd.Flags().String("out-dir", "", "Write output to a directory")
	probeCmd.Flags().Bool("journal", false, "Record probe results in the health history journal")
	probeCmd.Flags().Bool("trends", false, "Classify health trends from journaled history plus this probe")
	probeCmd.Flags().Duration("window", health.DefaultTrendWindow, "Trend lookback window (with --trends)")
}

func runProbe(cmd *cobra.Command, args []string) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}

	journal, err := cmd.Flags().GetBool("journal")
	if err != nil {
		return err
	}

	trends, err := cmd.Flags().GetBool("trends")
	if err != nil {
		return err
	}

	window, err := cmd.Flags().GetDuration("window")
	if err != nil {
		return err
	}
	if window <= 0 {
		return errors.New("window must be positive")
	}

	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	backends, err := buildBackends(cfg)
	if err != nil {
		return err
	}
	if len(backends) == 0 {
		return errors.New("no storage backends configured")
	}

	checker := health.NewChecker(cfg.Health.Interval)
	defer checker.Dispose()

	var db *store.Store
	if journal || trends {
		db, err = openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup
	}
	if journal {
		checker.History = db
	}

	selected, err := selectBackends(backends, args)
	if err != nil {
		return err
	}

	// Trends need more than this probe's single point, so the ring is
	// rebuilt from the journal before probing.
	if trends {
		since := time.Now().UTC().Add(-window)
		for _, b := range selected {
			history, histErr := db.ListHealthHistory(ctx, b.Info().ID, since, 0)
			if histErr != nil {
				return histErr
			}
			checker.Seed(b.Info(), history)
		}
	}

	results := make([]core.HealthCheckResult, 0, len(selected))
	for _, b := range selected {
		result := checker.CheckBackend(ctx, b)
		healthy := result.Health.Status == core.HealthStatusHealthy
		metrics.RecordHealthCheck(result.Backend.ID, healthy, result.Health.ResponseTime)
		results = append(results, result)
	}

	outPath, outDir, err := resolveOutputTargets(cmd)
	if err != nil {
		return err
	}
	if outDir != "" {
		outDir, err = ensureOutDir(outDir)
		if err != nil {
			return err
		}
		outPath = filepath.Join(outDir, fmt.Sprintf("probe.%s", outputExtension(format)))
	}

	sink, err := openSink(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	formatter := output.NewFormatter(format)
	rendered, err := formatter.FormatHealth(results)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(sink.writer, rendered); err != nil {
		return err
	}

	if trends {
		reports := make([]core.HealthTrend, 0, len(selected))
		for _, b := range selected {
			reports = append(reports, checker.Trend(b.Info().ID, window))
		}
		rendered, err := formatter.FormatTrends(reports)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(sink.writer, rendered); err != nil {
			return err
		}
	}

	return nil
}

// selectBackends filters configured backends down to the requested IDs,
// preserving configuration order. No IDs means all backends.
func selectBackends(backends []backend.Backend, ids []string) ([]backend.Backend, error) {
	if len(ids) == 0 {
		return backends, nil
	}

	byID := make(map[string]backend.Backend, len(backends))
	for _, b := range backends {
		byID[b.Info().ID] = b
	}

	selected := make([]backend.Backend, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		b, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown backend %q", id)
		}
		selected = append(selected, b)
	}
	return selected, nil
}
