package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stevedore/stevedore/internal/config"
	"github.com/stevedore/stevedore/internal/core"
	"github.com/stevedore/stevedore/internal/core/gate"
	"github.com/stevedore/stevedore/internal/core/ingest"
	"github.com/stevedore/stevedore/internal/core/ratelimit"
	"github.com/stevedore/stevedore/internal/metrics"
	"github.com/stevedore/stevedore/internal/observability"
	"github.com/stevedore/stevedore/internal/output"
)

var (
	ingestBackend     string
	ingestConcurrency int
	ingestTags        []string
	ingestMeta        map[string]string
	ingestDryRun      bool
	ingestNoLimit     bool
	ingestOutput      string
	ingestOut         string
	ingestOutDir      string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Bulk upload a directory to a storage backend",
	Long: `Walk a directory and upload every regular file to the selected backend.

Files already present on the backend are skipped. Per-file failures are
isolated; the run completes and reports aggregate counts. With --dry-run the
files are enumerated but neither the backend nor the store is touched.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestBackend, "backend", "", "Backend ID to upload to")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 0, "Concurrent uploads (defaults to ingest.concurrency)")
	ingestCmd.Flags().StringSliceVar(&ingestTags, "tag", nil, "Tag to attach to created documents (repeatable)")
	ingestCmd.Flags().StringToStringVar(&ingestMeta, "meta", nil, "Metadata key=value to attach to created documents")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "Enumerate files without uploading or recording")
	ingestCmd.Flags().BoolVar(&ingestNoLimit, "no-rate-limit", false, "Bypass backend rate limiting for this run")
	ingestCmd.Flags().StringVar(&ingestOutput, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	ingestCmd.Flags().StringVar(&ingestOut, "out", "", "Write output to a file (default stdout)")
	ingestCmd.Flags().StringVar(&ingestOutDir, "out-dir", "", "Write output to a directory")
}

// metricsSink reports per-file outcomes to telemetry.
type metricsSink struct {
	backendID string
	gate      *gate.Gate
}

func (s metricsSink) Init(total int) {}

func (s metricsSink) Completed(result core.FileResult) {
	metrics.RecordUpload(s.backendID, string(result.Outcome), result.Duration)
	metrics.SetGateInFlight(int64(s.gate.InFlight()))
}

func (s metricsSink) Failed(result core.FileResult) {
	metrics.RecordUpload(s.backendID, string(result.Outcome), result.Duration)
	metrics.SetGateInFlight(int64(s.gate.InFlight()))
}

func runIngest(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(ingestOutput)
	if err != nil {
		return err
	}

	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	cfg := config.GetConfig()
	if cfg == nil {
		return errors.New("config not loaded")
	}

	concurrency := ingestConcurrency
	if concurrency == 0 {
		concurrency = cfg.Ingest.Concurrency
	}
	if concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}

	b, err := resolveBackend(cfg, strings.TrimSpace(ingestBackend))
	if err != nil {
		return err
	}

	var limiter *ratelimit.Limiter
	if !ingestNoLimit {
		limiter = ratelimit.NewLimiter(limiterConfig(cfg))
		limiter.Journal = db
		limiter.OnDecision = metrics.RecordRateLimitDecision
	}

	g := gate.New(concurrency)
	orchestrator := &ingest.Orchestrator{
		Backend:   b,
		Gate:      g,
		Documents: db,
		Limiter:   limiter,
		Runs:      db,
		Progress: ingest.MultiSink{
			ingest.LogSink{Logger: observability.CLILogger},
			metricsSink{backendID: b.Info().ID, gate: g},
		},
	}

	run, err := orchestrator.Run(ctx, ingest.Options{
		Root:        root,
		Concurrency: concurrency,
		Tags:        ingestTags,
		Metadata:    ingestMeta,
		DryRun:      ingestDryRun,
	})
	if err != nil {
		return err
	}
	metrics.RecordIngestionRun(run.BackendID, run.DryRun)

	outPath := strings.TrimSpace(ingestOut)
	outDir := strings.TrimSpace(ingestOutDir)
	if outPath != "" && outDir != "" {
		return fmt.Errorf("--out and --out-dir are mutually exclusive")
	}
	if outDir != "" {
		outDir, err = ensureOutDir(outDir)
		if err != nil {
			return err
		}
		outPath = filepath.Join(outDir, fmt.Sprintf("ingest.%s.%s", sanitizeFilename(run.ID), outputExtension(format)))
	}

	sink, err := openSink(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	rendered, err := output.NewFormatter(format).FormatRun(run)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(sink.writer, rendered); err != nil {
		return err
	}

	if run.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", run.Failed, run.Total)
	}
	return nil
}
