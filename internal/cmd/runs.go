package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stevedore/stevedore/internal/output"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded ingestion runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent ingestion runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}
		if limit < 1 {
			return fmt.Errorf("limit must be at least 1")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		runs, err := db.ListIngestionRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatRuns(runs)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one ingestion run with per-file results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		id := strings.TrimSpace(args[0])
		if id == "" {
			return fmt.Errorf("run ID is required")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		run, err := db.GetIngestionRun(cmd.Context(), id)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %q not found", id)
		}

		rendered, err := output.NewFormatter(format).FormatRun(run)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsListCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	runsListCmd.Flags().Int("limit", 20, "Maximum runs to list")
	runsShowCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
}
