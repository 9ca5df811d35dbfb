package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/franz/songplay-etl/internal/report"
	"github.com/franz/songplay-etl/internal/store"
	"github.com/franz/songplay-etl/internal/util"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a summary report of the warehouse and load ledger",
	Long: `Generate a summary report in Markdown format.

The report includes:
- Row counts of every table
- Resolved and unresolved songplays
- Loaded and failed files from the load ledger
- Top errors and the files that failed

The report is saved to <artifacts>/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	// Report-specific flags
	reportCmd.Flags().String("out", "", "Output directory for report (default: <artifacts>/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "Path to event log file (optional)")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	applyLogLevel()

	cfg := storeConfig()

	util.InfoLog("=== Generating Summary Report ===")
	util.InfoLog("Warehouse: %s", describeStore(cfg))

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	eventLogPath, _ := cmd.Flags().GetString("event-log")

	util.InfoLog("Analyzing data...")
	summaryReport, err := report.GenerateSummaryReport(ctx, db, eventLogPath)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	summaryReport.Driver = string(db.Dialect())
	if db.Dialect() == store.DialectSQLite {
		summaryReport.DatabasePath = cfg.Path
	}

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join(GetConfigString("artifacts", "artifacts"), "reports", timestamp)
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summaryReport, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report generated successfully!")
	util.InfoLog("")
	util.InfoLog("Summary:")
	util.InfoLog("  Songs: %s, artists: %s, users: %s",
		util.FormatCount(int64(summaryReport.Songs)),
		util.FormatCount(int64(summaryReport.Artists)),
		util.FormatCount(int64(summaryReport.Users)))
	util.InfoLog("  Songplays: %s (%.1f%% resolved)",
		util.FormatCount(int64(summaryReport.Songplays)), summaryReport.ResolutionRate())
	util.InfoLog("  Files loaded: %d (%s)", summaryReport.FilesLoaded, util.FormatBytes(summaryReport.BytesLoaded))
	if summaryReport.FilesFailed > 0 {
		util.WarnLog("  Files failed: %d", summaryReport.FilesFailed)
	}

	return nil
}
