package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/franz/songplay-etl/internal/load"
	"github.com/franz/songplay-etl/internal/util"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load song data, then log data, into the warehouse",
	Long: `Load the song-metadata and activity-log directories into the star schema.

This command runs two phases:
1. Song data: every file adds its songs and artists rows
2. Log data: every file adds time, users and songplays rows

Files are committed one at a time. A malformed file is rolled back, recorded
as failed in the load ledger and skipped. A storage failure stops the run
with the file and record that caused it.

Press Ctrl-C to stop after the file being loaded.`,
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().String("song-data", "data/song_data", "song metadata directory")
	loadCmd.Flags().String("log-data", "data/log_data", "activity log directory")
	loadCmd.Flags().String("conflict-policy", "replace", "dimension conflicts: replace, ignore or error")
	loadCmd.Flags().String("multi-record", "first", "song files with several records: first, all or error")
	loadCmd.Flags().Bool("skip-unchanged", false, "skip files already loaded with identical content")
	loadCmd.Flags().StringSlice("extensions", load.DefaultExtensions, "file extensions treated as JSON lines")
	loadCmd.Flags().Bool("songs-only", false, "load song data only")
	loadCmd.Flags().Bool("logs-only", false, "load log data only")

	viper.BindPFlag("song-data", loadCmd.Flags().Lookup("song-data"))
	viper.BindPFlag("log-data", loadCmd.Flags().Lookup("log-data"))
	viper.BindPFlag("conflict-policy", loadCmd.Flags().Lookup("conflict-policy"))
	viper.BindPFlag("multi-record", loadCmd.Flags().Lookup("multi-record"))
	viper.BindPFlag("skip-unchanged", loadCmd.Flags().Lookup("skip-unchanged"))
	viper.BindPFlag("extensions", loadCmd.Flags().Lookup("extensions"))
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	applyLogLevel()

	songRoot := GetConfigString("song-data", "data/song_data")
	logRoot := GetConfigString("log-data", "data/log_data")
	if only, _ := cmd.Flags().GetBool("songs-only"); only {
		logRoot = ""
	}
	if only, _ := cmd.Flags().GetBool("logs-only"); only {
		songRoot = ""
	}
	if songRoot == "" && logRoot == "" {
		return fmt.Errorf("%w: nothing to load", util.ErrInvalidConfig)
	}

	policy, err := load.ParseMultiRecordPolicy(viper.GetString("multi-record"))
	if err != nil {
		return err
	}

	cfg := storeConfig()
	util.InfoLog("Opening warehouse: %s", describeStore(cfg))

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stmts, err := buildStatements(db.Dialect())
	if err != nil {
		return err
	}

	logger := newEventLogger()
	defer logger.Close()

	if logger.Path() != "" {
		util.InfoLog("Event log: %s", logger.Path())
	}

	loader, err := load.New(load.Config{
		FS:            afero.NewOsFs(),
		DB:            db,
		Statements:    stmts,
		Events:        logger,
		MultiRecord:   policy,
		SkipUnchanged: GetConfigBool("skip-unchanged"),
		Extensions:    GetConfigStringSlice("extensions"),
	})
	if err != nil {
		return err
	}

	util.InfoLog("Run: %s (conflict policy: %s)", loader.RunID(), stmts.Policy())

	summary, err := loader.Run(ctx, songRoot, logRoot)
	printLoadSummary(summary)
	if err != nil {
		return fmt.Errorf("load aborted: %w", err)
	}

	if summary.Failed() > 0 {
		util.WarnLog("%d file(s) failed and were skipped; see the errors above or run 'songplay report'", summary.Failed())
	} else {
		util.SuccessLog("Load complete in %v", summary.Duration.Round(time.Millisecond))
	}
	return nil
}

func printLoadSummary(summary *load.Summary) {
	if summary == nil {
		return
	}

	util.InfoLog("")
	util.InfoLog("=== Summary ===")
	if r := summary.Songs; r != nil {
		util.InfoLog("Song files: %d loaded, %d failed, %d unchanged (%s)",
			r.Loaded, r.Failed, r.Skipped, util.FormatBytes(r.Bytes))
		util.InfoLog("  Records: %s", util.FormatCount(int64(r.Records)))
	}
	if r := summary.Logs; r != nil {
		util.InfoLog("Log files: %d loaded, %d failed, %d unchanged (%s)",
			r.Loaded, r.Failed, r.Skipped, util.FormatBytes(r.Bytes))
		util.InfoLog("  Events: %s", util.FormatCount(int64(r.Records)))
		util.InfoLog("  Songplays: %s (%s resolved, %s unmatched)",
			util.FormatCount(int64(r.Songplays)), util.FormatCount(int64(r.Resolved)), util.FormatCount(int64(r.Misses)))
	}
	for _, r := range []*load.BatchResult{summary.Songs, summary.Logs} {
		if r == nil {
			continue
		}
		for _, f := range r.Failures {
			util.WarnLog("  failed: %v", f.Err)
		}
	}
}
