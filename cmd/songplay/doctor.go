package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/franz/songplay-etl/internal/load"
	"github.com/franz/songplay-etl/internal/store"
	"github.com/franz/songplay-etl/internal/util"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure songplay can operate correctly.

This command checks:
- SQLite version compatibility
- Warehouse connectivity, schema version and integrity
- Song and log data directories
- Artifacts directory permissions
- Disk space availability

Use this command to troubleshoot issues before running a load.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	applyLogLevel()

	util.InfoLog("=== songplay doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{}

	// 1. Check SQLite
	results = append(results, checkSQLite())

	// 2. Check warehouse
	results = append(results, checkDatabase(ctx, storeConfig()))

	// 3. Check data directories
	exts := GetConfigStringSlice("extensions")
	results = append(results, checkDataDirectory("Song data", GetConfigString("song-data", "data/song_data"), exts))
	results = append(results, checkDataDirectory("Log data", GetConfigString("log-data", "data/log_data"), exts))

	// 4. Check artifacts directory
	artifacts := GetConfigString("artifacts", "artifacts")
	results = append(results, checkArtifactsDirectory(artifacts))

	// 5. Check disk space
	results = append(results, checkDiskSpace(artifacts, "artifacts"))

	// Print results
	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	// Summary
	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before loading.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed! Ready to load.")
	}

	return nil
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	// modernc.org/sqlite is built in; just verify we can get the version
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies the warehouse is reachable and its schema is current.
// It never migrates.
func checkDatabase(ctx context.Context, cfg store.Config) checkResult {
	dialect, err := store.ParseDialect(cfg.Driver)
	if err != nil {
		return checkResult{name: "Warehouse", error: true, message: err.Error()}
	}

	var size int64
	if dialect == store.DialectSQLite {
		if cfg.Path == "" {
			return checkResult{
				name:    "Warehouse",
				warning: true,
				message: "no database path specified (use --db flag or config)",
			}
		}

		info, err := os.Stat(cfg.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return checkResult{
					name:    "Warehouse",
					message: fmt.Sprintf("%s (will be created on first run)", cfg.Path),
				}
			}
			return checkResult{
				name:    "Warehouse",
				error:   true,
				message: fmt.Sprintf("cannot access %s: %v", cfg.Path, err),
			}
		}
		if !info.Mode().IsRegular() {
			return checkResult{
				name:    "Warehouse",
				error:   true,
				message: fmt.Sprintf("%s is not a regular file", cfg.Path),
			}
		}
		size = info.Size()
	}

	cfg.SkipMigrations = true
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return checkResult{
			name:    "Warehouse",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", describeStore(cfg), err),
		}
	}
	defer db.Close()

	if lite, ok := db.(*store.SQLite); ok {
		if err := lite.CheckIntegrity(ctx); err != nil {
			return checkResult{
				name:    "Warehouse",
				error:   true,
				message: fmt.Sprintf("integrity check failed: %v", err),
			}
		}
	}

	version, err := store.SchemaVersion(ctx, db)
	if err != nil {
		return checkResult{
			name:    "Warehouse",
			error:   true,
			message: fmt.Sprintf("cannot read schema version: %v", err),
		}
	}
	if version < store.CurrentSchemaVersion {
		return checkResult{
			name:    "Warehouse",
			warning: true,
			message: fmt.Sprintf("%s at schema v%d, v%d is applied on the next load", describeStore(cfg), version, store.CurrentSchemaVersion),
		}
	}

	stats, err := store.CollectStats(ctx, db, 0)
	if err != nil {
		return checkResult{
			name:    "Warehouse",
			error:   true,
			message: fmt.Sprintf("cannot read tables: %v", err),
		}
	}

	msg := fmt.Sprintf("%s, schema v%d, %s songplays", describeStore(cfg), version,
		util.FormatCount(int64(stats.TableCounts["songplays"])))
	if size > 0 {
		msg += fmt.Sprintf(", %s", util.FormatBytes(size))
	}
	if failed := stats.FilesByStatus[store.LoadStatusFailed]; failed > 0 {
		return checkResult{
			name:    "Warehouse",
			warning: true,
			message: fmt.Sprintf("%s, %d failed file(s) in the ledger", msg, failed),
		}
	}

	return checkResult{name: "Warehouse", message: msg}
}

// checkDataDirectory verifies an input directory holds JSON-lines files
func checkDataDirectory(label, path string, extensions []string) checkResult {
	files, err := load.Discover(afero.NewOsFs(), path, extensions)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) || errors.Is(err, util.ErrInvalidConfig) {
			return checkResult{name: label, error: true, message: err.Error()}
		}
		return checkResult{
			name:    label,
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}

	if len(files) == 0 {
		return checkResult{
			name:    label,
			warning: true,
			message: fmt.Sprintf("%s (no input files)", path),
		}
	}

	return checkResult{
		name:    label,
		message: fmt.Sprintf("%s (%d files)", path, len(files)),
	}
}

// checkArtifactsDirectory verifies the artifacts directory is writable
func checkArtifactsDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Artifacts directory",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Artifacts directory",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	// Check write permission by creating a temp file
	testFile := filepath.Join(path, ".songplay_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Artifacts directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))

	usedPercent := 0.0
	if totalBytes > 0 {
		usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	}

	// Warn if less than 1 GiB available or >90% used
	warning := false
	warningMsg := ""
	if availBytes < 1<<30 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 90 {
		warning = true
		warningMsg = " (>90% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", util.FormatBytes(int64(availBytes)), warningMsg),
	}
}
