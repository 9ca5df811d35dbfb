package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/franz/songplay-etl/internal/store"
	"github.com/franz/songplay-etl/internal/util"
)

// SummaryReport represents a complete summary report
type SummaryReport struct {
	GeneratedAt time.Time

	// Warehouse contents
	Artists   int
	Songs     int
	Users     int
	TimeRows  int
	Songplays int

	// Resolution
	ResolvedSongplays   int
	UnresolvedSongplays int

	// Load ledger
	FilesLoaded int
	FilesFailed int
	BytesLoaded int64

	// Details
	TopErrors   []ErrorSummary
	FailedFiles []FailedFile

	// Metadata
	Driver       string
	DatabasePath string
	EventLogPath string
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// FailedFile is an input file whose last load attempt failed
type FailedFile struct {
	Path  string
	Kind  string
	Error string
	RunID string
}

// ResolutionRate returns the share of songplays that matched a known song
func (r *SummaryReport) ResolutionRate() float64 {
	if r.Songplays == 0 {
		return 0
	}
	return float64(r.ResolvedSongplays) / float64(r.Songplays) * 100
}

// GenerateSummaryReport creates a summary report from the warehouse and load ledger
func GenerateSummaryReport(ctx context.Context, db store.Querier, eventLogPath string) (*SummaryReport, error) {
	stats, err := store.CollectStats(ctx, db, 10)
	if err != nil {
		return nil, err
	}

	report := &SummaryReport{
		GeneratedAt:       time.Now(),
		EventLogPath:      eventLogPath,
		Artists:           stats.TableCounts["artists"],
		Songs:             stats.TableCounts["songs"],
		Users:             stats.TableCounts["users"],
		TimeRows:          stats.TableCounts["time"],
		Songplays:         stats.TableCounts["songplays"],
		ResolvedSongplays: stats.ResolvedSongplays,
		FilesLoaded:       stats.FilesByStatus[store.LoadStatusLoaded],
		FilesFailed:       stats.FilesByStatus[store.LoadStatusFailed],
		BytesLoaded:       stats.BytesLoaded,
		TopErrors:         make([]ErrorSummary, 0, len(stats.TopErrors)),
		FailedFiles:       make([]FailedFile, 0),
	}
	report.UnresolvedSongplays = report.Songplays - report.ResolvedSongplays

	for _, ec := range stats.TopErrors {
		report.TopErrors = append(report.TopErrors, ErrorSummary{Error: ec.Error, Count: ec.Count})
	}

	failed, err := store.FailedFiles(ctx, db, 20)
	if err != nil {
		return nil, err
	}
	for _, f := range failed {
		report.FailedFiles = append(report.FailedFiles, FailedFile{
			Path:  f.Path,
			Kind:  f.Kind,
			Error: f.Error,
			RunID: f.RunID,
		})
	}

	return report, nil
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(RenderMarkdown(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// RenderMarkdown formats the summary report as a Markdown document
func RenderMarkdown(report *SummaryReport) string {
	var md strings.Builder

	md.WriteString("# Songplay ETL - Summary Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	if report.Driver != "" {
		md.WriteString(fmt.Sprintf("**Driver:** %s\n\n", report.Driver))
	}
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	// Tables
	md.WriteString("## 📊 Tables\n\n")
	md.WriteString("| Table | Rows |\n")
	md.WriteString("|-------|------|\n")
	md.WriteString(fmt.Sprintf("| artists | %s |\n", util.FormatCount(int64(report.Artists))))
	md.WriteString(fmt.Sprintf("| songs | %s |\n", util.FormatCount(int64(report.Songs))))
	md.WriteString(fmt.Sprintf("| users | %s |\n", util.FormatCount(int64(report.Users))))
	md.WriteString(fmt.Sprintf("| time | %s |\n", util.FormatCount(int64(report.TimeRows))))
	md.WriteString(fmt.Sprintf("| songplays | %s |\n", util.FormatCount(int64(report.Songplays))))
	md.WriteString("\n")

	// Resolution
	if report.Songplays > 0 {
		md.WriteString("## 🔗 Song Resolution\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Resolved | %s |\n", util.FormatCount(int64(report.ResolvedSongplays))))
		md.WriteString(fmt.Sprintf("| Unresolved | %s |\n", util.FormatCount(int64(report.UnresolvedSongplays))))
		md.WriteString(fmt.Sprintf("| Resolution Rate | %.1f%% |\n", report.ResolutionRate()))
		md.WriteString("\n")
	}

	// Ledger
	if report.FilesLoaded > 0 || report.FilesFailed > 0 {
		md.WriteString("## 📋 Load Ledger\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Files Loaded | %d |\n", report.FilesLoaded))
		if report.FilesFailed > 0 {
			md.WriteString(fmt.Sprintf("| Files Failed | %d |\n", report.FilesFailed))
		}
		md.WriteString(fmt.Sprintf("| Bytes Loaded | %s |\n", util.FormatBytes(report.BytesLoaded)))
		md.WriteString("\n")
	}

	// Errors
	if len(report.TopErrors) > 0 {
		md.WriteString("## ⚠️ Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", err.Count, escapeCell(err.Error)))
		}
		md.WriteString("\n")
	}

	if len(report.FailedFiles) > 0 {
		md.WriteString("## 🚨 Failed Files\n\n")
		md.WriteString("| Kind | Path | Error |\n")
		md.WriteString("|------|------|-------|\n")
		for _, f := range report.FailedFiles {
			md.WriteString(fmt.Sprintf("| %s | `%s` | %s |\n",
				f.Kind, truncatePath(f.Path, 60), escapeCell(f.Error)))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by songplay-etl*\n")

	return md.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
