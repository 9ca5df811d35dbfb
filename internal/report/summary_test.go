package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/franz/songplay-etl/internal/store"
)

func setupTestData(t *testing.T, db store.DB) {
	t.Helper()
	ctx := context.Background()
	stmts := store.NewStatements(db.Dialect(), store.ConflictReplace)

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx.Rollback(ctx)

	start := time.UnixMilli(1541106106796).UTC()
	songID, artistID := "SOZCTXZ12AB0182364", "AR5KOSW1187FB35FF4"
	steps := []error{
		stmts.Exec(ctx, tx, store.StmtArtistInsert, artistID, "Elena", "Dubai UAE", 49.80388, 15.47491),
		stmts.Exec(ctx, tx, store.StmtSongInsert, songID, "Setanta matins", artistID, 0, 269.58322),
		stmts.Exec(ctx, tx, store.StmtUserInsert, int64(8), "Kaylee", "Summers", "F", "free"),
	}
	tr := store.NewTimeRecord(start)
	steps = append(steps, stmts.Exec(ctx, tx, store.StmtTimeInsert,
		tr.StartTime, tr.Hour, tr.Day, tr.Week, tr.Month, tr.Year, tr.Weekday))
	for _, err := range steps {
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	for _, ids := range [][2]*string{{&songID, &artistID}, {nil, nil}, {nil, nil}} {
		var id int64
		err := stmts.Scan(ctx, tx, store.StmtSongplayInsert,
			[]any{start, int64(8), "free", ids[0], ids[1], int64(139), "Phoenix", "Mozilla/5.0"}, &id)
		if err != nil {
			t.Fatalf("songplay insert failed: %v", err)
		}
	}

	ledger := []*store.LoadedFile{
		{Path: "song_data/A/A/A/TRAAAAW128F429D538.json", Kind: "song", ContentHash: "aa", SizeBytes: 2048, Records: 1, Status: store.LoadStatusLoaded},
		{Path: "log_data/2018/11/2018-11-01-events.json", Kind: "log", ContentHash: "bb", SizeBytes: 1024, Records: 15, Status: store.LoadStatusLoaded},
		{Path: "log_data/2018/11/2018-11-02-events.json", Kind: "log", ContentHash: "cc", SizeBytes: 10, Status: store.LoadStatusFailed, Error: "line 1: invalid character"},
		{Path: "song_data/B/empty.json", Kind: "song", ContentHash: "dd", Status: store.LoadStatusFailed, Error: "line 1: invalid character"},
	}
	for _, f := range ledger {
		f.RunID = "run-1"
		if err := stmts.RecordLoad(ctx, tx, f); err != nil {
			t.Fatalf("RecordLoad failed: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func openTestDB(t *testing.T) store.DB {
	t.Helper()
	db, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGenerateSummaryReport(t *testing.T) {
	db := openTestDB(t)
	setupTestData(t, db)

	report, err := GenerateSummaryReport(context.Background(), db, "test-events.jsonl")
	if err != nil {
		t.Fatalf("GenerateSummaryReport failed: %v", err)
	}

	if report.Songs != 1 || report.Artists != 1 || report.Users != 1 || report.TimeRows != 1 {
		t.Errorf("Unexpected dimension counts: %+v", report)
	}
	if report.Songplays != 3 {
		t.Errorf("Expected 3 songplays, got %d", report.Songplays)
	}
	if report.ResolvedSongplays != 1 || report.UnresolvedSongplays != 2 {
		t.Errorf("Expected 1 resolved and 2 unresolved, got %d and %d",
			report.ResolvedSongplays, report.UnresolvedSongplays)
	}
	if report.FilesLoaded != 2 || report.FilesFailed != 2 {
		t.Errorf("Expected 2 loaded and 2 failed files, got %d and %d", report.FilesLoaded, report.FilesFailed)
	}
	if report.BytesLoaded != 3072 {
		t.Errorf("Expected 3072 bytes loaded, got %d", report.BytesLoaded)
	}
	if len(report.TopErrors) != 1 || report.TopErrors[0].Count != 2 {
		t.Errorf("Expected one grouped error with count 2, got %+v", report.TopErrors)
	}
	if len(report.FailedFiles) != 2 || report.FailedFiles[0].Kind != "log" {
		t.Errorf("Unexpected failed files: %+v", report.FailedFiles)
	}
	if report.EventLogPath != "test-events.jsonl" {
		t.Errorf("Expected event log path 'test-events.jsonl', got '%s'", report.EventLogPath)
	}
}

func TestGenerateSummaryReportClosedDB(t *testing.T) {
	db := openTestDB(t)
	db.Close()

	_, err := GenerateSummaryReport(context.Background(), db, "")
	if err == nil {
		t.Fatal("Expected error from closed database")
	}
	var se *store.StorageError
	if !errors.As(err, &se) {
		t.Errorf("Expected StorageError, got %T: %v", err, err)
	}
}

func TestWriteMarkdownReport(t *testing.T) {
	tmpDir := t.TempDir()
	outputPath := filepath.Join(tmpDir, "reports", "summary.md")

	report := &SummaryReport{
		GeneratedAt:         time.Now(),
		Driver:              "sqlite",
		DatabasePath:        "songplay.db",
		Artists:             69,
		Songs:               71,
		Users:               96,
		TimeRows:            6813,
		Songplays:           6820,
		ResolvedSongplays:   1,
		UnresolvedSongplays: 6819,
		FilesLoaded:         101,
		FilesFailed:         1,
		BytesLoaded:         4 * 1024 * 1024,
		TopErrors:           []ErrorSummary{{Error: "a | b", Count: 1}},
		FailedFiles:         []FailedFile{{Path: "log_data/bad.json", Kind: "log", Error: "a | b"}},
	}

	if err := WriteMarkdownReport(report, outputPath); err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	md := string(content)

	expected := []string{
		"# Songplay ETL - Summary Report",
		"## 📊 Tables",
		"| songplays | 6,820 |",
		"## 🔗 Song Resolution",
		"| Resolution Rate | 0.0% |",
		"## 📋 Load Ledger",
		"| Bytes Loaded | 4.0 MiB |",
		"## ⚠️ Top Errors",
		`a \| b`,
		"## 🚨 Failed Files",
		"`log_data/bad.json`",
	}
	for _, s := range expected {
		if !strings.Contains(md, s) {
			t.Errorf("Report missing %q", s)
		}
	}
}

func TestReportWithEmptyData(t *testing.T) {
	db := openTestDB(t)

	report, err := GenerateSummaryReport(context.Background(), db, "")
	if err != nil {
		t.Fatalf("GenerateSummaryReport failed: %v", err)
	}

	md := RenderMarkdown(report)
	if strings.Contains(md, "Song Resolution") {
		t.Error("Empty warehouse should not render the resolution section")
	}
	if strings.Contains(md, "Top Errors") {
		t.Error("Empty ledger should not render the errors section")
	}
	if report.ResolutionRate() != 0 {
		t.Errorf("Expected 0 resolution rate, got %f", report.ResolutionRate())
	}
}

func TestTruncatePath(t *testing.T) {
	testCases := []struct {
		name   string
		path   string
		maxLen int
	}{
		{
			name:   "Short path - no truncation",
			path:   "log_data/events.json",
			maxLen: 50,
		},
		{
			name:   "Long path - truncate middle",
			path:   "data/song_data/A/A/B/TRAABJL12903CDCF1A.json",
			maxLen: 30,
		},
		{
			name:   "Exactly at limit",
			path:   "song_data/a.json",
			maxLen: 16,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := truncatePath(tc.path, tc.maxLen)

			if len(result) > tc.maxLen {
				t.Errorf("Result length %d exceeds maxLen %d", len(result), tc.maxLen)
			}
			if len(tc.path) > tc.maxLen && !strings.Contains(result, "...") {
				t.Error("Expected truncated path to contain '...'")
			}
			if len(tc.path) <= tc.maxLen && result != tc.path {
				t.Errorf("Short path should not be truncated: expected '%s', got '%s'", tc.path, result)
			}
		})
	}
}
