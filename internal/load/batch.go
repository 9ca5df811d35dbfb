package load

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/franz/songplay-etl/internal/extract"
	"github.com/franz/songplay-etl/internal/report"
	"github.com/franz/songplay-etl/internal/store"
	"github.com/franz/songplay-etl/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/panics"
	"github.com/spf13/afero"
)

// File kinds recorded in the load ledger
const (
	KindSong = "song"
	KindLog  = "log"
)

// FileStats counts what one file contributed
type FileStats struct {
	Records   int // records read
	Written   int // dimension rows written
	Songplays int
	Resolved  int
	Misses    int
}

// FileFunc processes one file inside tx. Returning an error rolls tx back.
type FileFunc func(ctx context.Context, tx store.Tx, path string) (FileStats, error)

// FileFailure is a file that was rolled back and skipped
type FileFailure struct {
	Path string
	Err  error
}

// BatchResult summarizes one directory
type BatchResult struct {
	Kind      string
	Root      string
	Files     int
	Loaded    int
	Failed    int
	Skipped   int
	Records   int
	Songplays int
	Resolved  int
	Misses    int
	Bytes     int64
	Failures  []FileFailure
}

func (r *BatchResult) add(stats FileStats, size int64) {
	r.Loaded++
	r.Records += stats.Records
	r.Songplays += stats.Songplays
	r.Resolved += stats.Resolved
	r.Misses += stats.Misses
	r.Bytes += size
}

// BatchConfig configures a BatchLoader
type BatchConfig struct {
	FS            afero.Fs
	DB            store.DB
	Statements    *store.Statements
	Events        *report.EventLogger
	RunID         string
	Extensions    []string
	SkipUnchanged bool
}

// BatchLoader discovers the files under a directory and commits them one at a time
type BatchLoader struct {
	fs            afero.Fs
	db            store.DB
	stmts         *store.Statements
	events        *report.EventLogger
	runID         string
	extensions    []string
	skipUnchanged bool
	showProgress  bool
}

// NewBatchLoader creates a BatchLoader
func NewBatchLoader(cfg BatchConfig) *BatchLoader {
	fs := cfg.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &BatchLoader{
		fs:            fs,
		db:            cfg.DB,
		stmts:         cfg.Statements,
		events:        cfg.Events,
		runID:         cfg.RunID,
		extensions:    normalizeExtensions(cfg.Extensions),
		skipUnchanged: cfg.SkipUnchanged,
		showProgress:  util.ShowProgress(),
	}
}

// Discover returns every file under root with one of the given extensions,
// sorted lexically. Hidden files and directories are ignored.
func Discover(fs afero.Fs, root string, extensions []string) ([]string, error) {
	info, err := fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: data directory %s: %w", util.ErrNotFound, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", util.ErrInvalidConfig, root)
	}

	exts := normalizeExtensions(extensions)
	var files []string

	err = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			util.WarnLog("Error accessing path %s: %v", path, err)
			return nil
		}

		name := info.Name()
		if path != root && strings.HasPrefix(name, ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		if slices.Contains(exts, strings.ToLower(filepath.Ext(name))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk error: %w", err)
	}

	slices.Sort(files)
	return files, nil
}

// Run processes every file under root with fn, one transaction per file.
// Parse-class failures are rolled back, recorded and skipped; any other
// failure stops the run and is returned together with the partial result.
func (b *BatchLoader) Run(ctx context.Context, kind, root string, fn FileFunc) (*BatchResult, error) {
	// ledger keys must not depend on the working directory
	abs, err := filepath.Abs(root)
	if err != nil {
		return &BatchResult{Kind: kind, Root: root}, fmt.Errorf("%w: data directory %s: %w", util.ErrInvalidConfig, root, err)
	}
	root = abs
	res := &BatchResult{Kind: kind, Root: root}

	files, err := Discover(b.fs, root, b.extensions)
	if err != nil {
		return res, err
	}
	res.Files = len(files)

	util.InfoLog("%d files found in %s", len(files), root)
	b.events.LogDiscover(kind, root, len(files))

	var bar *progressbar.ProgressBar
	if b.showProgress && len(files) > 0 {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription(fmt.Sprintf("Loading %s data", kind)),
			progressbar.OptionSetWidth(util.ProgressWidth()),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
		defer bar.Finish()
	}

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			util.WarnLog("Interrupted after %d/%d files", i, len(files))
			return res, err
		}

		// a file that has started is finished; cancellation takes effect between files
		ok, err := b.processFile(context.WithoutCancel(ctx), kind, path, fn, res)
		if err != nil {
			return res, err
		}

		if bar != nil {
			bar.Add(1)
		} else if ok {
			util.InfoLog("%d/%d files processed.", i+1, len(files))
		}
	}

	return res, nil
}

// processFile reports whether path was committed. Contained failures return false and no error.
func (b *BatchLoader) processFile(ctx context.Context, kind, path string, fn FileFunc, res *BatchResult) (bool, error) {
	start := time.Now()

	hash, size, err := util.ContentHash(b.fs, path)
	if err != nil {
		return false, b.fail(ctx, kind, path, hash, size, &extract.ParseError{Path: path, Err: err}, res, start)
	}

	if b.skipUnchanged {
		loaded, err := b.stmts.AlreadyLoaded(ctx, b.db, path, hash)
		if err != nil {
			return false, err
		}
		if loaded {
			res.Skipped++
			util.DebugLog("Unchanged since last load: %s", path)
			b.events.LogSkip(kind, path, "unchanged")
			return false, nil
		}
	}

	tx, err := b.db.Begin(ctx)
	if err != nil {
		return false, err
	}

	stats, err := runContained(ctx, tx, path, fn)
	if err != nil {
		tx.Rollback(ctx)
		if util.IsContained(err) {
			return false, b.fail(ctx, kind, path, hash, size, err, res, start)
		}
		b.events.LogLoad(kind, path, stats.Records, stats.Songplays, stats.Resolved, time.Since(start), err)
		return false, err
	}

	err = b.stmts.RecordLoad(ctx, tx, &store.LoadedFile{
		Path:        path,
		Kind:        kind,
		ContentHash: hash,
		SizeBytes:   size,
		Records:     stats.Records,
		Status:      store.LoadStatusLoaded,
		RunID:       b.runID,
	})
	if err != nil {
		tx.Rollback(ctx)
		return false, atRecord(path, 0, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, atRecord(path, 0, err)
	}

	res.add(stats, size)
	util.DebugLog("Loaded %s: %d records", path, stats.Records)
	b.events.LogLoad(kind, path, stats.Records, stats.Songplays, stats.Resolved, time.Since(start), nil)
	return true, nil
}

// fail records a rolled-back file in the ledger using its own transaction
func (b *BatchLoader) fail(ctx context.Context, kind, path, hash string, size int64, cause error, res *BatchResult, start time.Time) error {
	util.ErrorLog("Skipping %s: %v", path, cause)

	res.Failed++
	res.Failures = append(res.Failures, FileFailure{Path: path, Err: cause})
	b.events.LogLoad(kind, path, 0, 0, 0, time.Since(start), cause)

	tx, err := b.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = b.stmts.RecordLoad(ctx, tx, &store.LoadedFile{
		Path:        path,
		Kind:        kind,
		ContentHash: hash,
		SizeBytes:   size,
		Status:      store.LoadStatusFailed,
		Error:       cause.Error(),
		RunID:       b.runID,
	})
	if err != nil {
		return atRecord(path, 0, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return atRecord(path, 0, err)
	}
	return nil
}

// runContained calls fn and turns a panic into a contained error
func runContained(ctx context.Context, tx store.Tx, path string, fn FileFunc) (stats FileStats, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		stats, err = fn(ctx, tx, path)
	})
	if r := pc.Recovered(); r != nil {
		return stats, &FileError{Path: path, Err: fmt.Errorf("%w: %w", util.ErrRecovered, r.AsError())}
	}
	return stats, err
}
