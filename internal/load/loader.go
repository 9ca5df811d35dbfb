// Package load turns song-metadata and activity-log files into the star schema.
//
// A run has two phases. Song files are loaded first so that the songs and
// artists dimensions are complete before any playback is resolved against
// them. Each log file is then read twice: the first pass writes its time and
// users rows, the second writes one songplay per NextSong event. Every file is
// committed on its own; a malformed file is rolled back and skipped while a
// storage failure aborts the run.
package load

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/franz/songplay-etl/internal/extract"
	"github.com/franz/songplay-etl/internal/report"
	"github.com/franz/songplay-etl/internal/store"
	"github.com/franz/songplay-etl/internal/util"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Config configures a Loader
type Config struct {
	FS            afero.Fs
	DB            store.DB
	Statements    *store.Statements
	Events        *report.EventLogger
	MultiRecord   MultiRecordPolicy
	SkipUnchanged bool
	Extensions    []string
	RunID         string // generated when empty
}

// Summary is the outcome of a run
type Summary struct {
	RunID    string
	Songs    *BatchResult
	Logs     *BatchResult
	Duration time.Duration
}

// Failed returns the number of files rolled back in either phase
func (s *Summary) Failed() int {
	n := 0
	if s.Songs != nil {
		n += s.Songs.Failed
	}
	if s.Logs != nil {
		n += s.Logs.Failed
	}
	return n
}

// Loader runs the song and log phases against one warehouse
type Loader struct {
	fs       afero.Fs
	runID    string
	events   *report.EventLogger
	batch    *BatchLoader
	songs    *SongArtistLoader
	logs     *LogTransformer
	resolver *SongplayResolver
}

// New validates cfg and creates a Loader
func New(cfg Config) (*Loader, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("%w: no database", util.ErrInvalidConfig)
	}
	if cfg.Statements == nil {
		cfg.Statements = store.NewStatements(cfg.DB.Dialect(), store.ConflictReplace)
	}
	if cfg.Statements.Dialect() != cfg.DB.Dialect() {
		return nil, fmt.Errorf("%w: statements bound for %s, database is %s",
			util.ErrInvalidConfig, cfg.Statements.Dialect(), cfg.DB.Dialect())
	}
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	policy, err := ParseMultiRecordPolicy(string(cfg.MultiRecord))
	if err != nil {
		return nil, err
	}

	cfg.Events.SetRunID(cfg.RunID)

	return &Loader{
		fs:     cfg.FS,
		runID:  cfg.RunID,
		events: cfg.Events,
		batch: NewBatchLoader(BatchConfig{
			FS:            cfg.FS,
			DB:            cfg.DB,
			Statements:    cfg.Statements,
			Events:        cfg.Events,
			RunID:         cfg.RunID,
			Extensions:    cfg.Extensions,
			SkipUnchanged: cfg.SkipUnchanged,
		}),
		songs:    NewSongArtistLoader(cfg.Statements, policy),
		logs:     NewLogTransformer(cfg.Statements),
		resolver: NewSongplayResolver(cfg.Statements, cfg.Events),
	}, nil
}

// RunID identifies the run in the ledger and the event log
func (l *Loader) RunID() string {
	return l.runID
}

// Run loads songRoot, then logRoot. An empty root skips its phase.
func (l *Loader) Run(ctx context.Context, songRoot, logRoot string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: l.runID}

	err := l.run(ctx, songRoot, logRoot, summary)
	summary.Duration = time.Since(start)

	loaded, skipped := 0, 0
	for _, r := range []*BatchResult{summary.Songs, summary.Logs} {
		if r != nil {
			loaded += r.Loaded
			skipped += r.Skipped
		}
	}
	l.events.LogRun(loaded, summary.Failed(), skipped, summary.Duration, err)

	return summary, err
}

func (l *Loader) run(ctx context.Context, songRoot, logRoot string, summary *Summary) error {
	var err error

	if songRoot != "" {
		util.InfoLog("=== Song data ===")
		summary.Songs, err = l.batch.Run(ctx, KindSong, songRoot, l.LoadSongFile)
		if err != nil {
			return l.abort(KindSong, songRoot, err)
		}
	}

	if logRoot != "" {
		util.InfoLog("=== Log data ===")
		summary.Logs, err = l.batch.Run(ctx, KindLog, logRoot, l.LoadLogFile)
		if err != nil {
			return l.abort(KindLog, logRoot, err)
		}
	}

	return nil
}

// abort records a fatal error against the file that caused it, or the phase root
func (l *Loader) abort(kind, root string, err error) error {
	if !errors.Is(err, context.Canceled) {
		path := root
		var fe *FileError
		if errors.As(err, &fe) {
			path = fe.Path
		}
		l.events.LogError(report.EventError, path, err)
	}
	return fmt.Errorf("%s data: %w", kind, err)
}

// LoadSongFile writes one song-metadata file inside tx
func (l *Loader) LoadSongFile(ctx context.Context, tx store.Tx, path string) (FileStats, error) {
	return l.songs.Load(ctx, tx, extract.Songs(l.fs, path))
}

// LoadLogFile writes one activity-log file inside tx
func (l *Loader) LoadLogFile(ctx context.Context, tx store.Tx, path string) (FileStats, error) {
	src := extract.Logs(l.fs, path)

	dims, err := l.logs.Load(ctx, tx, src)
	if err != nil {
		return FileStats{}, err
	}

	res, err := l.resolver.Resolve(ctx, tx, path, Playbacks(src))
	stats := FileStats{
		Records:   dims.Records,
		Written:   len(dims.Times) + len(dims.Users),
		Songplays: res.Songplays,
		Resolved:  res.Resolved,
		Misses:    res.Misses,
	}
	return stats, err
}
