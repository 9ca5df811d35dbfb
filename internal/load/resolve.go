package load

import (
	"context"
	"errors"
	"iter"

	"github.com/franz/songplay-etl/internal/report"
	"github.com/franz/songplay-etl/internal/store"
)

// Resolution counts the songplays written for one file
type Resolution struct {
	Songplays int
	Resolved  int
	Misses    int
}

// SongplayResolver matches playbacks to known songs and writes the songplays fact table
type SongplayResolver struct {
	stmts  *store.Statements
	events *report.EventLogger
}

// NewSongplayResolver creates a resolver bound to a statement set.
// events may be nil.
func NewSongplayResolver(stmts *store.Statements, events *report.EventLogger) *SongplayResolver {
	return &SongplayResolver{stmts: stmts, events: events}
}

// Lookup finds the song and artist ids for an exact (title, artist name, duration) match.
// A miss returns nil ids and no error.
func (r *SongplayResolver) Lookup(ctx context.Context, q store.Querier, p Playback) (songID, artistID *string, err error) {
	var sid, aid string
	err = r.stmts.Scan(ctx, q, store.StmtSongSelect, []any{p.Song, p.Artist, p.Length}, &sid, &aid)
	if errors.Is(err, store.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &sid, &aid, nil
}

// Resolve writes one songplay per playback inside tx.
// Lookups run on the same transaction so songs loaded earlier in the run are visible.
func (r *SongplayResolver) Resolve(ctx context.Context, tx store.Tx, path string, plays iter.Seq2[Playback, error]) (Resolution, error) {
	var res Resolution

	for p, err := range plays {
		if err != nil {
			return res, err
		}

		songID, artistID, err := r.Lookup(ctx, tx, p)
		if err != nil {
			return res, atRecord(path, p.Record, err)
		}

		sp := store.SongplayRecord{
			StartTime: p.Start,
			UserID:    p.UserID,
			Level:     p.Level,
			SongID:    songID,
			ArtistID:  artistID,
			SessionID: p.SessionID,
			Location:  p.Location,
			UserAgent: p.UserAgent,
		}
		err = r.stmts.Scan(ctx, tx, store.StmtSongplayInsert,
			[]any{sp.StartTime, sp.UserID, sp.Level, sp.SongID, sp.ArtistID, sp.SessionID, sp.Location, sp.UserAgent},
			&sp.SongplayID)
		if err != nil {
			return res, atRecord(path, p.Record, err)
		}

		res.Songplays++
		if sp.Resolved() {
			res.Resolved++
		} else {
			res.Misses++
			r.events.LogResolveMiss(path, p.Song, p.Artist, p.Length)
		}
	}

	return res, nil
}
