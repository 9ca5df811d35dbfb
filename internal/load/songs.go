package load

import (
	"context"
	"fmt"

	"github.com/franz/songplay-etl/internal/extract"
	"github.com/franz/songplay-etl/internal/store"
	"github.com/franz/songplay-etl/internal/util"
)

// SongRows splits a song-metadata record into its songs and artists rows
func SongRows(rec extract.SongMetadata) (store.SongRecord, store.ArtistRecord) {
	song := store.SongRecord{
		SongID:   rec.SongID,
		Title:    rec.Title,
		ArtistID: rec.ArtistID,
		Year:     rec.Year,
		Duration: rec.Duration,
	}
	artist := store.ArtistRecord{
		ArtistID:  rec.ArtistID,
		Name:      rec.ArtistName,
		Location:  rec.ArtistLocation,
		Longitude: rec.ArtistLongitude,
		Latitude:  rec.ArtistLatitude,
	}
	return song, artist
}

// SongArtistLoader writes song-metadata files into the songs and artists dimensions
type SongArtistLoader struct {
	stmts  *store.Statements
	policy MultiRecordPolicy
}

// NewSongArtistLoader creates a loader bound to a statement set
func NewSongArtistLoader(stmts *store.Statements, policy MultiRecordPolicy) *SongArtistLoader {
	if policy == "" {
		policy = MultiRecordFirst
	}
	return &SongArtistLoader{stmts: stmts, policy: policy}
}

// Load writes the records of src inside tx.
// The artist row is written before the song row that references it.
func (l *SongArtistLoader) Load(ctx context.Context, tx store.Tx, src *extract.Source[extract.SongMetadata]) (FileStats, error) {
	var stats FileStats

	for rec, err := range src.All() {
		if err != nil {
			return stats, err
		}
		stats.Records++

		if stats.Records > 1 && l.policy == MultiRecordError {
			return stats, fmt.Errorf("%s: %w (%w)", src.Path(), ErrMultipleRecords, util.ErrParse)
		}

		if err := l.write(ctx, tx, rec); err != nil {
			return stats, atRecord(src.Path(), stats.Records, err)
		}
		stats.Written++

		// later lines are counted, never decoded
		if l.policy == MultiRecordFirst {
			break
		}
	}

	if stats.Records == 0 {
		return stats, &EmptyFileError{Path: src.Path()}
	}
	if l.policy == MultiRecordFirst {
		n, err := src.Count()
		if err != nil {
			return stats, err
		}
		if n > 1 {
			stats.Records = n
			util.WarnLog("%s holds %d records, only the first was loaded", src.Path(), n)
		}
	}
	return stats, nil
}

func (l *SongArtistLoader) write(ctx context.Context, tx store.Tx, rec extract.SongMetadata) error {
	song, artist := SongRows(rec)

	if err := l.stmts.Exec(ctx, tx, store.StmtArtistInsert,
		artist.ArtistID, artist.Name, artist.Location, artist.Longitude, artist.Latitude); err != nil {
		return err
	}
	return l.stmts.Exec(ctx, tx, store.StmtSongInsert,
		song.SongID, song.Title, song.ArtistID, song.Year, song.Duration)
}
