package load

import (
	"context"
	"errors"
	"testing"

	"github.com/franz/songplay-etl/internal/extract"
	"github.com/franz/songplay-etl/internal/store"
	"github.com/franz/songplay-etl/internal/util"
	"github.com/spf13/afero"
)

func TestSongRows(t *testing.T) {
	lat := 35.14968
	rec := extract.SongMetadata{
		SongID:         testSongID,
		Title:          testTitle,
		ArtistID:       testArtistID,
		ArtistName:     testArtist,
		ArtistLocation: "Memphis, TN",
		ArtistLatitude: &lat,
		Year:           1982,
		Duration:       testDuration,
	}

	song, artist := SongRows(rec)

	if song.SongID != testSongID || song.ArtistID != testArtistID || song.Year != 1982 || song.Duration != testDuration {
		t.Errorf("unexpected song row: %+v", song)
	}
	if artist.ArtistID != testArtistID || artist.Name != testArtist || artist.Location != "Memphis, TN" {
		t.Errorf("unexpected artist row: %+v", artist)
	}
	if artist.Latitude == nil || *artist.Latitude != lat {
		t.Errorf("expected latitude %v, got %v", lat, artist.Latitude)
	}
	if artist.Longitude != nil {
		t.Errorf("expected nil longitude, got %v", *artist.Longitude)
	}
}

func TestSongArtistLoaderPolicies(t *testing.T) {
	tests := []struct {
		name       string
		policy     MultiRecordPolicy
		lines      int
		wantErr    error
		wantSongs  int
		wantRecord int
	}{
		{"single record", MultiRecordFirst, 1, nil, 1, 1},
		{"first of many", MultiRecordFirst, 3, nil, 1, 3},
		{"all records", MultiRecordAll, 3, nil, 3, 3},
		{"reject many", MultiRecordError, 3, util.ErrParse, 0, 2},
		{"empty file", MultiRecordFirst, 0, util.ErrEmptyFile, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			db := openTestStore(t)
			fs := afero.NewMemMapFs()
			stmts := store.NewStatements(db.Dialect(), store.ConflictReplace)

			var lines []string
			for i := 0; i < tt.lines; i++ {
				id := string(rune('A' + i))
				lines = append(lines, songLine(t, "SO"+id, "Title "+id, "AR"+id, "Artist "+id, 100+float64(i)))
			}
			if len(lines) == 0 {
				lines = []string{""}
			}
			writeFile(t, fs, "/song_data/a.json", lines...)

			loader := NewSongArtistLoader(stmts, tt.policy)
			var stats FileStats
			err := withTx(t, db, func(tx store.Tx) error {
				var err error
				stats, err = loader.Load(ctx, tx, extract.Songs(fs, "/song_data/a.json"))
				return err
			})

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if !util.IsContained(err) {
					t.Errorf("expected a contained error, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if stats.Records != tt.wantRecord {
				t.Errorf("expected %d records read, got %d", tt.wantRecord, stats.Records)
			}
			if got := countRows(t, db, "songs"); got != tt.wantSongs {
				t.Errorf("expected %d songs, got %d", tt.wantSongs, got)
			}
			if got := countRows(t, db, "artists"); got != tt.wantSongs {
				t.Errorf("expected %d artists, got %d", tt.wantSongs, got)
			}
		})
	}
}

func TestFirstPolicyIgnoresLaterLines(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)
	fs := afero.NewMemMapFs()
	stmts := store.NewStatements(db.Dialect(), store.ConflictReplace)

	writeFile(t, fs, "/song_data/a.json",
		songLine(t, testSongID, testTitle, testArtistID, testArtist, testDuration),
		`{"song_id": "SOB", "title":`,
	)

	var stats FileStats
	err := withTx(t, db, func(tx store.Tx) error {
		var err error
		stats, err = NewSongArtistLoader(stmts, MultiRecordFirst).Load(ctx, tx, extract.Songs(fs, "/song_data/a.json"))
		return err
	})
	if err != nil {
		t.Fatalf("a malformed second line must not reject the file: %v", err)
	}
	if stats.Records != 2 || stats.Written != 1 {
		t.Errorf("expected 2 records read and 1 written, got %+v", stats)
	}
	if got := countRows(t, db, "songs"); got != 1 {
		t.Errorf("expected 1 song, got %d", got)
	}

	err = withTx(t, db, func(tx store.Tx) error {
		_, err := NewSongArtistLoader(stmts, MultiRecordAll).Load(ctx, tx, extract.Songs(fs, "/song_data/a.json"))
		return err
	})
	if !errors.Is(err, util.ErrParse) {
		t.Errorf("expected a parse error when loading all records, got %v", err)
	}
}

func TestEmptyFileError(t *testing.T) {
	err := error(&EmptyFileError{Path: "song_data/empty.json"})
	if !errors.Is(err, util.ErrEmptyFile) {
		t.Error("EmptyFileError should match ErrEmptyFile")
	}
	if err.Error() != "song_data/empty.json: no records" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestParseMultiRecordPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    MultiRecordPolicy
		wantErr bool
	}{
		{"", MultiRecordFirst, false},
		{"first", MultiRecordFirst, false},
		{" ALL ", MultiRecordAll, false},
		{"error", MultiRecordError, false},
		{"last", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMultiRecordPolicy(tt.in)
		if tt.wantErr {
			if !errors.Is(err, util.ErrInvalidConfig) {
				t.Errorf("ParseMultiRecordPolicy(%q): expected ErrInvalidConfig, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMultiRecordPolicy(%q) = %q, %v; expected %q", tt.in, got, err, tt.want)
		}
	}
}
