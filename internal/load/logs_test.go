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

func TestPlaybacksFilter(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/log_data/events.json",
		homeLine(t, 1541105830796),
		logLine(t, playback{1541106106796, "8", "free", "Lonely", "Des'ree", 246.30812}),
		homeLine(t, 1541106132796),
		logLine(t, playback{1541106352796, "8", "free", "Ni Ni", "Mr Oizo", 144.87465}),
	)

	src := extract.Logs(fs, "/log_data/events.json")

	// two passes over the same file see the same playbacks
	for pass := 1; pass <= 2; pass++ {
		var got []Playback
		for p, err := range Playbacks(src) {
			if err != nil {
				t.Fatalf("pass %d: %v", pass, err)
			}
			got = append(got, p)
		}
		if len(got) != 2 {
			t.Fatalf("pass %d: expected 2 playbacks, got %d", pass, len(got))
		}
		if got[0].Record != 2 || got[1].Record != 4 {
			t.Errorf("pass %d: expected records 2 and 4, got %d and %d", pass, got[0].Record, got[1].Record)
		}
		if got[0].Start.Location().String() != "UTC" || got[0].Start.UnixMilli() != 1541106106796 {
			t.Errorf("pass %d: unexpected start %v", pass, got[0].Start)
		}
	}
}

func TestPlaybacksStopsOnParseError(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/log_data/events.json",
		logLine(t, playback{1541106106796, "8", "free", "Lonely", "Des'ree", 246.30812}),
		`{"page": "NextSong", "ts": `,
	)

	var n int
	var lastErr error
	for _, err := range Playbacks(extract.Logs(fs, "/log_data/events.json")) {
		if err != nil {
			lastErr = err
			break
		}
		n++
	}

	if n != 1 {
		t.Errorf("expected 1 playback before the error, got %d", n)
	}
	var pe *extract.ParseError
	if !errors.As(lastErr, &pe) || pe.Line != 2 {
		t.Errorf("expected ParseError on line 2, got %v", lastErr)
	}
}

func TestDeriveDimensions(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/log_data/events.json",
		logLine(t, playback{1000, "8", "free", "A", "X", 1}),
		logLine(t, playback{2000, "9", "free", "B", "Y", 2}),
		homeLine(t, 2500),
		logLine(t, playback{2000, "9", "free", "C", "Z", 3}),
		logLine(t, playback{3000, "8", "paid", "D", "W", 4}),
	)

	dims, err := DeriveDimensions(extract.Logs(fs, "/log_data/events.json"))
	if err != nil {
		t.Fatalf("DeriveDimensions failed: %v", err)
	}

	if dims.Records != 5 || dims.Playbacks != 4 {
		t.Errorf("expected 5 records and 4 playbacks, got %d and %d", dims.Records, dims.Playbacks)
	}

	if len(dims.Times) != 3 {
		t.Fatalf("expected 3 distinct timestamps, got %d", len(dims.Times))
	}
	for i, want := range []int64{1000, 2000, 3000} {
		if got := dims.Times[i].StartTime.UnixMilli(); got != want {
			t.Errorf("time %d: expected %d, got %d", i, want, got)
		}
	}

	// user 9 was last seen before user 8
	if len(dims.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(dims.Users))
	}
	if dims.Users[0].UserID != 9 || dims.Users[1].UserID != 8 {
		t.Errorf("expected users ordered by last appearance [9 8], got [%d %d]", dims.Users[0].UserID, dims.Users[1].UserID)
	}
	if dims.Users[1].Level != extract.LevelPaid {
		t.Errorf("expected last level 'paid' for user 8, got %q", dims.Users[1].Level)
	}
}

func TestLogTransformerLoad(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)
	fs := afero.NewMemMapFs()
	stmts := store.NewStatements(db.Dialect(), store.ConflictReplace)

	writeFile(t, fs, "/log_data/events.json",
		logLine(t, playback{1541106106796, "8", "free", "A", "X", 1}),
		logLine(t, playback{1541106106796, "8", "free", "B", "Y", 2}),
		logLine(t, playback{1541106352796, "8", "paid", "C", "Z", 3}),
	)

	err := withTx(t, db, func(tx store.Tx) error {
		_, err := NewLogTransformer(stmts).Load(ctx, tx, extract.Logs(fs, "/log_data/events.json"))
		return err
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := countRows(t, db, "time"); got != 2 {
		t.Errorf("expected 2 time rows, got %d", got)
	}
	if got := countRows(t, db, "users"); got != 1 {
		t.Errorf("expected 1 user, got %d", got)
	}
	var level string
	if err := db.QueryRow(ctx, "SELECT level FROM users WHERE user_id = 8").Scan(&level); err != nil {
		t.Fatalf("failed to read level: %v", err)
	}
	if level != "paid" {
		t.Errorf("expected level 'paid', got %q", level)
	}
}

func TestLogTransformerParseError(t *testing.T) {
	db := openTestStore(t)
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/log_data/events.json",
		logLine(t, playback{1000, "8", "free", "A", "X", 1}),
		`{"page": "NextSong", "ts": 2000, "userId": "8", "level": "gold", "song": "B", "artist": "Y", "length": 2}`,
	)

	err := withTx(t, db, func(tx store.Tx) error {
		_, err := NewLogTransformer(store.NewStatements(db.Dialect(), store.ConflictReplace)).
			Load(context.Background(), tx, extract.Logs(fs, "/log_data/events.json"))
		return err
	})

	if !errors.Is(err, util.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if got := countRows(t, db, "time"); got != 0 {
		t.Errorf("expected nothing written, got %d time rows", got)
	}
}
