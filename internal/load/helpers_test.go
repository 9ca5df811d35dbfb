package load

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/songplay-etl/internal/store"
	"github.com/spf13/afero"
)

// Setanta matins by Elena is the one playback in the sample data that resolves
const (
	testSongID   = "SOZCTXZ12AB0182364"
	testArtistID = "AR5KOSW1187FB35FF4"
	testTitle    = "Setanta matins"
	testArtist   = "Elena"
	testDuration = 269.58322
)

func openTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	db, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "warehouse.db"), nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db store.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}

func songLine(t *testing.T, songID, title, artistID, artistName string, duration float64) string {
	t.Helper()
	return jsonLine(t, map[string]any{
		"num_songs":        1,
		"artist_id":        artistID,
		"artist_latitude":  nil,
		"artist_longitude": nil,
		"artist_location":  "",
		"artist_name":      artistName,
		"song_id":          songID,
		"title":            title,
		"duration":         duration,
		"year":             0,
	})
}

type playback struct {
	ts     int64
	userID string
	level  string
	song   string
	artist string
	length float64
}

func logLine(t *testing.T, p playback) string {
	t.Helper()
	return jsonLine(t, map[string]any{
		"artist":        p.artist,
		"auth":          "Logged In",
		"firstName":     "Lily",
		"gender":        "F",
		"itemInSession": 0,
		"lastName":      "Koch",
		"length":        p.length,
		"level":         p.level,
		"location":      "Chicago-Naperville-Elgin, IL-IN-WI",
		"method":        "PUT",
		"page":          "NextSong",
		"sessionId":     818,
		"song":          p.song,
		"status":        200,
		"ts":            p.ts,
		"userAgent":     "Mozilla/5.0",
		"userId":        p.userID,
	})
}

func homeLine(t *testing.T, ts int64) string {
	t.Helper()
	return jsonLine(t, map[string]any{
		"artist":    nil,
		"auth":      "Logged In",
		"firstName": "Walter",
		"lastName":  "Frye",
		"level":     "free",
		"page":      "Home",
		"sessionId": 38,
		"song":      nil,
		"ts":        ts,
		"userId":    "39",
	})
}

func jsonLine(t *testing.T, v map[string]any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func writeFile(t *testing.T, fs afero.Fs, path string, lines ...string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func newTestLoader(t *testing.T, fs afero.Fs, db store.DB, policy store.ConflictPolicy) *Loader {
	t.Helper()
	l, err := New(Config{
		FS:         fs,
		DB:         db,
		Statements: store.NewStatements(db.Dialect(), policy),
		RunID:      "test-run",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l
}

func withTx(t *testing.T, db store.DB, fn func(store.Tx) error) error {
	t.Helper()
	ctx := context.Background()
	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
