package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/franz/songplay-etl/internal/util"
)

// ConflictPolicy decides what a dimension insert does when the key already exists
type ConflictPolicy string

const (
	// ConflictReplace overwrites the stored row (upsert)
	ConflictReplace ConflictPolicy = "replace"
	// ConflictIgnore keeps the stored row
	ConflictIgnore ConflictPolicy = "ignore"
	// ConflictError issues a plain insert; a duplicate key is a StorageError
	ConflictError ConflictPolicy = "error"
)

// ParseConflictPolicy validates a policy name from configuration
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ConflictReplace, ConflictIgnore, ConflictError:
		return p, nil
	case "":
		return ConflictReplace, nil
	}
	return "", fmt.Errorf("%w: unknown conflict policy %q (expected replace, ignore or error)", util.ErrInvalidConfig, s)
}

// Statement names
const (
	StmtSongInsert     = "song_insert"
	StmtArtistInsert   = "artist_insert"
	StmtUserInsert     = "user_insert"
	StmtTimeInsert     = "time_insert"
	StmtSongplayInsert = "songplay_insert"
	StmtSongSelect     = "song_select"
	StmtLedgerUpsert   = "ledger_upsert"
	StmtLedgerSelect   = "ledger_select"
)

// Statements is the named set of SQL templates the loaders execute.
// Templates are written with ? placeholders and rebound for the dialect.
type Statements struct {
	dialect   Dialect
	policy    ConflictPolicy
	templates map[string]string
}

// NewStatements builds the statement set for a dialect and conflict policy
func NewStatements(dialect Dialect, policy ConflictPolicy) *Statements {
	s := &Statements{
		dialect:   dialect,
		policy:    policy,
		templates: make(map[string]string),
	}

	s.set(StmtArtistInsert, insertSQL("artists",
		[]string{"artist_id", "name", "location", "longitude", "latitude"},
		[]string{"artist_id"}, policy))

	s.set(StmtSongInsert, insertSQL("songs",
		[]string{"song_id", "title", "artist_id", "year", "duration"},
		[]string{"song_id"}, policy))

	s.set(StmtUserInsert, insertSQL("users",
		[]string{"user_id", "first_name", "last_name", "gender", "level"},
		[]string{"user_id"}, policy))

	// A time row is fully determined by its key, so replacing and
	// ignoring are the same thing.
	timePolicy := ConflictIgnore
	if policy == ConflictError {
		timePolicy = ConflictError
	}
	s.set(StmtTimeInsert, insertSQL("time",
		[]string{"start_time", "hour", "day", "week", "month", "year", "weekday"},
		[]string{"start_time"}, timePolicy))

	s.set(StmtSongplayInsert, `INSERT INTO songplays
		(start_time, user_id, level, song_id, artist_id, session_id, location, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING songplay_id`)

	s.set(StmtSongSelect, `SELECT s.song_id, a.artist_id
		FROM songs s
		JOIN artists a ON a.artist_id = s.artist_id
		WHERE s.title = ? AND a.name = ? AND s.duration = ?
		ORDER BY s.song_id
		LIMIT 1`)

	// The ledger always records the latest attempt for a path.
	s.set(StmtLedgerUpsert, insertSQL("load_files",
		[]string{"path", "kind", "content_hash", "size_bytes", "records", "status", "error", "run_id", "loaded_at"},
		[]string{"path"}, ConflictReplace))

	s.set(StmtLedgerSelect, `SELECT content_hash, status FROM load_files WHERE path = ?`)

	return s
}

// Dialect returns the dialect the templates are bound for
func (s *Statements) Dialect() Dialect {
	return s.dialect
}

// Policy returns the conflict policy the dimension inserts use
func (s *Statements) Policy() ConflictPolicy {
	return s.policy
}

// Get returns the bound SQL of a named statement
func (s *Statements) Get(name string) (string, error) {
	q, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown statement %q", util.ErrInvalidConfig, name)
	}
	return q, nil
}

// Names lists the statement names in sorted order
func (s *Statements) Names() []string {
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Override replaces templates by name. Unknown names are rejected so a
// typo in the config file does not silently fall back to the default.
func (s *Statements) Override(templates map[string]string) error {
	for name, q := range templates {
		if _, ok := s.templates[name]; !ok {
			return fmt.Errorf("%w: cannot override unknown statement %q", util.ErrInvalidConfig, name)
		}
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("%w: statement %q is empty", util.ErrInvalidConfig, name)
		}
		s.set(name, q)
	}
	return nil
}

// Exec runs a named write statement
func (s *Statements) Exec(ctx context.Context, tx Tx, name string, args ...any) error {
	q, err := s.Get(name)
	if err != nil {
		return err
	}
	return wrapStorage(name, tx.Exec(ctx, q, args...))
}

// Scan runs a named single-row statement and scans the result into dest.
// It returns ErrNoRows unwrapped when nothing matched.
func (s *Statements) Scan(ctx context.Context, q Querier, name string, args []any, dest ...any) error {
	query, err := s.Get(name)
	if err != nil {
		return err
	}
	return wrapStorage(name, q.QueryRow(ctx, query, args...).Scan(dest...))
}

func (s *Statements) set(name, q string) {
	s.templates[name] = Rebind(s.dialect, q)
}

// insertSQL renders an INSERT with the conflict clause for policy
func insertSQL(table string, cols, keys []string, policy ConflictPolicy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders(len(cols)))

	switch policy {
	case ConflictIgnore:
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO NOTHING", strings.Join(keys, ", "))
	case ConflictReplace:
		isKey := make(map[string]bool, len(keys))
		for _, k := range keys {
			isKey[k] = true
		}
		var sets []string
		for _, c := range cols {
			if !isKey[c] {
				sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
			}
		}
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(keys, ", "), strings.Join(sets, ", "))
	}

	return b.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Rebind converts ? placeholders to the dialect's bind syntax.
// Question marks inside single-quoted literals are left alone.
func Rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			fmt.Fprintf(&b, "$%d", n)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
