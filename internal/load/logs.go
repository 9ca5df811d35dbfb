package load

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/franz/songplay-etl/internal/extract"
	"github.com/franz/songplay-etl/internal/store"
)

// Playback is a NextSong event with its timestamp converted to a UTC instant
type Playback struct {
	Record    int // 1-based position in the source file
	Start     time.Time
	UserID    int64
	FirstName string
	LastName  string
	Gender    string
	Level     string
	Song      string
	Artist    string
	Length    float64
	SessionID int64
	Location  string
	UserAgent string
}

// User returns the users row carried by the playback
func (p Playback) User() store.UserRecord {
	return store.UserRecord{
		UserID:    p.UserID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Gender:    p.Gender,
		Level:     p.Level,
	}
}

func newPlayback(record int, ev extract.LogEvent) Playback {
	return Playback{
		Record:    record,
		Start:     ev.Time(),
		UserID:    ev.UserID,
		FirstName: ev.FirstName,
		LastName:  ev.LastName,
		Gender:    ev.Gender,
		Level:     ev.Level,
		Song:      ev.Song,
		Artist:    ev.Artist,
		Length:    ev.Length,
		SessionID: ev.SessionID,
		Location:  ev.Location,
		UserAgent: ev.UserAgent,
	}
}

// Playbacks filters src down to NextSong events.
// The sequence is restartable because src is.
func Playbacks(src *extract.Source[extract.LogEvent]) iter.Seq2[Playback, error] {
	return func(yield func(Playback, error) bool) {
		record := 0
		for ev, err := range src.All() {
			if err != nil {
				yield(Playback{}, err)
				return
			}
			record++
			if !ev.IsPlayback() {
				continue
			}
			if !yield(newPlayback(record, ev), nil) {
				return
			}
		}
	}
}

// Dimensions are the time and users rows derived from one log file
type Dimensions struct {
	Records   int
	Playbacks int
	Times     []store.TimeRecord // unique by StartTime, first-seen order
	Users     []store.UserRecord // one per user, ordered by last appearance

	// source record of each row, for error positions
	timeAt []int
	userAt []int
}

// DeriveDimensions reads the whole file once and collects its dimension rows.
// A user seen several times keeps the values of its last event.
func DeriveDimensions(src *extract.Source[extract.LogEvent]) (*Dimensions, error) {
	dims := &Dimensions{}
	seenTimes := make(map[int64]struct{})
	users := make(map[int64]store.UserRecord)
	lastSeen := make(map[int64]int)

	for ev, err := range src.All() {
		if err != nil {
			return nil, err
		}
		dims.Records++
		if !ev.IsPlayback() {
			continue
		}
		dims.Playbacks++

		if _, ok := seenTimes[ev.Ts]; !ok {
			seenTimes[ev.Ts] = struct{}{}
			dims.Times = append(dims.Times, store.NewTimeRecord(ev.Time()))
			dims.timeAt = append(dims.timeAt, dims.Records)
		}

		p := newPlayback(dims.Records, ev)
		users[p.UserID] = p.User()
		lastSeen[p.UserID] = dims.Records
	}

	dims.Users = make([]store.UserRecord, 0, len(users))
	for _, u := range users {
		dims.Users = append(dims.Users, u)
	}
	sort.Slice(dims.Users, func(i, j int) bool {
		return lastSeen[dims.Users[i].UserID] < lastSeen[dims.Users[j].UserID]
	})
	dims.userAt = make([]int, len(dims.Users))
	for i, u := range dims.Users {
		dims.userAt[i] = lastSeen[u.UserID]
	}

	return dims, nil
}

// LogTransformer writes the time and users dimensions of activity-log files
type LogTransformer struct {
	stmts *store.Statements
}

// NewLogTransformer creates a transformer bound to a statement set
func NewLogTransformer(stmts *store.Statements) *LogTransformer {
	return &LogTransformer{stmts: stmts}
}

// Load derives the dimension rows of src and writes them inside tx
func (t *LogTransformer) Load(ctx context.Context, tx store.Tx, src *extract.Source[extract.LogEvent]) (*Dimensions, error) {
	dims, err := DeriveDimensions(src)
	if err != nil {
		return nil, err
	}

	for i, tr := range dims.Times {
		err := t.stmts.Exec(ctx, tx, store.StmtTimeInsert,
			tr.StartTime, tr.Hour, tr.Day, tr.Week, tr.Month, tr.Year, tr.Weekday)
		if err != nil {
			return nil, atRecord(src.Path(), dims.timeAt[i], fmt.Errorf("time %s: %w", tr.StartTime.Format(time.RFC3339Nano), err))
		}
	}

	for i, u := range dims.Users {
		err := t.stmts.Exec(ctx, tx, store.StmtUserInsert,
			u.UserID, u.FirstName, u.LastName, u.Gender, u.Level)
		if err != nil {
			return nil, atRecord(src.Path(), dims.userAt[i], fmt.Errorf("user %d: %w", u.UserID, err))
		}
	}

	return dims, nil
}
