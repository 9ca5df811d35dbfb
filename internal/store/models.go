package store

import "time"

// SongRecord is a row of the songs dimension
type SongRecord struct {
	SongID   string
	Title    string
	ArtistID string
	Year     int
	Duration float64
}

// ArtistRecord is a row of the artists dimension
type ArtistRecord struct {
	ArtistID  string
	Name      string
	Location  string
	Longitude *float64
	Latitude  *float64
}

// UserRecord is a row of the users dimension
type UserRecord struct {
	UserID    int64
	FirstName string
	LastName  string
	Gender    string
	Level     string
}

// TimeRecord is a row of the time dimension, keyed by the playback instant
type TimeRecord struct {
	StartTime time.Time
	Hour      int
	Day       int // day of week, Monday = 0
	Week      int // ISO 8601 week number
	Month     int
	Year      int
	Weekday   int // Monday = 0
}

// NewTimeRecord derives every time-dimension attribute from an instant (in UTC)
func NewTimeRecord(t time.Time) TimeRecord {
	t = t.UTC()
	_, week := t.ISOWeek()
	weekday := (int(t.Weekday()) + 6) % 7

	return TimeRecord{
		StartTime: t,
		Hour:      t.Hour(),
		Day:       weekday,
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   weekday,
	}
}

// SongplayRecord is a row of the songplays fact table.
// SongID and ArtistID are nil when the playback could not be resolved.
type SongplayRecord struct {
	SongplayID int64
	StartTime  time.Time
	UserID     int64
	Level      string
	SongID     *string
	ArtistID   *string
	SessionID  int64
	Location   string
	UserAgent  string
}

// Resolved reports whether the playback matched a known song
func (r SongplayRecord) Resolved() bool {
	return r.SongID != nil && r.ArtistID != nil
}

// Ledger statuses
const (
	LoadStatusLoaded = "loaded"
	LoadStatusFailed = "failed"
)

// LoadedFile is a row of the load ledger
type LoadedFile struct {
	Path        string
	Kind        string
	ContentHash string
	SizeBytes   int64
	Records     int
	Status      string
	Error       string
	RunID       string
	LoadedAt    time.Time
}
