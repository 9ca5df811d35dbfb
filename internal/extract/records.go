package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PageNextSong marks an activity-log record that represents a playback
const PageNextSong = "NextSong"

// Subscription levels
const (
	LevelFree = "free"
	LevelPaid = "paid"
)

// SongMetadata is one record of a song-metadata file
type SongMetadata struct {
	SongID          string
	Title           string
	ArtistID        string
	ArtistName      string
	ArtistLocation  string
	ArtistLongitude *float64
	ArtistLatitude  *float64
	Year            int
	Duration        float64
}

// LogEvent is one record of an activity-log file.
// Playback fields (UserID, Level, Song, Artist, Length) are only
// guaranteed for NextSong events.
type LogEvent struct {
	Page      string
	Ts        int64 // milliseconds since the Unix epoch
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

// IsPlayback reports whether the event is a NextSong event
func (e LogEvent) IsPlayback() bool {
	return e.Page == PageNextSong
}

// Time converts the epoch-millisecond timestamp to a UTC instant
func (e LogEvent) Time() time.Time {
	return time.UnixMilli(e.Ts).UTC()
}

type rawSong struct {
	SongID          *string  `json:"song_id"`
	Title           *string  `json:"title"`
	ArtistID        *string  `json:"artist_id"`
	ArtistName      *string  `json:"artist_name"`
	ArtistLocation  *string  `json:"artist_location"`
	ArtistLongitude *float64 `json:"artist_longitude"`
	ArtistLatitude  *float64 `json:"artist_latitude"`
	Year            flexInt  `json:"year"`
	Duration        *float64 `json:"duration"`
}

type rawLogEvent struct {
	Page      *string  `json:"page"`
	Ts        flexInt  `json:"ts"`
	UserID    flexInt  `json:"userId"`
	FirstName *string  `json:"firstName"`
	LastName  *string  `json:"lastName"`
	Gender    *string  `json:"gender"`
	Level     *string  `json:"level"`
	Song      *string  `json:"song"`
	Artist    *string  `json:"artist"`
	Length    *float64 `json:"length"`
	SessionID flexInt  `json:"sessionId"`
	Location  *string  `json:"location"`
	UserAgent *string  `json:"userAgent"`
}

// DecodeSong decodes and validates a song-metadata line
func DecodeSong(line []byte) (SongMetadata, error) {
	var raw rawSong
	if err := json.Unmarshal(line, &raw); err != nil {
		return SongMetadata{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var missing []string
	requireString(&missing, "song_id", raw.SongID)
	requireString(&missing, "title", raw.Title)
	requireString(&missing, "artist_id", raw.ArtistID)
	requireString(&missing, "artist_name", raw.ArtistName)
	if raw.Duration == nil {
		missing = append(missing, "duration")
	}
	if len(missing) > 0 {
		return SongMetadata{}, missingFields(missing)
	}

	return SongMetadata{
		SongID:          *raw.SongID,
		Title:           *raw.Title,
		ArtistID:        *raw.ArtistID,
		ArtistName:      *raw.ArtistName,
		ArtistLocation:  deref(raw.ArtistLocation),
		ArtistLongitude: raw.ArtistLongitude,
		ArtistLatitude:  raw.ArtistLatitude,
		Year:            int(raw.Year.v),
		Duration:        *raw.Duration,
	}, nil
}

// DecodeLogEvent decodes and validates an activity-log line
func DecodeLogEvent(line []byte) (LogEvent, error) {
	var raw rawLogEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return LogEvent{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var missing []string
	requireString(&missing, "page", raw.Page)
	if !raw.Ts.set {
		missing = append(missing, "ts")
	}
	if len(missing) > 0 {
		return LogEvent{}, missingFields(missing)
	}

	ev := LogEvent{
		Page:      *raw.Page,
		Ts:        raw.Ts.v,
		UserID:    raw.UserID.v,
		FirstName: deref(raw.FirstName),
		LastName:  deref(raw.LastName),
		Gender:    deref(raw.Gender),
		Level:     strings.ToLower(strings.TrimSpace(deref(raw.Level))),
		Song:      deref(raw.Song),
		Artist:    deref(raw.Artist),
		SessionID: raw.SessionID.v,
		Location:  deref(raw.Location),
		UserAgent: deref(raw.UserAgent),
	}
	if raw.Length != nil {
		ev.Length = *raw.Length
	}

	if !ev.IsPlayback() {
		return ev, nil
	}

	if !raw.UserID.set {
		missing = append(missing, "userId")
	}
	requireString(&missing, "song", raw.Song)
	requireString(&missing, "artist", raw.Artist)
	if raw.Length == nil {
		missing = append(missing, "length")
	}
	if len(missing) > 0 {
		return LogEvent{}, missingFields(missing)
	}
	if ev.Level != LevelFree && ev.Level != LevelPaid {
		return LogEvent{}, fmt.Errorf("invalid level %q (expected %q or %q)", deref(raw.Level), LevelFree, LevelPaid)
	}

	return ev, nil
}

func requireString(missing *[]string, name string, v *string) {
	if v == nil || strings.TrimSpace(*v) == "" {
		*missing = append(*missing, name)
	}
}

func missingFields(names []string) error {
	return fmt.Errorf("missing required field(s): %s", strings.Join(names, ", "))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// flexInt accepts integers encoded as JSON numbers or numeric strings.
// null and "" leave it unset.
type flexInt struct {
	v   int64
	set bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.v, f.set = n, true
		return nil
	}
	fl, err := strconv.ParseFloat(s, 64)
	if err != nil || fl != float64(int64(fl)) {
		return errors.New("expected an integer, got " + string(b))
	}
	f.v, f.set = int64(fl), true
	return nil
}
