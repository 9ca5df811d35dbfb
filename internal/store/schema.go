package store

// Migrations are applied in order; migrations[i] moves the schema to version i+1.

var sqliteMigrations = []string{
	// v1 - star schema
	`
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS artists (
  artist_id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  location TEXT,
  longitude REAL,
  latitude REAL
);

CREATE TABLE IF NOT EXISTS songs (
  song_id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  artist_id TEXT NOT NULL REFERENCES artists(artist_id),
  year INTEGER,
  duration REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_songs_title ON songs(title);
CREATE INDEX IF NOT EXISTS idx_artists_name ON artists(name);

CREATE TABLE IF NOT EXISTS users (
  user_id INTEGER PRIMARY KEY,
  first_name TEXT,
  last_name TEXT,
  gender TEXT,
  level TEXT NOT NULL CHECK (level IN ('free', 'paid'))
);

CREATE TABLE IF NOT EXISTS time (
  start_time TIMESTAMP PRIMARY KEY,
  hour INTEGER NOT NULL,
  day INTEGER NOT NULL,
  week INTEGER NOT NULL,
  month INTEGER NOT NULL,
  year INTEGER NOT NULL,
  weekday INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS songplays (
  songplay_id INTEGER PRIMARY KEY AUTOINCREMENT,
  start_time TIMESTAMP NOT NULL REFERENCES time(start_time),
  user_id INTEGER NOT NULL REFERENCES users(user_id),
  level TEXT NOT NULL,
  song_id TEXT REFERENCES songs(song_id),
  artist_id TEXT REFERENCES artists(artist_id),
  session_id INTEGER,
  location TEXT,
  user_agent TEXT
);

CREATE INDEX IF NOT EXISTS idx_songplays_start_time ON songplays(start_time);
CREATE INDEX IF NOT EXISTS idx_songplays_user_id ON songplays(user_id);
`,
	// v2 - load ledger
	`
CREATE TABLE IF NOT EXISTS load_files (
  path TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  content_hash TEXT,
  size_bytes INTEGER,
  records INTEGER,
  status TEXT NOT NULL,
  error TEXT,
  run_id TEXT,
  loaded_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_load_files_status ON load_files(status);
`,
}

var postgresMigrations = []string{
	// v1 - star schema
	`
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS artists (
  artist_id VARCHAR PRIMARY KEY,
  name VARCHAR NOT NULL,
  location VARCHAR,
  longitude DOUBLE PRECISION,
  latitude DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS songs (
  song_id VARCHAR PRIMARY KEY,
  title VARCHAR NOT NULL,
  artist_id VARCHAR NOT NULL REFERENCES artists(artist_id),
  year INTEGER,
  duration DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_songs_title ON songs(title);
CREATE INDEX IF NOT EXISTS idx_artists_name ON artists(name);

CREATE TABLE IF NOT EXISTS users (
  user_id BIGINT PRIMARY KEY,
  first_name VARCHAR,
  last_name VARCHAR,
  gender VARCHAR,
  level VARCHAR NOT NULL CHECK (level IN ('free', 'paid'))
);

CREATE TABLE IF NOT EXISTS time (
  start_time TIMESTAMP PRIMARY KEY,
  hour INTEGER NOT NULL,
  day INTEGER NOT NULL,
  week INTEGER NOT NULL,
  month INTEGER NOT NULL,
  year INTEGER NOT NULL,
  weekday INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS songplays (
  songplay_id BIGSERIAL PRIMARY KEY,
  start_time TIMESTAMP NOT NULL REFERENCES time(start_time),
  user_id BIGINT NOT NULL REFERENCES users(user_id),
  level VARCHAR NOT NULL,
  song_id VARCHAR REFERENCES songs(song_id),
  artist_id VARCHAR REFERENCES artists(artist_id),
  session_id BIGINT,
  location VARCHAR,
  user_agent VARCHAR
);

CREATE INDEX IF NOT EXISTS idx_songplays_start_time ON songplays(start_time);
CREATE INDEX IF NOT EXISTS idx_songplays_user_id ON songplays(user_id);
`,
	// v2 - load ledger
	`
CREATE TABLE IF NOT EXISTS load_files (
  path VARCHAR PRIMARY KEY,
  kind VARCHAR NOT NULL,
  content_hash VARCHAR,
  size_bytes BIGINT,
  records INTEGER,
  status VARCHAR NOT NULL,
  error VARCHAR,
  run_id VARCHAR,
  loaded_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_load_files_status ON load_files(status);
`,
}

// CurrentSchemaVersion is the version a freshly migrated database reports
var CurrentSchemaVersion = len(sqliteMigrations)

// Tables lists the tables the warehouse owns
var Tables = []string{"artists", "songs", "users", "time", "songplays", "load_files"}

func migrationsFor(d Dialect) []string {
	if d == DialectPostgres {
		return postgresMigrations
	}
	return sqliteMigrations
}
