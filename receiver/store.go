package receiver

import (
	"database/sql"
	"time"

	"github.com/jd3nn1s/parrotfwd"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	received_at  TEXT    NOT NULL,
	timestamp_us INTEGER NOT NULL,
	roll         REAL    NOT NULL,
	pitch        REAL    NOT NULL,
	heading      REAL    NOT NULL,
	gps_fixed    INTEGER NOT NULL,
	latitude     REAL,
	longitude    REAL,
	altitude     REAL
);
CREATE INDEX IF NOT EXISTS idx_samples_timestamp ON samples (timestamp_us);
`

const insertSample = `
INSERT INTO samples (received_at, timestamp_us, roll, pitch, heading, gps_fixed, latitude, longitude, altitude)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Store archives decoded samples to sqlite, one row per packet. GPS columns
// are NULL for samples without a fix.
type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open database %s", path)
	}
	// a single writer connection; also keeps :memory: databases coherent
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "unable to create schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(receivedAt time.Time, t parrotfwd.Telemetry) error {
	var lat, lon, alt sql.NullFloat64
	if t.GPSFixed {
		lat = sql.NullFloat64{Float64: t.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: t.Longitude, Valid: true}
		alt = sql.NullFloat64{Float64: t.Altitude, Valid: true}
	}
	_, err := s.db.Exec(insertSample,
		receivedAt.UTC().Format(time.RFC3339Nano),
		int64(t.TimestampUS),
		t.Roll, t.Pitch, t.Heading,
		t.GPSFixed,
		lat, lon, alt)
	return errors.Wrap(err, "unable to insert sample")
}

// Count returns the number of archived samples.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM samples`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "unable to count samples")
	}
	return n, nil
}

// Last returns the most recently inserted sample.
func (s *Store) Last() (parrotfwd.Telemetry, error) {
	var t parrotfwd.Telemetry
	var ts int64
	var lat, lon, alt sql.NullFloat64
	row := s.db.QueryRow(`
SELECT timestamp_us, roll, pitch, heading, gps_fixed, latitude, longitude, altitude
FROM samples ORDER BY id DESC LIMIT 1`)
	if err := row.Scan(&ts, &t.Roll, &t.Pitch, &t.Heading, &t.GPSFixed, &lat, &lon, &alt); err != nil {
		return t, errors.Wrap(err, "unable to read last sample")
	}
	t.TimestampUS = uint64(ts)
	if t.GPSFixed {
		t.Latitude = lat.Float64
		t.Longitude = lon.Float64
		t.Altitude = alt.Float64
	}
	return t, nil
}
