// Package telemetry implements a commit-history sidecar: an append-only,
// modernc.org/sqlite (pure Go, no cgo) log of every commit the segment
// updater performs, supplementing meta.json rather than replacing it as
// the durable source of truth. Open creates the schema; Store is a thin
// wrapper over *sql.DB, scaled down to the one table the updater's commit
// task needs.
package telemetry

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is an append-only record of commits, opstamp-ordered.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS commits (
	opstamp      INTEGER PRIMARY KEY,
	committed_at INTEGER NOT NULL,
	segment_count INTEGER NOT NULL,
	total_rows    INTEGER NOT NULL,
	payload       TEXT
);
`

// Open opens (creating if necessary) the sqlite database at path and
// ensures the commits table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordCommit appends one row describing a completed commit. This is an
// ancillary record: a failure here is the caller's to log and ignore — it
// must never fail the commit it is recording.
func (s *Store) RecordCommit(opstamp uint64, committedAtUnix int64, segmentCount, totalRows int, payload string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO commits (opstamp, committed_at, segment_count, total_rows, payload) VALUES (?, ?, ?, ?, ?)`,
		opstamp, committedAtUnix, segmentCount, totalRows, payload,
	)
	return err
}

// CommitRecord is one row of commit history.
type CommitRecord struct {
	Opstamp      uint64
	CommittedAt  int64
	SegmentCount int
	TotalRows    int
	Payload      string
}

// History returns every recorded commit, ascending by opstamp.
func (s *Store) History() ([]CommitRecord, error) {
	rows, err := s.db.Query(`SELECT opstamp, committed_at, segment_count, total_rows, payload FROM commits ORDER BY opstamp ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommitRecord
	for rows.Next() {
		var r CommitRecord
		var payload sql.NullString
		if err := rows.Scan(&r.Opstamp, &r.CommittedAt, &r.SegmentCount, &r.TotalRows, &payload); err != nil {
			return nil, err
		}
		r.Payload = payload.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestOpstamp returns the opstamp of the most recent commit, or
// ok=false if no commit has been recorded yet.
func (s *Store) LatestOpstamp() (opstamp uint64, ok bool, err error) {
	row := s.db.QueryRow(`SELECT opstamp FROM commits ORDER BY opstamp DESC LIMIT 1`)
	if err := row.Scan(&opstamp); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return opstamp, true, nil
}
