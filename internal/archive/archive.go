// Package archive keeps finished skim reports in a local SQLite database so
// earlier sessions can be listed and re-rendered.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dshills/skim/internal/schema"
)

// ErrNotFound is returned by Get when no report has the requested session ID.
var ErrNotFound = errors.New("archive: report not found")

const createReports = `
CREATE TABLE IF NOT EXISTS reports (
	session_id       TEXT PRIMARY KEY,
	locator          TEXT NOT NULL,
	units            TEXT NOT NULL,
	total            INTEGER NOT NULL,
	profile          TEXT NOT NULL DEFAULT '',
	coverage_percent REAL NOT NULL,
	findings         INTEGER NOT NULL,
	limitations      INTEGER NOT NULL,
	generated_at     TEXT NOT NULL,
	report           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_generated_at ON reports(generated_at);`

// Entry is one row of the history listing.
type Entry struct {
	SessionID       string          `json:"session_id"`
	Locator         string          `json:"locator"`
	Units           schema.UnitKind `json:"units"`
	Total           int             `json:"total"`
	Profile         string          `json:"profile,omitempty"`
	CoveragePercent float64         `json:"coverage_percent"`
	Findings        int             `json:"findings"`
	Limitations     int             `json:"limitations"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// Store is a report archive backed by one SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("archive: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("archive: %s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, createReports); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores rep, replacing any earlier report with the same session ID.
func (s *Store) Save(ctx context.Context, rep *schema.Report) error {
	if rep.SessionID == "" {
		return fmt.Errorf("archive: save: report has no session id")
	}
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("archive: encode report: %w", err)
	}
	f := rep.Findings
	n := len(f.Verified) + len(f.Sampled) + len(f.Inferred) + len(f.Unknown)
	_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO reports
	(session_id, locator, units, total, profile, coverage_percent, findings, limitations, generated_at, report)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.SessionID, rep.Source.Locator, string(rep.Source.Units), rep.Source.Total, rep.Source.Profile,
		rep.Summary.CoveragePercent, n, len(rep.Limitations),
		rep.GeneratedAt.UTC().Format(time.RFC3339Nano), string(body))
	if err != nil {
		return fmt.Errorf("archive: save %s: %w", rep.SessionID, err)
	}
	return nil
}

// List returns up to limit entries, newest first. limit <= 0 lists all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	q := `SELECT session_id, locator, units, total, profile, coverage_percent, findings, limitations, generated_at
FROM reports ORDER BY generated_at DESC, session_id`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e     Entry
			units string
			ts    string
		)
		if err := rows.Scan(&e.SessionID, &e.Locator, &units, &e.Total, &e.Profile,
			&e.CoveragePercent, &e.Findings, &e.Limitations, &ts); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		e.Units = schema.UnitKind(units)
		if e.GeneratedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("archive: parse time %q: %w", ts, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return entries, nil
}

// Get loads the full report saved under id.
func (s *Store) Get(ctx context.Context, id string) (*schema.Report, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM reports WHERE session_id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get %s: %w", id, err)
	}
	var rep schema.Report
	if err := json.Unmarshal([]byte(body), &rep); err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", id, err)
	}
	return &rep, nil
}
