// Package state persists run history and the analysis chosen per country and
// year in a SQLite database.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/woozymasta/ipcareas/internal/analysis"
	"github.com/woozymasta/ipcareas/internal/geo"

	_ "modernc.org/sqlite"
)

// Run is one loader invocation.
type Run struct {
	ID         string
	ReleaseTag string
	StartedAt  time.Time
	FinishedAt *time.Time
	Successful int
	Failed     int
}

// SelectionRecord is the analysis chosen for a country and year.
type SelectionRecord struct {
	ISO3         string
	Year         int
	Selection    analysis.Selection
	FeatureCount int
	RecordedAt   time.Time
}

// Store wraps the state database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	release_tag TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	successful  INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS analysis_selections (
	iso3                  TEXT NOT NULL,
	year                  INTEGER NOT NULL,
	analysis_id           TEXT NOT NULL,
	analysis_label        TEXT NOT NULL,
	from_date             TEXT NOT NULL,
	to_date               TEXT NOT NULL,
	updated_at            TEXT NOT NULL,
	published_at          TEXT NOT NULL,
	bucket_key            TEXT NOT NULL,
	covers_current_period INTEGER NOT NULL,
	feature_count         INTEGER NOT NULL,
	recorded_at           INTEGER NOT NULL,
	PRIMARY KEY (iso3, year)
);`

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records the start of a run.
func (s *Store) StartRun(ctx context.Context, id, releaseTag string, started time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, release_tag, started_at) VALUES (?, ?, ?)`,
		id, releaseTag, started.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("start run %s: %w", id, err)
	}
	return nil
}

// FinishRun stores the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, id string, finished time.Time, successful, failed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, successful = ?, failed = ? WHERE run_id = ?`,
		finished.UTC().Unix(), successful, failed, id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// Run returns a recorded run.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, release_tag, started_at, finished_at, successful, failed FROM runs WHERE run_id = ?`, id,
	).Scan(&r.ID, &r.ReleaseTag, &started, &finished, &r.Successful, &r.Failed)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}

	r.StartedAt = time.Unix(started, 0).UTC()
	if finished.Valid {
		t := time.Unix(finished.Int64, 0).UTC()
		r.FinishedAt = &t
	}
	return r, nil
}

// RecordSelection stores the analysis chosen for a country and year,
// replacing an earlier record.
func (s *Store) RecordSelection(ctx context.Context, rec SelectionRecord) error {
	fields, err := encodeValues(
		rec.Selection.AnalysisID,
		rec.Selection.AnalysisLabel,
		rec.Selection.FromDate,
		rec.Selection.ToDate,
		rec.Selection.UpdatedAt,
		rec.Selection.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("record selection %s/%d: %w", rec.ISO3, rec.Year, err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO analysis_selections
		(iso3, year, analysis_id, analysis_label, from_date, to_date, updated_at, published_at,
		 bucket_key, covers_current_period, feature_count, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ISO3, rec.Year, fields[0], fields[1], fields[2], fields[3], fields[4], fields[5],
		rec.Selection.BucketKey, rec.Selection.CoversCurrentPeriod, rec.FeatureCount, rec.RecordedAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record selection %s/%d: %w", rec.ISO3, rec.Year, err)
	}
	return nil
}

// Selection returns the stored selection for a country and year.
func (s *Store) Selection(ctx context.Context, iso3 string, year int) (SelectionRecord, bool, error) {
	var (
		rec      SelectionRecord
		fields   [6]string
		recorded int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT iso3, year, analysis_id, analysis_label, from_date, to_date,
		updated_at, published_at, bucket_key, covers_current_period, feature_count, recorded_at
		FROM analysis_selections WHERE iso3 = ? AND year = ?`, iso3, year,
	).Scan(&rec.ISO3, &rec.Year, &fields[0], &fields[1], &fields[2], &fields[3], &fields[4], &fields[5],
		&rec.Selection.BucketKey, &rec.Selection.CoversCurrentPeriod, &rec.FeatureCount, &recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return SelectionRecord{}, false, nil
	}
	if err != nil {
		return SelectionRecord{}, false, fmt.Errorf("get selection %s/%d: %w", iso3, year, err)
	}

	values := []*geo.Value{
		&rec.Selection.AnalysisID,
		&rec.Selection.AnalysisLabel,
		&rec.Selection.FromDate,
		&rec.Selection.ToDate,
		&rec.Selection.UpdatedAt,
		&rec.Selection.PublishedAt,
	}
	for i, v := range values {
		if err := json.Unmarshal([]byte(fields[i]), v); err != nil {
			return SelectionRecord{}, false, fmt.Errorf("decode selection %s/%d: %w", iso3, year, err)
		}
	}
	rec.RecordedAt = time.Unix(recorded, 0).UTC()

	return rec, true, nil
}

// encodeValues stores values as JSON so numbers and strings keep their kind.
func encodeValues(values ...geo.Value) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out = append(out, string(data))
	}
	return out, nil
}
