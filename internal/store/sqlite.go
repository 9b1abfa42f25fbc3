// Package store persists canonical hazard records, per-source watermarks,
// and run history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/hazard-data-pipeline/internal/domain"
)

// RecordFilter narrows QueryRecords results. Zero values mean "no filter".
type RecordFilter struct {
	Types  []domain.HazardType
	Since  time.Time
	Until  time.Time
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
	Limit  int
}

// SQLiteStore implements persistence using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS hazard_records (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	lat          REAL NOT NULL,
	lon          REAL NOT NULL,
	observed_at  DATETIME NOT NULL,
	severity     TEXT,
	magnitude    REAL,
	description  TEXT,
	address      TEXT,
	sources      TEXT NOT NULL,
	processed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS watermarks (
	source_id  TEXT PRIMARY KEY,
	watermark  DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	summary     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_hazard_records_observed_at ON hazard_records(observed_at);
CREATE INDEX IF NOT EXISTS idx_hazard_records_type ON hazard_records(type);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Commit applies one run's output atomically: merged records are upserted,
// superseded record IDs are removed, and source watermarks advance, all in a
// single transaction. Any failure rolls the whole run back and surfaces as a
// *domain.CommitError.
func (s *SQLiteStore) Commit(ctx context.Context, records []domain.HazardRecord, superseded []string, watermarks map[string]time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.CommitError{Err: eris.Wrap(err, "sqlite: begin")}
	}
	defer tx.Rollback()

	for _, id := range superseded {
		if _, err := tx.ExecContext(ctx, `DELETE FROM hazard_records WHERE id = ?`, id); err != nil {
			return &domain.CommitError{Err: eris.Wrapf(err, "sqlite: delete superseded %s", id)}
		}
	}

	for _, rec := range records {
		sourcesJSON, err := json.Marshal(rec.Sources)
		if err != nil {
			return &domain.CommitError{Err: eris.Wrapf(err, "sqlite: marshal sources for %s", rec.ID)}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO hazard_records
				(id, type, lat, lon, observed_at, severity, magnitude, description, address, sources, processed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				lat = excluded.lat,
				lon = excluded.lon,
				observed_at = excluded.observed_at,
				severity = excluded.severity,
				magnitude = excluded.magnitude,
				description = excluded.description,
				address = excluded.address,
				sources = excluded.sources,
				processed_at = excluded.processed_at`,
			rec.ID, string(rec.Type), rec.Lat, rec.Lon, rec.ObservedAt.UTC(),
			rec.Severity, rec.Magnitude, rec.Description, rec.Address,
			string(sourcesJSON), rec.ProcessedAt.UTC(),
		)
		if err != nil {
			return &domain.CommitError{Err: eris.Wrapf(err, "sqlite: upsert record %s", rec.ID)}
		}
	}

	now := domain.Now().UTC()
	for sourceID, watermark := range watermarks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO watermarks (source_id, watermark, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(source_id) DO UPDATE SET
				watermark = excluded.watermark,
				updated_at = excluded.updated_at`,
			sourceID, watermark.UTC(), now,
		)
		if err != nil {
			return &domain.CommitError{Err: eris.Wrapf(err, "sqlite: upsert watermark %s", sourceID)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &domain.CommitError{Err: eris.Wrap(err, "sqlite: commit")}
	}
	return nil
}

// GetRecord returns a record by ID, or nil when it does not exist.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*domain.HazardRecord, error) {
	row := s.db.QueryRowContext(ctx,
		recordColumns+` FROM hazard_records WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// QueryRecords returns committed records matching the filter, newest first.
func (s *SQLiteStore) QueryRecords(ctx context.Context, filter RecordFilter) ([]domain.HazardRecord, error) {
	query := recordColumns + ` FROM hazard_records WHERE 1=1`
	var args []any

	if len(filter.Types) > 0 {
		query += ` AND type IN (`
		for i, t := range filter.Types {
			if i > 0 {
				query += `,`
			}
			query += `?`
			args = append(args, string(t))
		}
		query += `)`
	}
	if !filter.Since.IsZero() {
		query += ` AND observed_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query += ` AND observed_at <= ?`
		args = append(args, filter.Until.UTC())
	}
	if filter.MinLat != 0 || filter.MaxLat != 0 {
		query += ` AND lat BETWEEN ? AND ?`
		args = append(args, filter.MinLat, filter.MaxLat)
	}
	if filter.MinLon != 0 || filter.MaxLon != 0 {
		query += ` AND lon BETWEEN ? AND ?`
		args = append(args, filter.MinLon, filter.MaxLon)
	}
	query += ` ORDER BY observed_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query records")
	}
	defer rows.Close()

	var records []domain.HazardRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: query records iterate")
}

// RecordsInWindow returns committed records observed at or after the cutoff.
// New batches load these so fresh reports merge with already-committed
// hazards.
func (s *SQLiteStore) RecordsInWindow(ctx context.Context, cutoff time.Time) ([]domain.HazardRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		recordColumns+` FROM hazard_records WHERE observed_at >= ? ORDER BY observed_at, id`,
		cutoff.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: records in window")
	}
	defer rows.Close()

	var records []domain.HazardRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: records in window iterate")
}

// Watermarks returns the high-water mark per source from previous runs.
func (s *SQLiteStore) Watermarks(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id, watermark FROM watermarks`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: watermarks")
	}
	defer rows.Close()

	marks := make(map[string]time.Time)
	for rows.Next() {
		var sourceID string
		var watermark time.Time
		if err := rows.Scan(&sourceID, &watermark); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan watermark")
		}
		marks[sourceID] = watermark.UTC()
	}
	return marks, eris.Wrap(rows.Err(), "sqlite: watermarks iterate")
}

// RecordRun appends a run summary to the run history.
func (s *SQLiteStore) RecordRun(ctx context.Context, summary domain.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run summary")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, state, started_at, finished_at, summary) VALUES (?, ?, ?, ?, ?)`,
		summary.RunID, string(summary.State), summary.StartedAt.UTC(), summary.FinishedAt.UTC(),
		string(summaryJSON),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", summary.RunID)
}

// LastRun returns the most recently started run, or nil when none exist.
func (s *SQLiteStore) LastRun(ctx context.Context) (*domain.RunSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT summary FROM runs ORDER BY started_at DESC LIMIT 1`)

	var summaryJSON string
	err := row.Scan(&summaryJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last run")
	}

	var summary domain.RunSummary
	if err := json.Unmarshal([]byte(summaryJSON), &summary); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run summary")
	}
	return &summary, nil
}

// helpers

const recordColumns = `SELECT id, type, lat, lon, observed_at, severity, magnitude, description, address, sources, processed_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (domain.HazardRecord, error) {
	var rec domain.HazardRecord
	var hazardType, sourcesJSON string

	err := row.Scan(&rec.ID, &hazardType, &rec.Lat, &rec.Lon, &rec.ObservedAt,
		&rec.Severity, &rec.Magnitude, &rec.Description, &rec.Address,
		&sourcesJSON, &rec.ProcessedAt)
	if err == sql.ErrNoRows {
		return domain.HazardRecord{}, err
	}
	if err != nil {
		return domain.HazardRecord{}, eris.Wrap(err, "sqlite: scan record")
	}

	rec.Type = domain.HazardType(hazardType)
	rec.ObservedAt = rec.ObservedAt.UTC()
	rec.ProcessedAt = rec.ProcessedAt.UTC()
	if err := json.Unmarshal([]byte(sourcesJSON), &rec.Sources); err != nil {
		return domain.HazardRecord{}, eris.Wrap(err, "sqlite: unmarshal sources")
	}
	return rec, nil
}
