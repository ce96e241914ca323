package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-cog-pipeline/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run id is unknown
var ErrNotFound = errors.New("run not found")

var db *sql.DB

// Initialize DB connection
func InitDB(dbPath string) error {
	var err error
	db, err = sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}

	// Create tables if not exists
	runTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		spec TEXT,
		status TEXT,
		submitted INTEGER DEFAULT 0,
		succeeded INTEGER DEFAULT 0,
		dropped INTEGER DEFAULT 0,
		error_message TEXT DEFAULT '',
		created_at DATETIME,
		updated_at DATETIME
	);
	`
	sampleTable := `
	CREATE TABLE IF NOT EXISTS run_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		item_id TEXT,
		label TEXT,
		value REAL
	);
	`
	failureTable := `
	CREATE TABLE IF NOT EXISTS run_failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		item_id TEXT,
		label TEXT,
		kind TEXT,
		message TEXT
	);
	`

	for _, stmt := range []string{runTable, sampleTable, failureTable} {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the DB connection
func Close() error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// SaveRun stores a new pending run
func SaveRun(runID string, spec model.RunSpec) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = db.Exec(`INSERT INTO runs (id, spec, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		runID, specJSON, model.StatusPending, now, now)
	return err
}

// UpdateRunStatus updates run status
func UpdateRunStatus(runID string, status string) error {
	now := time.Now().UTC()
	res, err := db.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`, status, now, runID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SaveRunError marks a run failed with the given error
func SaveRunError(runID string, runErr error) error {
	if runErr == nil {
		return nil
	}
	now := time.Now().UTC()
	_, err := db.Exec(`UPDATE runs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		model.StatusFailed, runErr.Error(), now, runID)
	return err
}

// SaveRunResult replaces the samples and failures of a run and records its counts
func SaveRunResult(runID string, result *model.Result) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM run_samples WHERE run_id = ?`, runID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM run_failures WHERE run_id = ?`, runID); err != nil {
		return err
	}

	for _, s := range result.Samples {
		if _, err := tx.Exec(`INSERT INTO run_samples (run_id, item_id, label, value) VALUES (?, ?, ?, ?)`,
			runID, s.ItemID, s.Label, s.Value); err != nil {
			return fmt.Errorf("failed to save sample %s: %w", s.ItemID, err)
		}
	}
	for _, f := range result.Failures {
		if _, err := tx.Exec(`INSERT INTO run_failures (run_id, item_id, label, kind, message) VALUES (?, ?, ?, ?, ?)`,
			runID, f.ItemID, f.Label, f.Kind, f.Message); err != nil {
			return fmt.Errorf("failed to save failure %s: %w", f.ItemID, err)
		}
	}

	now := time.Now().UTC()
	res, err := tx.Exec(`UPDATE runs SET submitted = ?, succeeded = ?, dropped = ?, updated_at = ? WHERE id = ?`,
		result.Submitted, len(result.Samples), result.Dropped(), now, runID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// ListRuns returns all runs, newest first
func ListRuns() ([]model.RunRecord, error) {
	rows, err := db.Query(`SELECT id, spec, status, submitted, succeeded, dropped, error_message, created_at, updated_at
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]model.RunRecord, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun fetches full run spec and status
func GetRun(runID string) (*model.RunRecord, error) {
	row := db.QueryRow(`SELECT id, spec, status, submitted, succeeded, dropped, error_message, created_at, updated_at
		FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// GetRunSeries returns the samples of a run sorted by label
func GetRunSeries(runID string) ([]model.StatSample, error) {
	rows, err := db.Query(`SELECT item_id, label, value FROM run_samples WHERE run_id = ? ORDER BY label, item_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	series := make([]model.StatSample, 0)
	for rows.Next() {
		var s model.StatSample
		if err := rows.Scan(&s.ItemID, &s.Label, &s.Value); err != nil {
			return nil, err
		}
		series = append(series, s)
	}
	return series, rows.Err()
}

// GetRunFailures returns the dropped items of a run
func GetRunFailures(runID string) ([]model.ItemFailure, error) {
	rows, err := db.Query(`SELECT item_id, label, kind, message FROM run_failures WHERE run_id = ? ORDER BY label, item_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	failures := make([]model.ItemFailure, 0)
	for rows.Next() {
		var f model.ItemFailure
		if err := rows.Scan(&f.ItemID, &f.Label, &f.Kind, &f.Message); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// DeleteRun removes a run and its samples and failures
func DeleteRun(runID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM run_samples WHERE run_id = ?`,
		`DELETE FROM run_failures WHERE run_id = ?`,
	} {
		if _, err := tx.Exec(stmt, runID); err != nil {
			return err
		}
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*model.RunRecord, error) {
	var run model.RunRecord
	var specJSON string
	if err := row.Scan(&run.ID, &specJSON, &run.Status, &run.Submitted, &run.Succeeded, &run.Dropped,
		&run.Error, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(specJSON), &run.Spec); err != nil {
		return nil, err
	}
	return &run, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
