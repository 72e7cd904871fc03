// Package history records completed QA runs and their per-row results in a
// local SQLite database so past checks can be listed and summarized from the
// command line.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/perevir/internal"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		input_file TEXT NOT NULL,
		model TEXT NOT NULL,
		prompt_name TEXT NOT NULL,
		rows_total INTEGER NOT NULL,
		rows_processed INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS row_results (
		run_id TEXT NOT NULL,
		row_num INTEGER NOT NULL,
		source_text TEXT NOT NULL,
		target_text TEXT NOT NULL,
		score INTEGER NOT NULL,
		issues TEXT,
		suggestion TEXT,
		summary TEXT,
		PRIMARY KEY (run_id, row_num),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_job ON runs(job_id);
	CREATE INDEX IF NOT EXISTS idx_row_results_run ON row_results(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Run describes one recorded QA run.
type Run struct {
	ID            string
	JobID         string
	InputFile     string
	Model         string
	PromptName    string
	RowsTotal     int
	RowsProcessed int
	StartedAt     time.Time
	FinishedAt    time.Time
}

// RecordRun stores a completed run with its per-row results and returns the
// run id.
func (s *Store) RecordRun(ctx context.Context, run Run, results []internal.ProcessedItem) (string, error) {
	id := uuid.New().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, job_id, input_file, model, prompt_name, rows_total, rows_processed, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, run.JobID, run.InputFile, run.Model, run.PromptName, run.RowsTotal, run.RowsProcessed, run.StartedAt, run.FinishedAt)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, item := range results {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO row_results (run_id, row_num, source_text, target_text, score, issues, suggestion, summary) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, item.Row, normalizeText(item.Source), normalizeText(item.Target),
			item.Result.Score, strings.Join(item.Result.Issues, "\n"),
			item.Result.Suggestion, item.Result.Summary)
		if err != nil {
			return "", fmt.Errorf("failed to insert row %d: %w", item.Row, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// ListRuns returns recorded runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, input_file, model, prompt_name, rows_total, rows_processed, started_at, finished_at FROM runs ORDER BY finished_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.JobID, &r.InputFile, &r.Model, &r.PromptName, &r.RowsTotal, &r.RowsProcessed, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// RunStats summarises the row results of one run.
type RunStats struct {
	Rows        int
	MeanScore   float64
	LowScores   int // score <= 5
	Unparseable int // score = 0, typically a degraded result
}

// Stats returns summary statistics for a run's rows.
func (s *Store) Stats(ctx context.Context, runID string) (*RunStats, error) {
	stats := &RunStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(AVG(score), 0),
			COALESCE(SUM(CASE WHEN score <= 5 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN score = 0 THEN 1 ELSE 0 END), 0)
		FROM row_results WHERE run_id = ?`, runID).Scan(
		&stats.Rows,
		&stats.MeanScore,
		&stats.LowScores,
		&stats.Unparseable,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// RowResults returns the stored rows of a run in row order.
func (s *Store) RowResults(ctx context.Context, runID string) ([]internal.ProcessedItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_num, source_text, target_text, score, issues, suggestion, summary FROM row_results WHERE run_id = ? ORDER BY row_num`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []internal.ProcessedItem
	for rows.Next() {
		var item internal.ProcessedItem
		var issues string
		if err := rows.Scan(&item.Row, &item.Source, &item.Target, &item.Result.Score, &issues, &item.Result.Suggestion, &item.Result.Summary); err != nil {
			return nil, err
		}
		if issues != "" {
			item.Result.Issues = strings.Split(issues, "\n")
		}
		results = append(results, item)
	}

	return results, rows.Err()
}

// Clear removes all recorded runs and their rows.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM row_results`); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization so
// equal-looking texts compare equal across runs.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
