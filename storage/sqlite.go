// Package storage provides SQLite history storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/richinex/llmchain/chain"
	"github.com/richinex/llmchain/model"
)

// SqliteStore implements Store using SQLite.
// Runs and their entries live in the runs and history_entries tables.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStore, error) {
	// Create parent directory if needed
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			chain TEXT NOT NULL,
			input_var TEXT NOT NULL,
			input TEXT NOT NULL,
			started_at TEXT NOT NULL,
			state TEXT,
			failed_step TEXT,
			error_kind TEXT,
			error TEXT,
			finished_at TEXT
		);

		CREATE TABLE IF NOT EXISTS history_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			entry_index INTEGER NOT NULL,
			step_id TEXT NOT NULL,
			prompt TEXT NOT NULL,
			response TEXT NOT NULL,
			response_hash TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			source TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE,
			UNIQUE(run_id, entry_index)
		);

		CREATE INDEX IF NOT EXISTS idx_history_entries_run
		ON history_entries(run_id, entry_index);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Begin inserts the run row.
func (s *SqliteStore) Begin(ctx context.Context, h chain.Header) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (run_id, chain, input_var, input, started_at) VALUES (?, ?, ?, ?, ?)",
		h.RunID, h.Chain, h.InputVar, h.Input, formatTime(h.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Append inserts the next entry of a run.
func (s *SqliteStore) Append(ctx context.Context, runID string, e chain.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	if err := runExists(ctx, tx, runID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO history_entries (run_id, entry_index, step_id, prompt, response, response_hash, timestamp, source)
		SELECT ?, COALESCE(MAX(entry_index) + 1, 0), ?, ?, ?, ?, ?, ?
		FROM history_entries WHERE run_id = ?`,
		runID, e.StepID, e.Prompt, e.Response, contentHash(e.Response), formatTime(e.Timestamp), string(e.Source), runID)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Finish stores the outcome on the run row.
func (s *SqliteStore) Finish(ctx context.Context, runID string, o chain.Outcome) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET state = ?, failed_step = ?, error_kind = ?, error = ?, finished_at = ?
		WHERE run_id = ?`,
		string(o.State), nullable(o.FailedStep), nullable(string(o.ErrorKind)), nullable(o.Error),
		formatTime(o.FinishedAt), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// Load reads a run and its entries in order.
func (s *SqliteStore) Load(ctx context.Context, runID string) (*chain.History, error) {
	var (
		h                                         chain.History
		startedAt                                 string
		state, failedStep, errKind, errMsg, ended sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, chain, input_var, input, started_at, state, failed_step, error_kind, error, finished_at
		FROM runs WHERE run_id = ?`, runID).
		Scan(&h.Header.RunID, &h.Header.Chain, &h.Header.InputVar, &h.Header.Input, &startedAt,
			&state, &failedStep, &errKind, &errMsg, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	if h.Header.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}

	if state.Valid {
		o := &chain.Outcome{
			State:      chain.State(state.String),
			FailedStep: failedStep.String,
			ErrorKind:  model.ErrorKind(errKind.String),
			Error:      errMsg.String,
		}
		if o.FinishedAt, err = parseTime(ended.String); err != nil {
			return nil, err
		}
		h.Outcome = o
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, prompt, response, response_hash, timestamp, source
		FROM history_entries WHERE run_id = ? ORDER BY entry_index ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	h.Entries = []chain.Entry{} // Start with empty slice, not nil
	for rows.Next() {
		var e chain.Entry
		var hash, ts, source string
		if err := rows.Scan(&e.StepID, &e.Prompt, &e.Response, &hash, &ts, &source); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		// replay must see exactly what was recorded
		if contentHash(e.Response) != hash {
			return nil, fmt.Errorf("entry %q of run %s: response checksum mismatch", e.StepID, runID)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		e.Source = chain.Source(source)
		h.Entries = append(h.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return &h, nil
}

// ListRuns lists run ids, most recent first.
func (s *SqliteStore) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id FROM runs ORDER BY started_at DESC, run_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []string{} // Start with empty slice, not nil
	for rows.Next() {
		var runID string
		if err := rows.Scan(&runID); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, runID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func runExists(ctx context.Context, tx *sql.Tx, runID string) error {
	var count int
	err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE run_id = ?", runID).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check run existence: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("append to %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// contentHash returns the xxhash64 of s as 16 hex characters.
func contentHash(s string) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], xxhash.Sum64String(s))
	return hex.EncodeToString(buf[:])
}

// timeLayout has a fixed-width fraction so stored values sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// Convert empty strings to NULL for optional fields
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Verify SqliteStore implements Store
var _ Store = (*SqliteStore)(nil)
