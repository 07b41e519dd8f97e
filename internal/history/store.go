package history

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Run is one completed summarize invocation.
type Run struct {
	ID          int64
	CreatedAt   string
	UserQuery   string
	Strategy    string
	ChunkCount  int
	TotalItems  int
	ActiveItems int
	DurationMs  int64
	SummaryText string
}

// Store handles SQLite persistence for summarization runs.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) a SQLite database at the given path and runs migrations.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS summarize_runs (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at   TEXT NOT NULL DEFAULT (datetime('now')),
		user_query   TEXT NOT NULL,
		strategy     TEXT NOT NULL,
		chunk_count  INTEGER NOT NULL DEFAULT 0,
		total_items  INTEGER NOT NULL DEFAULT 0,
		active_items INTEGER NOT NULL DEFAULT 0,
		duration_ms  INTEGER NOT NULL DEFAULT 0,
		summary_text TEXT NOT NULL DEFAULT ''
	);`
	_, err := s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun persists one completed run and returns its row id.
func (s *Store) RecordRun(run Run) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO summarize_runs (user_query, strategy, chunk_count, total_items, active_items, duration_ms, summary_text) VALUES (?, ?, ?, ?, ?, ?, ?)",
		run.UserQuery, run.Strategy, run.ChunkCount, run.TotalItems, run.ActiveItems, run.DurationMs, run.SummaryText,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		"SELECT id, created_at, user_query, strategy, chunk_count, total_items, active_items, duration_ms, summary_text FROM summarize_runs ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.CreatedAt, &run.UserQuery, &run.Strategy, &run.ChunkCount, &run.TotalItems, &run.ActiveItems, &run.DurationMs, &run.SummaryText); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunCount returns the number of recorded runs.
func (s *Store) RunCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM summarize_runs").Scan(&count)
	return count, err
}
