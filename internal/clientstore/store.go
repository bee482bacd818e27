// Package clientstore keeps the learner's attempts in a local SQLite file so
// an interrupted attempt can be resumed and finished ones reviewed offline.
package clientstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tzavrishon/mivhan/internal/examflow"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when no stored attempt matches.
var ErrNotFound = errors.New("attempt not found in local store")

// AttemptRow is one locally recorded attempt.
type AttemptRow struct {
	ID         uuid.UUID
	ServerURL  string
	StartedAt  time.Time
	FinishedAt *time.Time
	Score      *int
}

// Store wraps SQLite access for attempt data.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; the TUI and the controller goroutine share it.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			server_url TEXT NOT NULL,
			started_at TEXT NOT NULL,
			sections TEXT NOT NULL,
			finished_at TEXT,
			score INTEGER,
			summary TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_started_at ON attempts(started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordAttempt stores a freshly started attempt and its section order.
// Recording the same attempt twice keeps the first row.
func (s *Store) RecordAttempt(ctx context.Context, serverURL string, a examflow.Attempt, startedAt time.Time) error {
	sections, err := json.Marshal(a.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, server_url, started_at, sections)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		a.ID.String(), serverURL, startedAt.UTC().Format(time.RFC3339Nano), string(sections),
	)
	return err
}

// SaveSummary marks the attempt finished and keeps the server's result.
func (s *Store) SaveSummary(ctx context.Context, attemptID uuid.UUID, sum examflow.Summary, finishedAt time.Time) error {
	body, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET finished_at = ?, score = ?, summary = ? WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339Nano), sum.TotalScore, string(body), attemptID.String(),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestUnfinished returns the most recent attempt on serverURL that has no
// stored summary.
func (s *Store) LatestUnfinished(ctx context.Context, serverURL string) (*examflow.Attempt, error) {
	var id, sections string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sections FROM attempts
		 WHERE server_url = ? AND finished_at IS NULL
		 ORDER BY started_at DESC LIMIT 1`,
		serverURL,
	).Scan(&id, &sections)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a := &examflow.Attempt{}
	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("stored attempt id: %w", err)
	}
	if err := json.Unmarshal([]byte(sections), &a.Sections); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	return a, nil
}

// Summary returns the stored result of a finished attempt.
func (s *Store) Summary(ctx context.Context, attemptID uuid.UUID) (*examflow.Summary, error) {
	var body sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM attempts WHERE id = ?`, attemptID.String(),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !body.Valid) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sum examflow.Summary
	if err := json.Unmarshal([]byte(body.String), &sum); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &sum, nil
}

// ListAttempts returns up to limit attempts, newest first. A limit of zero
// or less returns all of them.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]AttemptRow, error) {
	query := `SELECT id, server_url, started_at, finished_at, score FROM attempts ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptRow
	for rows.Next() {
		var (
			id, server, started string
			finished            sql.NullString
			score               sql.NullInt64
		)
		if err := rows.Scan(&id, &server, &started, &finished, &score); err != nil {
			return nil, err
		}
		row := AttemptRow{ServerURL: server}
		if row.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("stored attempt id: %w", err)
		}
		if row.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("stored start time: %w", err)
		}
		if finished.Valid {
			t, err := time.Parse(time.RFC3339Nano, finished.String)
			if err != nil {
				return nil, fmt.Errorf("stored finish time: %w", err)
			}
			row.FinishedAt = &t
		}
		if score.Valid {
			v := int(score.Int64)
			row.Score = &v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
