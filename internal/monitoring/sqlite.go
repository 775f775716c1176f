package monitoring

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/osmike/sweeper/internal/domain"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// startLayout is fixed-width so start_at sorts chronologically as text.
const startLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		identity TEXT NOT NULL,
		asset TEXT NOT NULL,
		result TEXT NOT NULL,
		error TEXT NOT NULL,
		detail TEXT NOT NULL,
		state TEXT NOT NULL,
		start_at TEXT NOT NULL,
		execution_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS attempts_start_at ON attempts(start_at);`

// SQLite persists the attempt history in a local database so it survives restarts.
//
// SaveMetrics cannot report failures through the Monitoring interface; write errors are logged
// and the last one is kept for Err.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger

	mu      sync.Mutex
	lastErr error
}

// OpenSQLite opens or creates the history database at path.
func OpenSQLite(path string, log *zap.Logger) (*SQLite, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db, log: log.With(zap.String("history", path))}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Err returns the last write failure, if any.
func (s *SQLite) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SaveMetrics upserts dto by attempt ID.
func (s *SQLite) SaveMetrics(dto domain.AttemptDTO) {
	_, err := s.db.Exec(
		`INSERT INTO attempts (id, run_id, mode, identity, asset, result, error, detail, state, start_at, execution_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			result = excluded.result,
			error = excluded.error,
			detail = excluded.detail,
			state = excluded.state,
			execution_ms = excluded.execution_ms`,
		dto.ID, dto.RunID, string(dto.Mode), dto.Identity, dto.Asset, string(dto.Result),
		dto.Error, dto.Detail, string(dto.State),
		dto.StartAt.UTC().Format(startLayout), dto.ExecutionTime.Milliseconds(),
	)
	if err != nil {
		s.log.Error("failed to record attempt", zap.String("attempt", dto.ID), zap.Error(err))
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
	}
}

// GetMetrics returns every stored attempt, oldest first. Read failures are logged and yield nil.
func (s *SQLite) GetMetrics() []domain.AttemptDTO {
	out, err := s.Recent(0)
	if err != nil {
		s.log.Error("failed to read attempt history", zap.Error(err))
		return nil
	}
	return out
}

// Recent returns the last limit attempts, oldest first. A limit of zero or less returns all of them.
func (s *SQLite) Recent(limit int) ([]domain.AttemptDTO, error) {
	query := `SELECT id, run_id, mode, identity, asset, result, error, detail, state, start_at, execution_ms
		FROM (SELECT * FROM attempts ORDER BY start_at DESC LIMIT ?) ORDER BY start_at ASC`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.AttemptDTO
	for rows.Next() {
		var (
			dto                 domain.AttemptDTO
			mode, result, state string
			startAt             string
			executionMillis     int64
		)
		if err := rows.Scan(&dto.ID, &dto.RunID, &mode, &dto.Identity, &dto.Asset, &result,
			&dto.Error, &dto.Detail, &state, &startAt, &executionMillis); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		dto.Mode = domain.Mode(mode)
		dto.Result = domain.Result(result)
		dto.State = domain.State(state)
		dto.ExecutionTime = time.Duration(executionMillis) * time.Millisecond
		if dto.StartAt, err = time.Parse(startLayout, startAt); err != nil {
			return nil, fmt.Errorf("attempt %s start time: %w", dto.ID, err)
		}
		out = append(out, dto)
	}
	return out, rows.Err()
}
