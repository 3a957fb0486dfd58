package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs"
	"github.com/llmspell/spellkernel/src/kernel/mapper"
	"github.com/llmspell/spellkernel/src/kernel/model"

	// Registers the pure Go "sqlite" driver.
	_ "modernc.org/sqlite"
)

const _dbFile = "sessions.db"

const _schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	execution_count INTEGER NOT NULL,
	state TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);`

// SQLiteStore keeps session state in a single sqlite database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens or creates sessions.db in dir.
func NewSQLiteStore(kfs fs.KernelFS, dir string) (*SQLiteStore, error) {
	if err := kfs.MkdirAll(dir); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	dbPath := filepath.Join(dir, _dbFile)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}
	// A single connection serializes writers instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(_schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*entity.SessionState, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM sessions WHERE session_id = ?`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	var m model.SessionState
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, false, fmt.Errorf("decoding session %s: %w", sessionID, err)
	}
	return mapper.ModelToSessionState(&m), true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, state *entity.SessionState) error {
	m := mapper.SessionStateToModel(state)
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", state.SessionID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, execution_count, state, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		 execution_count = excluded.execution_count,
		 state = excluded.state,
		 updated_at = excluded.updated_at`,
		m.SessionID, m.ExecutionCount, string(data), m.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", state.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Kind() string { return KindSQLite }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
