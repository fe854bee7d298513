package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/workflow"

	_ "modernc.org/sqlite"
)

// Fixed width so that text comparison orders like time.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore persists sessions in a local SQLite file. It suits a single
// server that must keep sessions across restarts without a PostgreSQL.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and prepares
// the session table. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS form_sessions (
    id          TEXT PRIMARY KEY,
    variant     TEXT NOT NULL,
    phase       TEXT NOT NULL,
    order_id    TEXT,
    state       TEXT NOT NULL,
    version     INTEGER NOT NULL,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS form_sessions_order_id_idx ON form_sessions (order_id);
CREATE INDEX IF NOT EXISTS form_sessions_updated_at_idx ON form_sessions (updated_at);`)
	if err != nil {
		return fmt.Errorf("create sqlite schema: %w", err)
	}
	return nil
}

const selectSQLiteSession = `
SELECT id, variant, phase, state, version, created_at, updated_at
FROM form_sessions`

func (s *SQLiteStore) Create(ctx context.Context, sess *workflow.Session) error {
	state, err := encodeState(sess)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO form_sessions (id, variant, phase, order_id, state, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 1, ?, ?)
ON CONFLICT (id) DO NOTHING`,
		sess.ID.String(), sess.Variant, sess.Phase, nullOrderID(sess), state,
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("insert session: %w", err)
	} else if n == 0 {
		return workflow.ErrConflict
	}
	sess.Version = 1
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*workflow.Session, error) {
	row := s.db.QueryRowContext(ctx, selectSQLiteSession+` WHERE id = ?`, id.String())
	sess, err := scanSQLiteSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, workflow.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// Update writes the session only if its version is unchanged.
func (s *SQLiteStore) Update(ctx context.Context, sess *workflow.Session) error {
	state, err := encodeState(sess)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE form_sessions
SET phase = ?, order_id = ?, state = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ?`,
		sess.Phase, nullOrderID(sess), state, formatTime(sess.UpdatedAt), sess.ID.String(), sess.Version)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM form_sessions WHERE id = ?)`, sess.ID.String()).Scan(&exists); err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if !exists {
			return workflow.ErrSessionNotFound
		}
		return workflow.ErrConflict
	}
	sess.Version++
	return nil
}

func (s *SQLiteStore) FindByOrderID(ctx context.Context, orderID string) ([]*workflow.Session, error) {
	rows, err := s.db.QueryContext(ctx, selectSQLiteSession+` WHERE order_id = ? ORDER BY updated_at DESC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*workflow.Session
	for rows.Next() {
		sess, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM form_sessions WHERE updated_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row rowScanner) (*workflow.Session, error) {
	var (
		sess                 workflow.Session
		id, state            string
		createdAt, updatedAt string
	)
	if err := row.Scan(&id, &sess.Variant, &sess.Phase, &state, &sess.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if sess.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	if sess.CreatedAt, err = time.Parse(sqliteTimeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if sess.UpdatedAt, err = time.Parse(sqliteTimeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	var st sessionState
	if err := json.Unmarshal([]byte(state), &st); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	sess.Draft = st.Draft
	sess.Result = st.Result
	return &sess, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func nullOrderID(s *workflow.Session) sql.NullString {
	if s.Result == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: s.Result.OrderID, Valid: true}
}
