package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/order"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/workflow"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// sessionState is the JSONB document stored per session.
type sessionState struct {
	Draft  *order.Draft  `json:"draft"`
	Result *order.Result `json:"result,omitempty"`
}

// PostgresStore persists sessions in PostgreSQL so several server
// instances can share them.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a PostgresStore on top of db (usually a pgxpool.Pool).
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectSession = `
SELECT id, variant, phase, state, version, created_at, updated_at
FROM form_sessions`

// Create inserts a new session at version 1.
func (p *PostgresStore) Create(ctx context.Context, s *workflow.Session) error {
	state, err := encodeState(s)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `
INSERT INTO form_sessions (id, variant, phase, order_id, state, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 1, $6, $7)`,
		s.ID, s.Variant, s.Phase, orderIDOf(s), state, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return workflow.ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}
	s.Version = 1
	return nil
}

// Get loads one session.
func (p *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*workflow.Session, error) {
	row := p.db.QueryRow(ctx, selectSession+` WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, workflow.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// Update writes the session if nobody else changed it since it was read.
// The version check happens in the WHERE clause, so the compare and the
// write are one atomic statement.
func (p *PostgresStore) Update(ctx context.Context, s *workflow.Session) error {
	state, err := encodeState(s)
	if err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, `
UPDATE form_sessions
SET phase = $2, order_id = $3, state = $4, version = version + 1, updated_at = $5
WHERE id = $1 AND version = $6`,
		s.ID, s.Phase, orderIDOf(s), state, s.UpdatedAt, s.Version)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the session is gone or the version moved on.
		var exists bool
		if err := p.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM form_sessions WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if !exists {
			return workflow.ErrSessionNotFound
		}
		return workflow.ErrConflict
	}
	s.Version++
	return nil
}

// FindByOrderID returns submitted sessions with the given order id, newest first.
func (p *PostgresStore) FindByOrderID(ctx context.Context, orderID string) ([]*workflow.Session, error) {
	rows, err := p.db.Query(ctx, selectSession+` WHERE order_id = $1 ORDER BY updated_at DESC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	defer rows.Close()

	var out []*workflow.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	return out, nil
}

// Prune deletes sessions last updated before the given time.
func (p *PostgresStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM form_sessions WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*workflow.Session, error) {
	var (
		s     workflow.Session
		state []byte
	)
	if err := row.Scan(&s.ID, &s.Variant, &s.Phase, &state, &s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	var st sessionState
	if err := json.Unmarshal(state, &st); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	s.Draft = st.Draft
	s.Result = st.Result
	return &s, nil
}

func encodeState(s *workflow.Session) (string, error) {
	b, err := json.Marshal(sessionState{Draft: s.Draft, Result: s.Result})
	if err != nil {
		return "", fmt.Errorf("encode session state: %w", err)
	}
	return string(b), nil
}

func orderIDOf(s *workflow.Session) pgtype.Text {
	if s.Result == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s.Result.OrderID, Valid: true}
}

// isUniqueViolation checks for pgconn error code 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
