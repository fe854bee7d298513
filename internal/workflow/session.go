package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/order"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/variant"
)

// Errors returned by the workflow service.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrConflict           = errors.New("session changed, please retry")
	ErrNotEditable        = errors.New("session is not editable")
	ErrNotConfirming      = errors.New("session is not awaiting confirmation")
	ErrSubmissionInFlight = errors.New("submission already in progress")
	ErrAlreadySubmitted   = errors.New("order already submitted")
	ErrNotSubmitted       = errors.New("order has not been submitted")
	ErrSummaryDisabled    = errors.New("summary is not enabled for this variant")
	ErrSubmissionFailed   = errors.New("submission failed")
)

// Session is one form session: the draft being edited and, once submitted,
// the immutable submission result.
type Session struct {
	ID        uuid.UUID     `json:"id"`
	Variant   string        `json:"variant"`
	Phase     string        `json:"phase"`
	Draft     *order.Draft  `json:"draft"`
	Result    *order.Result `json:"result,omitempty"`
	Version   int64         `json:"version"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Store persists sessions.
//
// Update must fail with ErrConflict when the stored version differs from
// s.Version, and bump s.Version on success. Get returns ErrSessionNotFound
// for unknown ids.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Update(ctx context.Context, s *Session) error
	FindByOrderID(ctx context.Context, orderID string) ([]*Session, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Sender delivers a payload to the variant's endpoint.
// Satisfied by *sink.Client.
type Sender interface {
	Send(ctx context.Context, endpoint, ackMode string, p order.Payload) error
}

// ProfileSource resolves variant profiles. Satisfied by *variant.Registry.
type ProfileSource interface {
	Get(name string) (variant.Profile, error)
}

// Notifier is told about every successful submission.
type Notifier interface {
	SessionSubmitted(s *Session)
}
