package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/enum"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/order"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/variant"
)

// Service drives form sessions through
// EDITING → (CONFIRMING) → SUBMITTING → SUBMITTED.
type Service struct {
	store    Store
	sender   Sender
	profiles ProfileSource
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
	intn     func(n int) int
	// staleAfter is how long a session may sit in SUBMITTING before it is
	// considered abandoned and handed back to the operator.
	staleAfter time.Duration
}

// DefaultSubmitTimeout matches the sink client's default overall timeout.
const DefaultSubmitTimeout = 30 * time.Second

// submitGrace is added to the submit timeout before a SUBMITTING session
// counts as abandoned.
const submitGrace = 30 * time.Second

// NewService creates a new Service. loc decides the draft's default date,
// the order id date fragment and the payload timestamp.
func NewService(store Store, sender Sender, profiles ProfileSource, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:    store,
		sender:   sender,
		profiles: profiles,
		loc:      loc,
		now:        time.Now,
		intn:       rand.IntN,
		staleAfter: DefaultSubmitTimeout + submitGrace,
	}
}

// SetSubmitTimeout tells the service how long a send may take. A session
// left in SUBMITTING for longer than that plus a grace period returns to
// EDITING the next time it is loaded.
func (s *Service) SetSubmitTimeout(d time.Duration) {
	if d > 0 {
		s.staleAfter = d + submitGrace
	}
}

// SetNotifier registers n to receive submission events.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetClock replaces the time and random sources. Used by tests.
func (s *Service) SetClock(now func() time.Time, intn func(n int) int) {
	if now != nil {
		s.now = now
	}
	if intn != nil {
		s.intn = intn
	}
}

// Profile returns the profile of the given variant.
func (s *Service) Profile(name string) (variant.Profile, error) {
	return s.profiles.Get(name)
}

// Start opens a new session with a default draft for the variant.
func (s *Service) Start(ctx context.Context, variantName string) (*Session, error) {
	if _, err := s.profiles.Get(variantName); err != nil {
		return nil, err
	}
	now := s.now()
	sess := &Session{
		ID:        uuid.New(),
		Variant:   variantName,
		Phase:     enum.PhaseEditing,
		Draft:     order.NewDraft(now, s.loc),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Get returns the session with the given id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.recoverAbandoned(ctx, sess)
}

// EditDraft applies a field-level patch to the draft.
func (s *Service) EditDraft(ctx context.Context, id uuid.UUID, p order.DraftPatch) (*Session, error) {
	return s.edit(ctx, id, func(d *order.Draft) error {
		return d.Apply(p)
	})
}

// AddItem appends a blank line item.
func (s *Service) AddItem(ctx context.Context, id uuid.UUID) (*Session, order.LineItem, error) {
	var added order.LineItem
	sess, err := s.edit(ctx, id, func(d *order.Draft) error {
		added = d.AddItem()
		return nil
	})
	return sess, added, err
}

// UpdateItem edits one line item.
func (s *Service) UpdateItem(ctx context.Context, id uuid.UUID, itemID string, p order.ItemPatch) (*Session, error) {
	return s.edit(ctx, id, func(d *order.Draft) error {
		_, err := d.UpdateItem(itemID, p)
		return err
	})
}

// RemoveItem deletes one line item; the last item cannot be removed.
func (s *Service) RemoveItem(ctx context.Context, id uuid.UUID, itemID string) (*Session, error) {
	return s.edit(ctx, id, func(d *order.Draft) error {
		return d.RemoveItem(itemID)
	})
}

// RequestSubmit validates the draft and either moves the session to
// CONFIRMING or, for variants without a confirmation step, submits it.
// A draft with missing required fields never reaches the sender.
func (s *Service) RequestSubmit(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkPhase(sess.Phase, enum.PhaseEditing); err != nil {
		return nil, err
	}
	if err := order.Validate(sess.Draft, p.Options.EnableStockHoldMode); err != nil {
		return nil, err
	}

	if p.Options.EnableConfirmationStep {
		sess.Phase = enum.PhaseConfirming
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
		return sess, nil
	}
	return s.submit(ctx, sess, p)
}

// Confirm submits a session waiting in CONFIRMING.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkPhase(sess.Phase, enum.PhaseConfirming); err != nil {
		return nil, err
	}
	return s.submit(ctx, sess, p)
}

// Cancel returns a CONFIRMING session to EDITING.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkPhase(sess.Phase, enum.PhaseConfirming); err != nil {
		return nil, err
	}
	sess.Phase = enum.PhaseEditing
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Summary returns the copyable summary text of a submitted session.
func (s *Service) Summary(ctx context.Context, id uuid.UUID) (string, error) {
	sess, p, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	if !p.Options.EnableClipboardSummary {
		return "", ErrSummaryDisabled
	}
	if sess.Phase != enum.PhaseSubmitted || sess.Result == nil {
		return "", ErrNotSubmitted
	}
	return order.Summary(sess.Result), nil
}

// FindByOrderID returns every submitted session carrying orderID.
// Order ids are not unique, so more than one session may match.
func (s *Service) FindByOrderID(ctx context.Context, orderID string) ([]*Session, error) {
	return s.store.FindByOrderID(ctx, orderID)
}

// Prune drops sessions untouched for longer than ttl.
func (s *Service) Prune(ctx context.Context, ttl time.Duration) (int64, error) {
	return s.store.Prune(ctx, s.now().Add(-ttl))
}

// submit performs the single network call of a session.
//
// The move to SUBMITTING is persisted before the call and acts as the
// in-flight guard: a concurrent submit either sees SUBMITTING or loses the
// version check. The call itself is detached from ctx; a client that goes
// away does not abort a submission already under way.
func (s *Service) submit(ctx context.Context, sess *Session, p variant.Profile) (*Session, error) {
	sess.Phase = enum.PhaseSubmitting
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	now := s.now()
	gen := &order.IDGenerator{Prefix: p.IDPrefix, Location: s.loc, Now: s.now, Intn: s.intn}
	payload := order.BuildPayload(gen.Next(), sess.Draft, now, order.PayloadOptions{
		Variant:          p.Name,
		WithShipmentMode: p.Options.EnableStockHoldMode,
		Location:         s.loc,
	})

	if sendErr := s.sender.Send(ctx, p.Endpoint, p.AckMode, payload); sendErr != nil {
		log.Printf("ERROR: submit order %s (session %s): %v", payload.OrderID, sess.ID, sendErr)
		sess.Phase = enum.PhaseEditing
		if err := s.save(ctx, sess); err != nil {
			log.Printf("WARN: reset session %s after failed submit, retrying: %v", sess.ID, err)
			if err := s.save(ctx, sess); err != nil {
				// Left in SUBMITTING; recoverAbandoned releases it once stale.
				log.Printf("ERROR: reset session %s after failed submit: %v", sess.ID, err)
			}
		}
		return sess, fmt.Errorf("%w: %w", ErrSubmissionFailed, sendErr)
	}

	sess.Result = order.NewResult(payload, sess.Draft, now)
	sess.Phase = enum.PhaseSubmitted
	if err := s.save(ctx, sess); err != nil {
		// The order already left; keep the result so the caller can show it.
		log.Printf("ERROR: store result of order %s (session %s): %v", payload.OrderID, sess.ID, err)
	}
	log.Printf("order %s submitted (variant %s, session %s)", payload.OrderID, p.Name, sess.ID)

	if s.notifier != nil {
		s.notifier.SessionSubmitted(sess)
	}
	return sess, nil
}

// edit loads an EDITING session, applies fn to its draft and saves it.
func (s *Service) edit(ctx context.Context, id uuid.UUID, fn func(d *order.Draft) error) (*Session, error) {
	sess, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkPhase(sess.Phase, enum.PhaseEditing); err != nil {
		return nil, err
	}
	if err := fn(sess.Draft); err != nil {
		return nil, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Session, variant.Profile, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, variant.Profile{}, err
	}
	p, err := s.profiles.Get(sess.Variant)
	if err != nil {
		return nil, variant.Profile{}, err
	}
	return sess, p, nil
}

// recoverAbandoned returns a session stuck in SUBMITTING to EDITING once it
// is older than any send could take, so the draft can be resubmitted.
func (s *Service) recoverAbandoned(ctx context.Context, sess *Session) (*Session, error) {
	if sess.Phase != enum.PhaseSubmitting || s.now().Sub(sess.UpdatedAt) <= s.staleAfter {
		return sess, nil
	}
	log.Printf("WARN: session %s stuck in %s since %s, returning it to %s",
		sess.ID, sess.Phase, sess.UpdatedAt.Format(time.RFC3339), enum.PhaseEditing)
	sess.Phase = enum.PhaseEditing
	if err := s.save(ctx, sess); err != nil {
		if errors.Is(err, ErrConflict) {
			// Someone else moved it first; take their version.
			return s.store.Get(ctx, sess.ID)
		}
		return nil, fmt.Errorf("recover session: %w", err)
	}
	return sess, nil
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = s.now()
	return s.store.Update(ctx, sess)
}

// checkPhase maps an unexpected phase to the error the caller should see.
func checkPhase(current, want string) error {
	if current == want {
		return nil
	}
	switch current {
	case enum.PhaseSubmitting:
		return ErrSubmissionInFlight
	case enum.PhaseSubmitted:
		return ErrAlreadySubmitted
	}
	if want == enum.PhaseConfirming {
		return ErrNotConfirming
	}
	return ErrNotEditable
}
