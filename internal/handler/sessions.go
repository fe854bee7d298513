package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/enum"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/order"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/variant"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/workflow"
)

// msgSubmitFailed is shown whenever the order could not be delivered.
// Transport details stay in the server log.
const msgSubmitFailed = "系統忙碌中，請稍後再試或聯繫客服。"

const msgMissingFields = "請填寫所有必填欄位"

// SessionService is the workflow surface used by the session endpoints.
// Satisfied by *workflow.Service.
type SessionService interface {
	Profile(name string) (variant.Profile, error)
	Start(ctx context.Context, variant string) (*workflow.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*workflow.Session, error)
	EditDraft(ctx context.Context, id uuid.UUID, p order.DraftPatch) (*workflow.Session, error)
	AddItem(ctx context.Context, id uuid.UUID) (*workflow.Session, order.LineItem, error)
	UpdateItem(ctx context.Context, id uuid.UUID, itemID string, p order.ItemPatch) (*workflow.Session, error)
	RemoveItem(ctx context.Context, id uuid.UUID, itemID string) (*workflow.Session, error)
	RequestSubmit(ctx context.Context, id uuid.UUID) (*workflow.Session, error)
	Confirm(ctx context.Context, id uuid.UUID) (*workflow.Session, error)
	Cancel(ctx context.Context, id uuid.UUID) (*workflow.Session, error)
	Summary(ctx context.Context, id uuid.UUID) (string, error)
}

// SessionHandler serves the order form session endpoints.
type SessionHandler struct {
	svc         SessionService
	submitLimit func(http.Handler) http.Handler
}

// NewSessionHandler creates a new SessionHandler. submitLimit, when not nil,
// wraps the endpoints that may reach the remote endpoint.
func NewSessionHandler(svc SessionService, submitLimit func(http.Handler) http.Handler) *SessionHandler {
	return &SessionHandler{svc: svc, submitLimit: submitLimit}
}

// RegisterRoutes registers session endpoints on the given Chi router.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/variants/{variant}/sessions", h.Start)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/draft", h.EditDraft)
		r.Post("/items", h.AddItem)
		r.Patch("/items/{itemId}", h.UpdateItem)
		r.Delete("/items/{itemId}", h.RemoveItem)
		r.Post("/cancel", h.Cancel)
		r.Get("/summary", h.Summary)

		r.Group(func(r chi.Router) {
			if h.submitLimit != nil {
				r.Use(h.submitLimit)
			}
			r.Post("/submit", h.Submit)
			r.Post("/confirm", h.Confirm)
		})
	})
}

// --- Response types ---

type sessionResponse struct {
	ID      uuid.UUID       `json:"id"`
	Variant string          `json:"variant"`
	Phase   string          `json:"phase"`
	Version int64           `json:"version"`
	Options variant.Options `json:"options"`
	Draft   *order.Draft    `json:"draft"`
	Notice  string          `json:"notice,omitempty"`
	Result  *resultResponse `json:"result,omitempty"`
}

type resultResponse struct {
	OrderID     string    `json:"orderId"`
	Timestamp   string    `json:"timestamp"`
	SubmittedAt time.Time `json:"submittedAt"`
	Summary     string    `json:"summary,omitempty"`
	DeepLink    string    `json:"deepLink,omitempty"`
}

type addItemResponse struct {
	Item    order.LineItem  `json:"item"`
	Session sessionResponse `json:"session"`
}

type validationErrorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing"`
}

// --- Handlers ---

// Start opens a new session for the variant in the URL.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Start(r.Context(), chi.URLParam(r, "variant"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, sess)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

// EditDraft applies a partial update to the draft's scalar fields.
func (h *SessionHandler) EditDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	var req order.DraftPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	sess, err := h.svc.EditDraft(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

func (h *SessionHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	sess, item, err := h.svc.AddItem(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, addItemResponse{Item: item, Session: h.toResponse(sess)})
}

func (h *SessionHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	var req order.ItemPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	sess, err := h.svc.UpdateItem(r.Context(), id, chi.URLParam(r, "itemId"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

func (h *SessionHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.RemoveItem(r.Context(), id, chi.URLParam(r, "itemId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

// Submit validates the draft and either asks for confirmation or sends it.
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.RequestSubmit(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

func (h *SessionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.Confirm(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

// Summary returns the copyable order text as text/plain.
func (h *SessionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	text, err := h.svc.Summary(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(text)); err != nil {
		log.Printf("ERROR: failed to write summary: %v", err)
	}
}

// --- Helpers ---

func (h *SessionHandler) respond(w http.ResponseWriter, status int, sess *workflow.Session) {
	writeJSON(w, status, h.toResponse(sess))
}

func (h *SessionHandler) toResponse(sess *workflow.Session) sessionResponse {
	resp := sessionResponse{
		ID:      sess.ID,
		Variant: sess.Variant,
		Phase:   sess.Phase,
		Version: sess.Version,
		Draft:   sess.Draft,
	}
	p, err := h.svc.Profile(sess.Variant)
	if err != nil {
		log.Printf("ERROR: session %s has unknown variant %s", sess.ID, sess.Variant)
		return resp
	}
	resp.Options = p.Options

	if sess.Phase == enum.PhaseConfirming {
		resp.Notice = order.ConfirmationNotice(sess.Draft, p.Options.EnableStockHoldMode)
	}
	if sess.Result != nil {
		res := &resultResponse{
			OrderID:     sess.Result.OrderID,
			Timestamp:   sess.Result.Timestamp,
			SubmittedAt: sess.Result.SubmittedAt,
			DeepLink:    p.DeepLink,
		}
		if p.Options.EnableClipboardSummary {
			res.Summary = order.Summary(sess.Result)
		}
		resp.Result = res
	}
	return resp
}

func parseSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps workflow and draft errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *order.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, validationErrorResponse{Error: msgMissingFields, Missing: verr.Missing})

	case errors.Is(err, order.ErrInvalidOrderType),
		errors.Is(err, order.ErrInvalidShipmentMode),
		errors.Is(err, order.ErrInvalidTimeSlot):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})

	case errors.Is(err, workflow.ErrSessionNotFound),
		errors.Is(err, order.ErrItemNotFound),
		errors.Is(err, variant.ErrUnknownVariant),
		errors.Is(err, workflow.ErrSummaryDisabled):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})

	case errors.Is(err, order.ErrLastItem),
		errors.Is(err, workflow.ErrNotEditable),
		errors.Is(err, workflow.ErrNotConfirming),
		errors.Is(err, workflow.ErrSubmissionInFlight),
		errors.Is(err, workflow.ErrAlreadySubmitted),
		errors.Is(err, workflow.ErrNotSubmitted),
		errors.Is(err, workflow.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})

	case errors.Is(err, workflow.ErrSubmissionFailed):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": msgSubmitFailed})

	default:
		log.Printf("ERROR: session request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}
