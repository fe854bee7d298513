package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/order"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/workflow"
)

// OrderFinder looks up submitted sessions by order id.
// Satisfied by *workflow.Service.
type OrderFinder interface {
	FindByOrderID(ctx context.Context, orderID string) ([]*workflow.Session, error)
}

// StaffHandler serves staff-only order lookups.
type StaffHandler struct {
	finder OrderFinder
}

// NewStaffHandler creates a new StaffHandler.
func NewStaffHandler(finder OrderFinder) *StaffHandler {
	return &StaffHandler{finder: finder}
}

// RegisterRoutes registers staff endpoints on the given Chi router.
func (h *StaffHandler) RegisterRoutes(r chi.Router) {
	r.Get("/staff/orders", h.FindOrders)
}

type staffOrderResponse struct {
	SessionID   uuid.UUID    `json:"session_id"`
	Variant     string       `json:"variant"`
	OrderID     string       `json:"order_id"`
	Timestamp   string       `json:"timestamp"`
	SubmittedAt time.Time    `json:"submitted_at"`
	Order       *order.Draft `json:"order"`
}

// FindOrders lists every submission carrying ?order_id=. Ids are short and
// may collide, so the result is a list.
func (h *StaffHandler) FindOrders(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order_id is required"})
		return
	}

	sessions, err := h.finder.FindByOrderID(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: find order %s: %v", orderID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]staffOrderResponse, 0, len(sessions))
	for _, s := range sessions {
		if s.Result == nil {
			continue
		}
		resp = append(resp, staffOrderResponse{
			SessionID:   s.ID,
			Variant:     s.Variant,
			OrderID:     s.Result.OrderID,
			Timestamp:   s.Result.Timestamp,
			SubmittedAt: s.Result.SubmittedAt,
			Order:       s.Result.Draft,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
