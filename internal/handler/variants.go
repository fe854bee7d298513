package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/enum"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/variant"
)

// VariantLister lists the deployed form variants.
// Satisfied by *variant.Registry.
type VariantLister interface {
	List() []variant.Profile
	Default() variant.Profile
}

// VariantHandler describes the available forms to the front-end.
type VariantHandler struct {
	variants VariantLister
}

// NewVariantHandler creates a new VariantHandler.
func NewVariantHandler(variants VariantLister) *VariantHandler {
	return &VariantHandler{variants: variants}
}

// RegisterRoutes registers variant endpoints on the given Chi router.
func (h *VariantHandler) RegisterRoutes(r chi.Router) {
	r.Get("/variants", h.List)
}

type variantResponse struct {
	variant.Profile
	Default bool `json:"default"`
}

type variantListResponse struct {
	Variants      []variantResponse `json:"variants"`
	OrderTypes    []string          `json:"orderTypes"`
	ShipmentModes []string          `json:"shipmentModes"`
	TimeSlots     []string          `json:"timeSlots"`
}

// List returns every variant with the option sets the form renders.
// Endpoints stay server side.
func (h *VariantHandler) List(w http.ResponseWriter, r *http.Request) {
	def := h.variants.Default().Name
	profiles := h.variants.List()

	resp := variantListResponse{
		Variants:      make([]variantResponse, 0, len(profiles)),
		OrderTypes:    enum.OrderTypes,
		ShipmentModes: enum.ShipmentModes,
		TimeSlots:     enum.TimeSlots,
	}
	for _, p := range profiles {
		resp.Variants = append(resp.Variants, variantResponse{Profile: p, Default: p.Name == def})
	}
	writeJSON(w, http.StatusOK, resp)
}
