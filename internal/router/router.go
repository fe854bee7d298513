package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/config"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/enum"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/handler"
	mw "github.com/kunhuatsai-cpu/tilepark-order/internal/middleware"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/variant"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/workflow"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/ws"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, svc *workflow.Service, variants *variant.Registry, hub *ws.Hub, limiter *mw.RateLimiter) chi.Router {
	r := chi.NewRouter()

	// Standard middleware. Forwarded headers are client controlled unless a
	// proxy rewrites them; the submit limiter keys on the resulting address.
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// The form is embedded in the distributor's own pages
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	handler.NewVariantHandler(variants).RegisterRoutes(r)

	var submitLimit func(http.Handler) http.Handler
	if limiter != nil {
		submitLimit = limiter.Middleware
	}
	handler.NewSessionHandler(svc, submitLimit).RegisterRoutes(r)

	handler.NewAuthHandler(cfg.StaffPasswordHash, cfg.JWTSecret).RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/variants/{variant}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, variants, cfg.JWTSecret, w, r)
	})

	// Staff routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireRole(enum.RoleStaff))
		handler.NewStaffHandler(svc).RegisterRoutes(r)
	})

	log.Println("Router initialized with all handlers")
	return r
}
