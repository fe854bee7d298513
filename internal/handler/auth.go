package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/auth"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/enum"
)

// staffNamespace derives stable staff IDs from login names.
var staffNamespace = uuid.MustParse("6f1d3c2a-8b4e-4f7a-9c51-2d0e7a9b3f10")

// AuthHandler handles staff authentication. Staff share one password whose
// bcrypt hash comes from configuration; the name only labels the token.
type AuthHandler struct {
	passwordHash string
	jwtSecret    string
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(passwordHash, jwtSecret string) *AuthHandler {
	return &AuthHandler{passwordHash: passwordHash, jwtSecret: jwtSecret}
}

// RegisterRoutes registers auth endpoints on the given Chi router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string        `json:"access_token"`
	Staff       staffResponse `json:"staff"`
}

type staffResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role string    `json:"role"`
}

// Login checks the staff password and issues an access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and password are required"})
		return
	}

	if err := auth.CheckPassword(h.passwordHash, req.Password); err != nil {
		if !errors.Is(err, auth.ErrBadCredentials) {
			log.Printf("ERROR: check staff password: %v", err)
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	staffID := uuid.NewSHA1(staffNamespace, []byte(req.Name))
	token, err := auth.GenerateToken(h.jwtSecret, staffID, req.Name, enum.RoleStaff)
	if err != nil {
		log.Printf("ERROR: generate token: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		Staff:       staffResponse{ID: staffID, Name: req.Name, Role: enum.RoleStaff},
	})
}
