// Package http provides the HTTP handlers and router of the consultdesk
// backend.
package http

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/consultdesk/internal/middleware"
	"github.com/atinyakov/consultdesk/internal/models"
)

// AuthService defines the account operations required by the HTTP
// handlers.
type AuthService interface {
	// Register creates a member account.
	Register(ctx context.Context, su models.SignUp) (*models.Identity, error)
	// Login checks credentials and issues a token pair.
	Login(ctx context.Context, creds models.Credentials) (models.TokenPair, error)
	// Refresh rotates a refresh token.
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)
	// Logout revokes a refresh token.
	Logout(ctx context.Context, refresh string) error
	// Me returns the stored profile of a member.
	Me(ctx context.Context, id int64) (*models.Identity, error)
}

// AuthHandler handles HTTP requests for registration, sign-in and token
// rotation.
type AuthHandler struct {
	// AuthService performs the underlying account operations.
	AuthService AuthService
	// Log receives unexpected failures. Optional.
	Log *zap.Logger
}

// refreshRequest is the body of refresh and logout calls.
type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// Register handles POST /api/auth/register and answers 201 with the new
// identity. It does not sign the member in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var su models.SignUp
	if !decode(w, r, &su) {
		return
	}
	id, err := h.AuthService.Register(r.Context(), su)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if !decode(w, r, &creds) {
		return
	}
	if creds.Email == "" || creds.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:  "email and password are required",
			Fields: missing(map[string]string{"email": creds.Email, "password": creds.Password}),
		})
		return
	}
	pair, err := h.AuthService.Login(r.Context(), creds)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:  "refresh token is required",
			Fields: map[string]string{"refresh": "required"},
		})
		return
	}
	pair, err := h.AuthService.Refresh(r.Context(), req.Refresh)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Logout handles POST /api/auth/logout. Unknown or expired tokens are
// accepted silently.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Refresh != "" {
		if err := h.AuthService.Logout(r.Context(), req.Refresh); err != nil {
			writeError(w, h.Log, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/auth/me. It must be mounted behind RequireAuth.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}
	id, err := h.AuthService.Me(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func missing(values map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range values {
		if v == "" {
			out[k] = "required"
		}
	}
	return out
}
