package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/odnarb/bigfoot-map/internal/dal"
	"github.com/odnarb/bigfoot-map/internal/safeerr"
)

// AuthHandlers handles authentication-related HTTP endpoints
type AuthHandlers struct {
	provider AuthProvider
	now      func() time.Time
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(provider AuthProvider) *AuthHandlers {
	return &AuthHandlers{
		provider: provider,
		now:      time.Now,
	}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string `json:"status"`
	CheckedAt string `json:"checkedAt"`
}

// InfoResponse describes the API root.
type InfoResponse struct {
	Message   string `json:"message"`
	APIStatus string `json:"apiStatus"`
	Note      string `json:"note"`
}

// LoginHandler handles POST /api/auth/login
func (ah *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, r, safeerr.Validation(CodeLoginFieldsRequired, MsgLoginFieldsRequired, nil))
		return
	}

	session, err := ah.provider.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// MeHandler handles GET /api/auth/me
func (ah *AuthHandlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, r, safeerr.New(safeerr.KindUnauthorized, CodeMissingToken, MsgMissingToken, nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// HealthHandler handles GET /api/health
func (ah *AuthHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		CheckedAt: ah.now().UTC().Format(dal.ISOLayout),
	})
}

// InfoHandler handles GET /api
func (ah *AuthHandlers) InfoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		Message:   "Mapping Sasquatch API",
		APIStatus: "available",
		Note:      "Public API documentation is planned.",
	})
}
