package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"cloudrbac.org/internal/audit"
	"cloudrbac.org/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	token, expiresAt, err := a.sessions.Authenticate(r.Context(), username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrStoreUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "directory store unavailable")
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		default:
			writeError(w, r, http.StatusInternalServerError, "login failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"username":   username,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, token, ok := a.identify(w, r)
	if !ok {
		return
	}
	ctx := auth.ContextWithIdentity(r.Context(), id)
	if err := a.sessions.Logout(ctx, token); err != nil {
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}
	_ = audit.LogEvent(ctx, "auth.logout", map[string]any{"username": id.Username})
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	refreshed, expiresAt, err := a.sessions.Refresh(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrStoreUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "directory store unavailable")
		case errors.Is(err, auth.ErrUnauthenticated):
			writeError(w, r, http.StatusUnauthorized, "invalid token")
		default:
			writeError(w, r, http.StatusInternalServerError, "refresh failed")
		}
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, tokenResponse{Token: refreshed, ExpiresAt: expiresAt})
}

// handleMe returns the caller's identity together with resolved roles and
// accessible resources, so clients can build menus without extra round trips.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, _, ok := a.identify(w, r)
	if !ok {
		return
	}
	roles, err := a.directory.RolesOfUser(r.Context(), id.ID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	resources, err := a.resolver.AccessibleResources(r.Context(), id.ID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	admin, err := a.resolver.IsAdmin(r.Context(), id.ID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity":  id,
		"roles":     roles,
		"resources": resources,
		"is_admin":  admin,
	})
}
