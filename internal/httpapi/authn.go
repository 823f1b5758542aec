package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"cloudrbac.org/internal/auth"
	"cloudrbac.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// identify validates the bearer token and returns the caller's identity.
// On failure it writes the response and returns ok=false.
func (a *API) identify(w http.ResponseWriter, r *http.Request) (auth.Identity, string, bool) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return auth.Identity{}, "", false
	}
	id, err := a.sessions.Validate(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrStoreUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "directory store unavailable")
		case errors.Is(err, auth.ErrUnauthenticated):
			writeError(w, r, http.StatusUnauthorized, "invalid token")
		default:
			writeError(w, r, http.StatusInternalServerError, "authentication error")
		}
		return auth.Identity{}, "", false
	}
	return id, token, true
}

// authorize runs the full access decision for the request: bearer token to
// identity, then a permission check for (resource, action). On failure it
// writes the response and returns ok=false. Store errors are reported as 503,
// never as a deny.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, resource, action string) (auth.Identity, bool) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		obs.RecordAuthzDecision(obs.DecisionUnauthenticated)
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return auth.Identity{}, false
	}
	id, err := a.gate.Authorize(r.Context(), token, resource, action)
	if err == nil {
		obs.RecordAuthzDecision(obs.DecisionAllowed)
		return id, true
	}

	var forbidden *auth.ForbiddenError
	switch {
	case errors.Is(err, auth.ErrStoreUnavailable):
		obs.RecordAuthzDecision(obs.DecisionError)
		writeError(w, r, http.StatusServiceUnavailable, "directory store unavailable")
	case errors.As(err, &forbidden):
		obs.RecordAuthzDecision(obs.DecisionForbidden)
		writeError(w, r, http.StatusForbidden, forbidden.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		obs.RecordAuthzDecision(obs.DecisionUnauthenticated)
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	default:
		obs.RecordAuthzDecision(obs.DecisionError)
		writeError(w, r, http.StatusInternalServerError, "authorization error")
	}
	return auth.Identity{}, false
}
