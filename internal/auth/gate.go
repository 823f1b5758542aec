package auth

import (
	"context"
	"errors"
)

// Gate is the single entry point protected operations call before doing
// anything: it authenticates the token, then authorizes the resolved identity
// against the required (resource, action) grant. Enforcement points must go
// through the gate rather than composing SessionManager and Resolver
// themselves, so authentication can never be skipped.
type Gate struct {
	sessions *SessionManager
	resolver *Resolver
}

// NewGate composes the session manager and resolver.
func NewGate(sessions *SessionManager, resolver *Resolver) (*Gate, error) {
	if sessions == nil {
		return nil, errors.New("auth: session manager is required")
	}
	if resolver == nil {
		return nil, errors.New("auth: resolver is required")
	}
	return &Gate{sessions: sessions, resolver: resolver}, nil
}

// Authorize validates the token and checks the grant. On success it returns
// the resolved identity for the caller to proceed with. Failure modes:
// ErrUnauthenticated for token problems, *ForbiddenError for a missing grant,
// and ErrStoreUnavailable-wrapped errors when the store could not answer.
// The last is a fail-closed denial that must stay distinguishable from a
// normal Forbidden.
func (g *Gate) Authorize(ctx context.Context, token, resource, action string) (Identity, error) {
	id, err := g.sessions.Validate(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	ok, err := g.resolver.HasPermission(ctx, id.ID, resource, action)
	if err != nil {
		return Identity{}, err
	}
	if !ok {
		return Identity{}, &ForbiddenError{Resource: resource, Action: action}
	}
	return id, nil
}
