package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SessionManager issues tokens on successful credential verification and
// validates them against the live user record on every request.
type SessionManager struct {
	store Store
	codec *TokenCodec
}

// NewSessionManager wires the manager to its store and codec.
func NewSessionManager(store Store, codec *TokenCodec) (*SessionManager, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	return &SessionManager{store: store, codec: codec}, nil
}

// Authenticate verifies username/password and mints a session token embedding
// the user's current snapshot. Unknown username and wrong password produce
// the identical ErrInvalidCredentials, so callers cannot enumerate accounts.
func (m *SessionManager) Authenticate(ctx context.Context, username, password string) (string, time.Time, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}
	user, err := m.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrInvalidCredentials
		}
		return "", time.Time{}, storeFailure(err)
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return m.codec.Issue(user.Identity())
}

// Validate parses the token and re-resolves the subject from the store, so a
// deleted user is rejected even while the token itself is still unexpired.
func (m *SessionManager) Validate(ctx context.Context, token string) (Identity, error) {
	claims, err := m.codec.Parse(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	user, err := m.store.FindUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, fmt.Errorf("%w: unknown subject", ErrUnauthenticated)
		}
		return Identity{}, storeFailure(err)
	}
	return user.Identity(), nil
}

// Refresh exchanges a still-valid token for a fresh one. Claims are rebuilt
// from the current store snapshot, not copied, so status changes since
// issuance take effect in the new token.
func (m *SessionManager) Refresh(ctx context.Context, token string) (string, time.Time, error) {
	id, err := m.Validate(ctx, token)
	if err != nil {
		return "", time.Time{}, err
	}
	return m.codec.Issue(id)
}

// Logout always succeeds and changes no server state: issued tokens remain
// valid until expiry and clients simply discard them. There is no
// server-side revocation list.
func (m *SessionManager) Logout(ctx context.Context, token string) error {
	return nil
}
