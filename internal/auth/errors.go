package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers both unknown username and password
	// mismatch; callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrUnauthenticated means the presented token did not resolve to a
	// current user: missing, malformed, expired, bad signature, or the
	// subject no longer exists.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrStoreUnavailable marks adapter failures. A store outage must never
	// masquerade as an authorization decision; handlers map it separately
	// from Forbidden.
	ErrStoreUnavailable = errors.New("auth: store unavailable")
)

// ForbiddenError is returned when a valid identity lacks the required grant.
// The message names the missing (resource, action) pair for diagnostics.
type ForbiddenError struct {
	Resource string
	Action   string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("auth: forbidden: missing permission %s:%s", e.Resource, e.Action)
}

func storeFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// storeResult passes taxonomy errors through untouched and wraps anything
// else as a store failure, so callers see ErrStoreUnavailable for outages
// regardless of which store operation hit them.
func storeResult(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	return storeFailure(err)
}
