package auth_test

import (
	"context"
	"errors"
	"testing"

	"cloudrbac.org/internal/auth"
	"cloudrbac.org/internal/store/memory"
)

func newGateFixture(t *testing.T) (*memory.Store, *auth.Gate, string) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	codec, err := auth.NewTokenCodec([]byte("test-secret"))
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	sessions, err := auth.NewSessionManager(store, codec)
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	resolver, err := auth.NewResolver(store)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	gate, err := auth.NewGate(sessions, resolver)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}

	hash, err := auth.HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := store.CreateUser(ctx, auth.User{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Status:       auth.UserStatusActive,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	role, err := store.CreateRole(ctx, "Editor", "", 10)
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	perm, err := store.CreatePermission(ctx, auth.Permission{Name: "articles.read", Resource: "articles", Action: "read"})
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	if _, err := store.GrantPermission(ctx, role.ID, perm.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := store.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	token, _, err := sessions.Authenticate(ctx, "alice", "s3cret-pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return store, gate, token
}

func TestGateAllows(t *testing.T) {
	_, gate, token := newGateFixture(t)

	id, err := gate.Authorize(context.Background(), token, "articles", "read")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if id.Username != "alice" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestGateForbidsWithReason(t *testing.T) {
	_, gate, token := newGateFixture(t)

	_, err := gate.Authorize(context.Background(), token, "articles", "delete")
	var forbidden *auth.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("err = %v, want ForbiddenError", err)
	}
	if forbidden.Resource != "articles" || forbidden.Action != "delete" {
		t.Fatalf("reason = %+v", forbidden)
	}
	if errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatal("forbidden must not be conflated with unauthenticated")
	}
}

func TestGateRejectsBadToken(t *testing.T) {
	_, gate, _ := newGateFixture(t)

	_, err := gate.Authorize(context.Background(), "not-a-token", "articles", "read")
	if !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestGateStoreOutage(t *testing.T) {
	store, gate, token := newGateFixture(t)

	store.SetError(errors.New("connection refused"))
	_, err := gate.Authorize(context.Background(), token, "articles", "read")
	if !errors.Is(err, auth.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	var forbidden *auth.ForbiddenError
	if errors.As(err, &forbidden) {
		t.Fatal("store outage must not be reported as forbidden")
	}
}
