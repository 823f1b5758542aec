package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloudrbac.org/internal/auth"
	"cloudrbac.org/internal/store/memory"
)

type testEnv struct {
	store      *memory.Store
	api        *API
	handler    http.Handler
	adminToken string
	bobToken   string
}

// newTestEnv wires the API against the in-memory store with two accounts:
// admin holds every permission through the Admin role, bob has no roles.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	return newTestEnvOver(t, store, store)
}

// newTestEnvOver seeds the fixtures into store but wires the directory
// service over dirStore, which lets tests fail directory operations
// independently of the reads the access gate performs.
func newTestEnvOver(t *testing.T, store *memory.Store, dirStore auth.DirectoryStore) *testEnv {
	t.Helper()
	ctx := context.Background()

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
	directory, err := auth.NewDirectory(dirStore)
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}

	hash, err := auth.HashPassword("admin-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	admin, err := store.CreateUser(ctx, auth.User{
		Username: "admin", Email: "admin@example.com", PasswordHash: hash, Status: auth.UserStatusActive,
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	bobHash, err := auth.HashPassword("bob-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := store.CreateUser(ctx, auth.User{
		Username: "bob", Email: "bob@example.com", PasswordHash: bobHash, Status: auth.UserStatusActive,
	}); err != nil {
		t.Fatalf("create bob: %v", err)
	}

	adminRole, err := store.CreateRole(ctx, auth.RoleAdmin, "", 80)
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	for _, resource := range []string{"users", "roles", "permissions"} {
		for _, action := range []string{"read", "create", "update", "delete"} {
			perm, err := store.CreatePermission(ctx, auth.Permission{
				Name: resource + "." + action, Resource: resource, Action: action,
			})
			if err != nil {
				t.Fatalf("create permission: %v", err)
			}
			if _, err := store.GrantPermission(ctx, adminRole.ID, perm.ID); err != nil {
				t.Fatalf("grant: %v", err)
			}
		}
	}
	if _, err := store.AssignRole(ctx, admin.ID, adminRole.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	api := New(Deps{
		Version:   "test",
		Sessions:  sessions,
		Gate:      gate,
		Resolver:  resolver,
		Directory: directory,
	})
	env := &testEnv{store: store, api: api, handler: api.Handler()}
	env.adminToken = env.login(t, "admin", "admin-pass")
	env.bobToken = env.login(t, "bob", "bob-pass")
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": username, "password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, rec.Code, rec.Body)
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token")
	}
	return resp.Token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %s: %v", rec.Body, err)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "admin", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "ghost", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginDuringStoreOutage(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetError(errors.New("connection refused"))
	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "admin", "password": "admin-pass",
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestListUsersRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/users", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/users", "garbage-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestListUsersForbiddenWithoutPermission(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/users", env.bobToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &resp)
	if resp.Error == "" {
		t.Fatal("forbidden response must carry a reason")
	}
}

func TestAuthorizedStoreOutageIs503(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetError(errors.New("connection reset"))
	rec := env.do(t, http.MethodGet, "/v1/users", env.adminToken, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503, body %s", rec.Code, rec.Body)
	}
}

// listOutageStore fails user listing while everything else, including the
// reads the access gate performs, keeps working.
type listOutageStore struct {
	*memory.Store
	listErr error
}

func (s *listOutageStore) ListUsers(ctx context.Context) ([]auth.User, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.ListUsers(ctx)
}

func TestDirectoryOutageAfterAuthorizeIs503(t *testing.T) {
	store := memory.New()
	outage := &listOutageStore{Store: store}
	env := newTestEnvOver(t, store, outage)

	outage.listErr = errors.New("connection reset")
	rec := env.do(t, http.MethodGet, "/v1/users", env.adminToken, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503, body %s", rec.Code, rec.Body)
	}

	outage.listErr = nil
	rec = env.do(t, http.MethodGet, "/v1/users", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d after recovery, body %s", rec.Code, rec.Body)
	}
}

func TestUserLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/users", env.adminToken, map[string]string{
		"username": "carol", "email": "Carol@Example.com", "password": "carol-pass",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var created auth.User
	decodeBody(t, rec, &created)
	if created.Email != "carol@example.com" || created.Status != auth.UserStatusActive {
		t.Fatalf("created = %+v", created)
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/users/"+created.ID {
		t.Fatalf("location = %q", loc)
	}

	rec = env.do(t, http.MethodGet, "/v1/users/"+created.ID, env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/v1/users/"+created.ID, env.adminToken, map[string]string{
		"status": "suspended",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body)
	}
	var updated auth.User
	decodeBody(t, rec, &updated)
	if updated.Status != auth.UserStatusSuspended {
		t.Fatalf("status = %q", updated.Status)
	}

	rec = env.do(t, http.MethodDelete, "/v1/users/"+created.ID, env.adminToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/users/"+created.ID, env.adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
}

func TestRoleAssignmentFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/roles", env.adminToken, map[string]any{
		"name": "Editor", "description": "writes articles", "level": 10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create role: %d %s", rec.Code, rec.Body)
	}
	var role auth.Role
	decodeBody(t, rec, &role)

	rec = env.do(t, http.MethodPost, "/v1/permissions", env.adminToken, map[string]string{
		"name": "articles.read", "resource": "articles", "action": "read",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create permission: %d %s", rec.Code, rec.Body)
	}
	var perm auth.Permission
	decodeBody(t, rec, &perm)

	rec = env.do(t, http.MethodPost, "/v1/roles/"+role.ID+"/permissions", env.adminToken, map[string]string{
		"permission_id": perm.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("grant: %d %s", rec.Code, rec.Body)
	}

	// Find bob and give him the role.
	rec = env.do(t, http.MethodGet, "/v1/users", env.adminToken, nil)
	var list struct {
		Users []auth.User `json:"users"`
	}
	decodeBody(t, rec, &list)
	var bobID string
	for _, u := range list.Users {
		if u.Username == "bob" {
			bobID = u.ID
		}
	}
	if bobID == "" {
		t.Fatal("bob not found")
	}
	rec = env.do(t, http.MethodPost, "/v1/users/"+bobID+"/roles", env.adminToken, map[string]string{
		"role_id": role.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("assign: %d %s", rec.Code, rec.Body)
	}

	// Bob can now verify his new capability.
	rec = env.do(t, http.MethodPost, "/v1/permissions/check", env.bobToken, map[string]string{
		"resource": "articles", "action": "read",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("check: %d %s", rec.Code, rec.Body)
	}
	var check struct {
		Allowed bool `json:"allowed"`
	}
	decodeBody(t, rec, &check)
	if !check.Allowed {
		t.Fatal("bob should be allowed after assignment")
	}

	// Removing the role revokes the capability.
	rec = env.do(t, http.MethodDelete, "/v1/users/"+bobID+"/roles/"+role.ID, env.adminToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove role: %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/v1/permissions/check", env.bobToken, map[string]string{
		"resource": "articles", "action": "read",
	})
	decodeBody(t, rec, &check)
	if check.Allowed {
		t.Fatal("bob should lose the capability with the role")
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/auth/me", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: %d %s", rec.Code, rec.Body)
	}
	var resp struct {
		Identity  auth.Identity `json:"identity"`
		Roles     []auth.Role   `json:"roles"`
		Resources []string      `json:"resources"`
		IsAdmin   bool          `json:"is_admin"`
	}
	decodeBody(t, rec, &resp)
	if resp.Identity.Username != "admin" || !resp.IsAdmin {
		t.Fatalf("me = %+v", resp)
	}
	if len(resp.Roles) != 1 || resp.Roles[0].Name != auth.RoleAdmin {
		t.Fatalf("roles = %+v", resp.Roles)
	}
	if len(resp.Resources) != 3 {
		t.Fatalf("resources = %v", resp.Resources)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/auth/refresh", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body)
	}
	var resp tokenResponse
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Fatal("empty refreshed token")
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/logout", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: %d %s", rec.Code, rec.Body)
	}
	rec = env.do(t, http.MethodPost, "/v1/auth/logout", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("logout without token: %d", rec.Code)
	}
}

func TestPermissionsByResource(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/permissions/resource/users", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body)
	}
	var resp struct {
		Permissions []auth.Permission `json:"permissions"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Permissions) != 4 {
		t.Fatalf("permissions = %d, want 4", len(resp.Permissions))
	}
	for _, p := range resp.Permissions {
		if p.Resource != "users" {
			t.Fatalf("unexpected resource %q", p.Resource)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodDelete, "/v1/auth/login", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("allow = %q", allow)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
