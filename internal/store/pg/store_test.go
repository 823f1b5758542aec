package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"cloudrbac.org/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func userRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "username", "email", "password_hash", "first_name", "last_name", "status", "created_at", "updated_at",
	}).AddRow("u1", "alice", "alice@example.com", "hash", "Alice", "Smith", "active", now, now)
}

func TestFindUserByUsername(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select id, username, email, password_hash.*from users.*where username").
		WithArgs("alice").
		WillReturnRows(userRows(now))

	user, err := store.FindUserByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindUserByUsername: %v", err)
	}
	if user.ID != "u1" || user.Username != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindUserByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, username, email, password_hash.*from users.*where id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "email", "password_hash", "first_name", "last_name", "status", "created_at", "updated_at",
		}))

	_, err := store.FindUserByID(context.Background(), "missing")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPermissionsOfUserJoin(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select distinct p.id.*from permissions p.*join role_permissions rp.*join user_roles ur").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "resource", "action", "created_at", "updated_at",
		}).
			AddRow("p1", "articles_update", "", "articles", "update", now, now).
			AddRow("p2", "users_read", "", "users", "read", now, now))

	perms, err := store.PermissionsOfUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("PermissionsOfUser: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("expected 2 permissions, got %d", len(perms))
	}
	if perms[0].Resource != "articles" || perms[0].Action != "update" {
		t.Fatalf("unexpected first permission: %+v", perms[0])
	}
}

func TestCreateRoleConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("insert into roles").
		WithArgs(sqlmock.AnyArg(), "Editor", "", 10).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := store.CreateRole(context.Background(), "Editor", "", 10)
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAssignRoleMissingReference(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("insert into user_roles").
		WithArgs("u1", "gone").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	_, err := store.AssignRole(context.Background(), "u1", "gone")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRoleNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from roles where id").
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteRole(context.Background(), "gone"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUserBuildsSetClauses(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	status := "suspended"

	mock.ExpectQuery("update users set status = \\$1, updated_at = now\\(\\).*where id = \\$2").
		WithArgs(status, "u1").
		WillReturnRows(userRows(now))

	if _, err := store.UpdateUser(context.Background(), "u1", auth.UserUpdate{Status: &status}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
