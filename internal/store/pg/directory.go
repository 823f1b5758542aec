package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cloudrbac.org/internal/auth"
	"cloudrbac.org/internal/ids"
)

// Users -----------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, username, email, password_hash, first_name, last_name, status)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+userColumns+`
	`, ids.New(), u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Status)
	created, err := scanUser(row)
	if err != nil {
		return auth.User{}, mapWriteError(err)
	}
	return created, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users
		order by username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd auth.UserUpdate) (auth.User, error) {
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	appendSet := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}
	if upd.Username != nil {
		appendSet("username", *upd.Username)
	}
	if upd.Email != nil {
		appendSet("email", *upd.Email)
	}
	if upd.Password != nil {
		appendSet("password_hash", *upd.Password)
	}
	if upd.FirstName != nil {
		appendSet("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		appendSet("last_name", *upd.LastName)
	}
	if upd.Status != nil {
		appendSet("status", *upd.Status)
	}
	if len(setClauses) == 0 {
		return s.FindUserByID(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`
		update users set %s
		where id = $%d
		returning `+userColumns,
		strings.Join(setClauses, ", "), idx)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return auth.User{}, mapWriteError(err)
	}
	return user, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "users", id)
}

// Roles -----------------------------------------------------------------------

const roleColumns = `id, name, description, level, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (auth.Role, error) {
	var r auth.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Level, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Role{}, err
	}
	return r, nil
}

func (s *Store) CreateRole(ctx context.Context, name, description string, level int) (auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, level)
		values ($1, $2, $3, $4)
		returning `+roleColumns+`
	`, ids.New(), name, description, level)
	role, err := scanRole(row)
	if err != nil {
		return auth.Role{}, mapWriteError(err)
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+roleColumns+`
		from roles
		order by level desc, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (s *Store) GetRole(ctx context.Context, id string) (auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+roleColumns+`
		from roles
		where id = $1
	`, id)
	return scanRole(row)
}

func (s *Store) UpdateRole(ctx context.Context, id string, upd auth.RoleUpdate) (auth.Role, error) {
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", idx))
		args = append(args, *upd.Description)
		idx++
	}
	if upd.Level != nil {
		setClauses = append(setClauses, fmt.Sprintf("level = $%d", idx))
		args = append(args, *upd.Level)
		idx++
	}
	if len(setClauses) == 0 {
		return s.GetRole(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`
		update roles set %s
		where id = $%d
		returning `+roleColumns,
		strings.Join(setClauses, ", "), idx)
	role, err := scanRole(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return auth.Role{}, mapWriteError(err)
	}
	return role, nil
}

// DeleteRole relies on ON DELETE CASCADE to clear user_roles and
// role_permissions rows.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "roles", id)
}

func (s *Store) UsersWithRole(ctx context.Context, roleID string) ([]auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select u.id, u.username, u.email, u.password_hash, u.first_name, u.last_name, u.status, u.created_at, u.updated_at
		from users u
		join user_roles ur on u.id = ur.user_id
		where ur.role_id = $1
		order by u.username
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

// Permissions -----------------------------------------------------------------

const permissionColumns = `id, name, description, resource, action, created_at, updated_at`

func scanPermission(row interface{ Scan(...any) error }) (auth.Permission, error) {
	var p auth.Permission
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Resource, &p.Action, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Permission{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Permission{}, err
	}
	return p, nil
}

func (s *Store) CreatePermission(ctx context.Context, p auth.Permission) (auth.Permission, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into permissions (id, name, description, resource, action)
		values ($1, $2, $3, $4, $5)
		returning `+permissionColumns+`
	`, ids.New(), p.Name, p.Description, p.Resource, p.Action)
	perm, err := scanPermission(row)
	if err != nil {
		return auth.Permission{}, mapWriteError(err)
	}
	return perm, nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+permissionColumns+`
		from permissions
		order by resource, action
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (s *Store) GetPermission(ctx context.Context, id string) (auth.Permission, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+permissionColumns+`
		from permissions
		where id = $1
	`, id)
	return scanPermission(row)
}

func (s *Store) PermissionsByResource(ctx context.Context, resource string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+permissionColumns+`
		from permissions
		where resource = $1
		order by action
	`, resource)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (s *Store) UpdatePermission(ctx context.Context, id string, upd auth.PermissionUpdate) (auth.Permission, error) {
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	appendSet := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}
	if upd.Name != nil {
		appendSet("name", *upd.Name)
	}
	if upd.Description != nil {
		appendSet("description", *upd.Description)
	}
	if upd.Resource != nil {
		appendSet("resource", *upd.Resource)
	}
	if upd.Action != nil {
		appendSet("action", *upd.Action)
	}
	if len(setClauses) == 0 {
		return s.GetPermission(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`
		update permissions set %s
		where id = $%d
		returning `+permissionColumns,
		strings.Join(setClauses, ", "), idx)
	perm, err := scanPermission(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return auth.Permission{}, mapWriteError(err)
	}
	return perm, nil
}

func (s *Store) DeletePermission(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "permissions", id)
}

// Join relations --------------------------------------------------------------

func (s *Store) AssignRole(ctx context.Context, userID, roleID string) (auth.UserRole, error) {
	var assignment auth.UserRole
	err := s.db.QueryRowContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		returning user_id, role_id, assigned_at
	`, userID, roleID).Scan(&assignment.UserID, &assignment.RoleID, &assignment.AssignedAt)
	if err != nil {
		return auth.UserRole{}, mapWriteError(err)
	}
	return assignment, nil
}

func (s *Store) RemoveRole(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) GrantPermission(ctx context.Context, roleID, permissionID string) (auth.RolePermission, error) {
	var grant auth.RolePermission
	err := s.db.QueryRowContext(ctx, `
		insert into role_permissions (role_id, permission_id)
		values ($1, $2)
		returning role_id, permission_id, assigned_at
	`, roleID, permissionID).Scan(&grant.RoleID, &grant.PermissionID, &grant.AssignedAt)
	if err != nil {
		return auth.RolePermission{}, mapWriteError(err)
	}
	return grant, nil
}

func (s *Store) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from role_permissions
		where role_id = $1 and permission_id = $2
	`, roleID, permissionID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) PermissionsOfRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.description, p.resource, p.action, p.created_at, p.updated_at
		from permissions p
		join role_permissions rp on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.resource, p.action
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (s *Store) RolesWithPermission(ctx context.Context, permissionID string) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.level, r.created_at, r.updated_at
		from roles r
		join role_permissions rp on r.id = rp.role_id
		where rp.permission_id = $1
		order by r.level desc, r.name
	`, permissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (s *Store) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where id = $1`, table), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
