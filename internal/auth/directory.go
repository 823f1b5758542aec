package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Directory provides the administrative surface over users, roles,
// permissions and the two join relations. It validates and normalizes input,
// hashes passwords, and delegates persistence to the store. Store errors
// outside the taxonomy come back wrapped in ErrStoreUnavailable.
type Directory struct {
	store DirectoryStore
}

// NewDirectory constructs the directory service.
func NewDirectory(store DirectoryStore) (*Directory, error) {
	if store == nil {
		return nil, errors.New("auth: directory store is required")
	}
	return &Directory{store: store}, nil
}

// Users ----------------------------------------------------------------------

func (d *Directory) CreateUser(ctx context.Context, input NewUser) (User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.Password) == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	status, err := normalizeStatus(input.Status)
	if err != nil {
		return User{}, err
	}
	hash, err := HashPassword(input.Password)
	if err != nil {
		return User{}, err
	}
	user, err := d.store.CreateUser(ctx, User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Status:       status,
	})
	return user, storeResult(err)
}

func (d *Directory) ListUsers(ctx context.Context) ([]User, error) {
	users, err := d.store.ListUsers(ctx)
	return users, storeResult(err)
}

func (d *Directory) GetUser(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := d.store.FindUserByID(ctx, id)
	return user, storeResult(err)
}

func (d *Directory) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if username == "" {
			return User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
		}
		upd.Username = &username
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	if upd.Status != nil {
		status, err := normalizeStatus(*upd.Status)
		if err != nil {
			return User{}, err
		}
		upd.Status = &status
	}
	if upd.Password != nil {
		pw := strings.TrimSpace(*upd.Password)
		if pw == "" {
			return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
		}
		hash, err := HashPassword(pw)
		if err != nil {
			return User{}, err
		}
		upd.Password = &hash
	}
	user, err := d.store.UpdateUser(ctx, id, upd)
	return user, storeResult(err)
}

func (d *Directory) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return storeResult(d.store.DeleteUser(ctx, id))
}

// Roles ----------------------------------------------------------------------

func (d *Directory) CreateRole(ctx context.Context, name, description string, level int) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if level < 0 {
		return Role{}, fmt.Errorf("%w: level must not be negative", ErrInvalidInput)
	}
	role, err := d.store.CreateRole(ctx, name, strings.TrimSpace(description), level)
	return role, storeResult(err)
}

func (d *Directory) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := d.store.ListRoles(ctx)
	return roles, storeResult(err)
}

func (d *Directory) GetRole(ctx context.Context, id string) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	role, err := d.store.GetRole(ctx, id)
	return role, storeResult(err)
}

func (d *Directory) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	if upd.Level != nil && *upd.Level < 0 {
		return Role{}, fmt.Errorf("%w: level must not be negative", ErrInvalidInput)
	}
	role, err := d.store.UpdateRole(ctx, id, upd)
	return role, storeResult(err)
}

// DeleteRole removes the role; the store cascades the user_roles and
// role_permissions rows so no dangling joins remain.
func (d *Directory) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return storeResult(d.store.DeleteRole(ctx, id))
}

func (d *Directory) RolesOfUser(ctx context.Context, userID string) ([]Role, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	roles, err := d.store.RolesOfUser(ctx, userID)
	return roles, storeResult(err)
}

func (d *Directory) UsersWithRole(ctx context.Context, roleID string) ([]User, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	users, err := d.store.UsersWithRole(ctx, roleID)
	return users, storeResult(err)
}

// Permissions ----------------------------------------------------------------

func (d *Directory) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Resource = strings.TrimSpace(p.Resource)
	p.Action = strings.TrimSpace(p.Action)
	p.Description = strings.TrimSpace(p.Description)
	if p.Name == "" {
		return Permission{}, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	if p.Resource == "" || p.Action == "" {
		return Permission{}, fmt.Errorf("%w: resource and action are required", ErrInvalidInput)
	}
	perm, err := d.store.CreatePermission(ctx, p)
	return perm, storeResult(err)
}

func (d *Directory) ListPermissions(ctx context.Context) ([]Permission, error) {
	perms, err := d.store.ListPermissions(ctx)
	return perms, storeResult(err)
}

func (d *Directory) GetPermission(ctx context.Context, id string) (Permission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Permission{}, fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	perm, err := d.store.GetPermission(ctx, id)
	return perm, storeResult(err)
}

func (d *Directory) PermissionsByResource(ctx context.Context, resource string) ([]Permission, error) {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, fmt.Errorf("%w: resource is required", ErrInvalidInput)
	}
	perms, err := d.store.PermissionsByResource(ctx, resource)
	return perms, storeResult(err)
}

func (d *Directory) UpdatePermission(ctx context.Context, id string, upd PermissionUpdate) (Permission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Permission{}, fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Permission{}, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Resource != nil {
		resource := strings.TrimSpace(*upd.Resource)
		if resource == "" {
			return Permission{}, fmt.Errorf("%w: resource is required", ErrInvalidInput)
		}
		upd.Resource = &resource
	}
	if upd.Action != nil {
		action := strings.TrimSpace(*upd.Action)
		if action == "" {
			return Permission{}, fmt.Errorf("%w: action is required", ErrInvalidInput)
		}
		upd.Action = &action
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	perm, err := d.store.UpdatePermission(ctx, id, upd)
	return perm, storeResult(err)
}

func (d *Directory) DeletePermission(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	return storeResult(d.store.DeletePermission(ctx, id))
}

// Join relations -------------------------------------------------------------

func (d *Directory) AssignRole(ctx context.Context, userID, roleID string) (UserRole, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return UserRole{}, fmt.Errorf("%w: user id and role id are required", ErrInvalidInput)
	}
	link, err := d.store.AssignRole(ctx, userID, roleID)
	return link, storeResult(err)
}

func (d *Directory) RemoveRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user id and role id are required", ErrInvalidInput)
	}
	return storeResult(d.store.RemoveRole(ctx, userID, roleID))
}

func (d *Directory) GrantPermission(ctx context.Context, roleID, permissionID string) (RolePermission, error) {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return RolePermission{}, fmt.Errorf("%w: role id and permission id are required", ErrInvalidInput)
	}
	grant, err := d.store.GrantPermission(ctx, roleID, permissionID)
	return grant, storeResult(err)
}

func (d *Directory) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return fmt.Errorf("%w: role id and permission id are required", ErrInvalidInput)
	}
	return storeResult(d.store.RevokePermission(ctx, roleID, permissionID))
}

func (d *Directory) PermissionsOfRole(ctx context.Context, roleID string) ([]Permission, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	perms, err := d.store.PermissionsOfRole(ctx, roleID)
	return perms, storeResult(err)
}

func (d *Directory) RolesWithPermission(ctx context.Context, permissionID string) ([]Role, error) {
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return nil, fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	roles, err := d.store.RolesWithPermission(ctx, permissionID)
	return roles, storeResult(err)
}

func normalizeStatus(status string) (string, error) {
	status = strings.TrimSpace(strings.ToLower(status))
	if status == "" {
		return UserStatusActive, nil
	}
	switch status {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
}
