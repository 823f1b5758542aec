package auth

import "context"

// Store is the narrow read interface the session manager and authorization
// resolver consume. Implementations return ErrNotFound for missing records;
// any other error is treated as a store failure and never as a decision.
type Store interface {
	FindUserByID(ctx context.Context, id string) (User, error)
	FindUserByUsername(ctx context.Context, username string) (User, error)

	// RolesOfUser returns the roles currently assigned to the user. A role
	// deleted mid-resolution simply stops appearing; callers must not assume
	// referential consistency beyond a single read.
	RolesOfUser(ctx context.Context, userID string) ([]Role, error)

	// PermissionsOfUser returns the de-duplicated union of permissions
	// granted through all the user's roles (the user→role→permission join).
	PermissionsOfUser(ctx context.Context, userID string) ([]Permission, error)
}

// DirectoryStore extends Store with the administrative write surface used by
// the Directory service.
type DirectoryStore interface {
	Store

	CreateUser(ctx context.Context, u User) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error)
	DeleteUser(ctx context.Context, id string) error

	CreateRole(ctx context.Context, name, description string, level int) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	UpdateRole(ctx context.Context, id string, upd RoleUpdate) (Role, error)
	DeleteRole(ctx context.Context, id string) error

	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id string) (Permission, error)
	PermissionsByResource(ctx context.Context, resource string) ([]Permission, error)
	UpdatePermission(ctx context.Context, id string, upd PermissionUpdate) (Permission, error)
	DeletePermission(ctx context.Context, id string) error

	AssignRole(ctx context.Context, userID, roleID string) (UserRole, error)
	RemoveRole(ctx context.Context, userID, roleID string) error
	UsersWithRole(ctx context.Context, roleID string) ([]User, error)

	GrantPermission(ctx context.Context, roleID, permissionID string) (RolePermission, error)
	RevokePermission(ctx context.Context, roleID, permissionID string) error
	PermissionsOfRole(ctx context.Context, roleID string) ([]Permission, error)
	RolesWithPermission(ctx context.Context, permissionID string) ([]Role, error)
}
