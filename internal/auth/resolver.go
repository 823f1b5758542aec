package auth

import (
	"context"
	"errors"
	"strings"
)

// Admin predicate role names. The check is an exact, case-sensitive name
// match: a role named "Administrator", whatever its level, does not satisfy
// IsAdmin.
const (
	RoleSuperAdmin = "Super Admin"
	RoleAdmin      = "Admin"
)

// Resolver evaluates role and permission predicates over the graph reachable
// from a user. Every call is a read-only projection of the store snapshot at
// call time; nothing is cached across calls.
type Resolver struct {
	store Store
}

// NewResolver wires the resolver to its store.
func NewResolver(store Store) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	return &Resolver{store: store}, nil
}

// HasPermission reports whether any role assigned to the user grants a
// permission with exactly this (resource, action) pair. Permissions attach to
// roles only; there is no direct user→permission relation.
func (r *Resolver) HasPermission(ctx context.Context, userID, resource, action string) (bool, error) {
	perms, err := r.store.PermissionsOfUser(ctx, userID)
	if err != nil {
		return false, storeFailure(err)
	}
	for _, p := range perms {
		if p.Resource == resource && p.Action == action {
			return true, nil
		}
	}
	return false, nil
}

// HasRole reports whether roleName is among the user's assigned role names.
func (r *Resolver) HasRole(ctx context.Context, userID, roleName string) (bool, error) {
	roles, err := r.store.RolesOfUser(ctx, userID)
	if err != nil {
		return false, storeFailure(err)
	}
	for _, role := range roles {
		if role.Name == roleName {
			return true, nil
		}
	}
	return false, nil
}

// HasAnyRole reports whether the user holds at least one of the names. An
// empty requested set never matches.
func (r *Resolver) HasAnyRole(ctx context.Context, userID string, roleNames []string) (bool, error) {
	if len(roleNames) == 0 {
		return false, nil
	}
	roles, err := r.store.RolesOfUser(ctx, userID)
	if err != nil {
		return false, storeFailure(err)
	}
	held := roleNameSet(roles)
	for _, name := range roleNames {
		if _, ok := held[name]; ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllRoles reports whether every requested name is held. Duplicates in the
// request do not inflate the requirement, and an empty request is vacuously
// true.
func (r *Resolver) HasAllRoles(ctx context.Context, userID string, roleNames []string) (bool, error) {
	if len(roleNames) == 0 {
		return true, nil
	}
	roles, err := r.store.RolesOfUser(ctx, userID)
	if err != nil {
		return false, storeFailure(err)
	}
	held := roleNameSet(roles)
	for _, name := range roleNames {
		if _, ok := held[name]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// IsAdmin reports whether the user holds the "Super Admin" or "Admin" role by
// name. Deliberately not level-based.
func (r *Resolver) IsAdmin(ctx context.Context, userID string) (bool, error) {
	roles, err := r.store.RolesOfUser(ctx, userID)
	if err != nil {
		return false, storeFailure(err)
	}
	for _, role := range roles {
		if role.Name == RoleSuperAdmin || role.Name == RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

// CanAccessResource reports whether any of the user's permissions touches the
// resource, regardless of action.
func (r *Resolver) CanAccessResource(ctx context.Context, userID, resource string) (bool, error) {
	perms, err := r.store.PermissionsOfUser(ctx, userID)
	if err != nil {
		return false, storeFailure(err)
	}
	for _, p := range perms {
		if p.Resource == resource {
			return true, nil
		}
	}
	return false, nil
}

// AccessibleResources returns the distinct resource tags across the user's
// permission set, in first-seen order.
func (r *Resolver) AccessibleResources(ctx context.Context, userID string) ([]string, error) {
	perms, err := r.store.PermissionsOfUser(ctx, userID)
	if err != nil {
		return nil, storeFailure(err)
	}
	seen := make(map[string]struct{}, len(perms))
	var resources []string
	for _, p := range perms {
		resource := strings.TrimSpace(p.Resource)
		if resource == "" {
			continue
		}
		if _, ok := seen[resource]; ok {
			continue
		}
		seen[resource] = struct{}{}
		resources = append(resources, resource)
	}
	return resources, nil
}

// PermissionLevel returns the maximum level among the user's roles, or 0 for
// a user with no roles.
func (r *Resolver) PermissionLevel(ctx context.Context, userID string) (int, error) {
	roles, err := r.store.RolesOfUser(ctx, userID)
	if err != nil {
		return 0, storeFailure(err)
	}
	maxLevel := 0
	for _, role := range roles {
		if role.Level > maxLevel {
			maxLevel = role.Level
		}
	}
	return maxLevel, nil
}

func roleNameSet(roles []Role) map[string]struct{} {
	set := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		set[role.Name] = struct{}{}
	}
	return set
}
