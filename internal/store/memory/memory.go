// Package memory provides an in-memory auth.DirectoryStore. It backs unit
// tests and the demo mode of the API server; data does not survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloudrbac.org/internal/auth"
	"cloudrbac.org/internal/ids"
)

// Store keeps the whole directory in maps guarded by one RWMutex. Join rows
// cascade on delete, mirroring the relational schema's referential actions.
type Store struct {
	mu sync.RWMutex

	users map[string]auth.User
	roles map[string]auth.Role
	perms map[string]auth.Permission

	userRoles map[string]map[string]time.Time // userID -> roleID -> assigned at
	rolePerms map[string]map[string]time.Time // roleID -> permissionID -> assigned at

	now func() time.Time
	err error
}

var _ auth.DirectoryStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:     make(map[string]auth.User),
		roles:     make(map[string]auth.Role),
		perms:     make(map[string]auth.Permission),
		userRoles: make(map[string]map[string]time.Time),
		rolePerms: make(map[string]map[string]time.Time),
		now:       time.Now,
	}
}

// SetError makes every subsequent call fail with err; nil restores normal
// operation. Used to exercise store-outage paths.
func (s *Store) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Identity reads ------------------------------------------------------------

func (s *Store) FindUserByID(ctx context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return auth.User{}, s.err
	}
	user, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return user, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return auth.User{}, s.err
	}
	for _, user := range s.users {
		if user.Username == username {
			return user, nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (s *Store) RolesOfUser(ctx context.Context, userID string) ([]auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	var roles []auth.Role
	for roleID := range s.userRoles[userID] {
		if role, ok := s.roles[roleID]; ok {
			roles = append(roles, role)
		}
	}
	sortRoles(roles)
	return roles, nil
}

func (s *Store) PermissionsOfUser(ctx context.Context, userID string) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	seen := make(map[string]struct{})
	var perms []auth.Permission
	for roleID := range s.userRoles[userID] {
		for permID := range s.rolePerms[roleID] {
			if _, dup := seen[permID]; dup {
				continue
			}
			if perm, ok := s.perms[permID]; ok {
				seen[permID] = struct{}{}
				perms = append(perms, perm)
			}
		}
	}
	sortPermissions(perms)
	return perms, nil
}

// Users ----------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return auth.User{}, s.err
	}
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return auth.User{}, auth.ErrConflict
		}
	}
	now := s.now().UTC()
	u.ID = ids.New()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	users := make([]auth.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd auth.UserUpdate) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return auth.User{}, s.err
	}
	user, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	if upd.Username != nil {
		for otherID, other := range s.users {
			if otherID != id && other.Username == *upd.Username {
				return auth.User{}, auth.ErrConflict
			}
		}
		user.Username = *upd.Username
	}
	if upd.Email != nil {
		user.Email = *upd.Email
	}
	if upd.Password != nil {
		user.PasswordHash = *upd.Password
	}
	if upd.FirstName != nil {
		user.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		user.LastName = *upd.LastName
	}
	if upd.Status != nil {
		user.Status = *upd.Status
	}
	user.UpdatedAt = s.now().UTC()
	s.users[id] = user
	return user, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, id)
	delete(s.userRoles, id)
	return nil
}

// Roles ----------------------------------------------------------------------

func (s *Store) CreateRole(ctx context.Context, name, description string, level int) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return auth.Role{}, s.err
	}
	for _, existing := range s.roles {
		if existing.Name == name {
			return auth.Role{}, auth.ErrConflict
		}
	}
	now := s.now().UTC()
	role := auth.Role{
		ID:          ids.New(),
		Name:        name,
		Description: description,
		Level:       level,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.roles[role.ID] = role
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	roles := make([]auth.Role, 0, len(s.roles))
	for _, r := range s.roles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Level > roles[j].Level })
	return roles, nil
}

func (s *Store) GetRole(ctx context.Context, id string) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return auth.Role{}, s.err
	}
	role, ok := s.roles[id]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	return role, nil
}

func (s *Store) UpdateRole(ctx context.Context, id string, upd auth.RoleUpdate) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return auth.Role{}, s.err
	}
	role, ok := s.roles[id]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	if upd.Name != nil {
		for otherID, other := range s.roles {
			if otherID != id && other.Name == *upd.Name {
				return auth.Role{}, auth.ErrConflict
			}
		}
		role.Name = *upd.Name
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	if upd.Level != nil {
		role.Level = *upd.Level
	}
	role.UpdatedAt = s.now().UTC()
	s.roles[id] = role
	return role, nil
}

func (s *Store) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.roles[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.roles, id)
	delete(s.rolePerms, id)
	for userID := range s.userRoles {
		delete(s.userRoles[userID], id)
	}
	return nil
}

func (s *Store) UsersWithRole(ctx context.Context, roleID string) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	var users []auth.User
	for userID, assigned := range s.userRoles {
		if _, ok := assigned[roleID]; !ok {
			continue
		}
		if user, ok := s.users[userID]; ok {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// Permissions ----------------------------------------------------------------

func (s *Store) CreatePermission(ctx context.Context, p auth.Permission) (auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return auth.Permission{}, s.err
	}
	for _, existing := range s.perms {
		if existing.Name == p.Name {
			return auth.Permission{}, auth.ErrConflict
		}
	}
	now := s.now().UTC()
	p.ID = ids.New()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.perms[p.ID] = p
	return p, nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	perms := make([]auth.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		perms = append(perms, p)
	}
	sortPermissions(perms)
	return perms, nil
}

func (s *Store) GetPermission(ctx context.Context, id string) (auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return auth.Permission{}, s.err
	}
	perm, ok := s.perms[id]
	if !ok {
		return auth.Permission{}, auth.ErrNotFound
	}
	return perm, nil
}

func (s *Store) PermissionsByResource(ctx context.Context, resource string) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	var perms []auth.Permission
	for _, p := range s.perms {
		if p.Resource == resource {
			perms = append(perms, p)
		}
	}
	sortPermissions(perms)
	return perms, nil
}

func (s *Store) UpdatePermission(ctx context.Context, id string, upd auth.PermissionUpdate) (auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return auth.Permission{}, s.err
	}
	perm, ok := s.perms[id]
	if !ok {
		return auth.Permission{}, auth.ErrNotFound
	}
	if upd.Name != nil {
		for otherID, other := range s.perms {
			if otherID != id && other.Name == *upd.Name {
				return auth.Permission{}, auth.ErrConflict
			}
		}
		perm.Name = *upd.Name
	}
	if upd.Description != nil {
		perm.Description = *upd.Description
	}
	if upd.Resource != nil {
		perm.Resource = *upd.Resource
	}
	if upd.Action != nil {
		perm.Action = *upd.Action
	}
	perm.UpdatedAt = s.now().UTC()
	s.perms[id] = perm
	return perm, nil
}

func (s *Store) DeletePermission(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.perms[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.perms, id)
	for roleID := range s.rolePerms {
		delete(s.rolePerms[roleID], id)
	}
	return nil
}

// Join relations -------------------------------------------------------------

func (s *Store) AssignRole(ctx context.Context, userID, roleID string) (auth.UserRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return auth.UserRole{}, s.err
	}
	if _, ok := s.users[userID]; !ok {
		return auth.UserRole{}, auth.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return auth.UserRole{}, auth.ErrNotFound
	}
	if s.userRoles[userID] == nil {
		s.userRoles[userID] = make(map[string]time.Time)
	}
	if _, dup := s.userRoles[userID][roleID]; dup {
		return auth.UserRole{}, auth.ErrConflict
	}
	assignedAt := s.now().UTC()
	s.userRoles[userID][roleID] = assignedAt
	return auth.UserRole{UserID: userID, RoleID: roleID, AssignedAt: assignedAt}, nil
}

func (s *Store) RemoveRole(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.userRoles[userID][roleID]; !ok {
		return auth.ErrNotFound
	}
	delete(s.userRoles[userID], roleID)
	return nil
}

func (s *Store) GrantPermission(ctx context.Context, roleID, permissionID string) (auth.RolePermission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return auth.RolePermission{}, s.err
	}
	if _, ok := s.roles[roleID]; !ok {
		return auth.RolePermission{}, auth.ErrNotFound
	}
	if _, ok := s.perms[permissionID]; !ok {
		return auth.RolePermission{}, auth.ErrNotFound
	}
	if s.rolePerms[roleID] == nil {
		s.rolePerms[roleID] = make(map[string]time.Time)
	}
	if _, dup := s.rolePerms[roleID][permissionID]; dup {
		return auth.RolePermission{}, auth.ErrConflict
	}
	assignedAt := s.now().UTC()
	s.rolePerms[roleID][permissionID] = assignedAt
	return auth.RolePermission{RoleID: roleID, PermissionID: permissionID, AssignedAt: assignedAt}, nil
}

func (s *Store) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.rolePerms[roleID][permissionID]; !ok {
		return auth.ErrNotFound
	}
	delete(s.rolePerms[roleID], permissionID)
	return nil
}

func (s *Store) PermissionsOfRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	var perms []auth.Permission
	for permID := range s.rolePerms[roleID] {
		if perm, ok := s.perms[permID]; ok {
			perms = append(perms, perm)
		}
	}
	sortPermissions(perms)
	return perms, nil
}

func (s *Store) RolesWithPermission(ctx context.Context, permissionID string) ([]auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	var roles []auth.Role
	for roleID, granted := range s.rolePerms {
		if _, ok := granted[permissionID]; !ok {
			continue
		}
		if role, ok := s.roles[roleID]; ok {
			roles = append(roles, role)
		}
	}
	sortRoles(roles)
	return roles, nil
}

func sortRoles(roles []auth.Role) {
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
}

func sortPermissions(perms []auth.Permission) {
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Resource != perms[j].Resource {
			return perms[i].Resource < perms[j].Resource
		}
		return perms[i].Action < perms[j].Action
	})
}
