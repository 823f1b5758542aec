package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"cloudrbac.org/internal/auth"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Level       int    `json:"level"`
}

type updateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Level       *int    `json:"level"`
}

type grantPermissionRequest struct {
	PermissionID string `json:"permission_id"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.authorize(w, r, "roles", "read"); !ok {
			return
		}
		roles, err := a.directory.ListRoles(r.Context())
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		actor, ok := a.authorize(w, r, "roles", "create")
		if !ok {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), actor)
		role, err := a.directory.CreateRole(ctx, req.Name, req.Description, req.Level)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.audit(ctx, "directory.role.create", "role", role.ID, map[string]string{
			"name": role.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	roleID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleRoleByID(w, r, roleID)
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleRolePermissions(w, r, roleID)
	case len(parts) == 3 && parts[1] == "permissions":
		a.handleRolePermissionByID(w, r, roleID, parts[2])
	case len(parts) == 2 && parts[1] == "users":
		a.handleRoleUsers(w, r, roleID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRoleByID(w http.ResponseWriter, r *http.Request, roleID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.authorize(w, r, "roles", "read"); !ok {
			return
		}
		role, err := a.directory.GetRole(r.Context(), roleID)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPut:
		actor, ok := a.authorize(w, r, "roles", "update")
		if !ok {
			return
		}
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), actor)
		role, err := a.directory.UpdateRole(ctx, roleID, auth.RoleUpdate{
			Name:        req.Name,
			Description: req.Description,
			Level:       req.Level,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.audit(ctx, "directory.role.update", "role", role.ID, nil)
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		actor, ok := a.authorize(w, r, "roles", "delete")
		if !ok {
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), actor)
		if err := a.directory.DeleteRole(ctx, roleID); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.audit(ctx, "directory.role.delete", "role", roleID, nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.authorize(w, r, "roles", "read"); !ok {
			return
		}
		perms, err := a.directory.PermissionsOfRole(r.Context(), roleID)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
	case http.MethodPost:
		actor, ok := a.authorize(w, r, "roles", "update")
		if !ok {
			return
		}
		var req grantPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), actor)
		link, err := a.directory.GrantPermission(ctx, roleID, req.PermissionID)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.audit(ctx, "directory.role.grant_permission", "role", roleID, map[string]string{
			"permission_id": link.PermissionID,
		})
		writeJSON(w, http.StatusCreated, link)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRolePermissionByID(w http.ResponseWriter, r *http.Request, roleID, permissionID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	actor, ok := a.authorize(w, r, "roles", "update")
	if !ok {
		return
	}
	ctx := auth.ContextWithIdentity(r.Context(), actor)
	if err := a.directory.RevokePermission(ctx, roleID, permissionID); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	a.audit(ctx, "directory.role.revoke_permission", "role", roleID, map[string]string{
		"permission_id": permissionID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRoleUsers(w http.ResponseWriter, r *http.Request, roleID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.authorize(w, r, "roles", "read"); !ok {
		return
	}
	users, err := a.directory.UsersWithRole(r.Context(), roleID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}
