package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"cloudrbac.org/internal/auth"
	"cloudrbac.org/internal/obs"
)

type createPermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
}

type updatePermissionRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Resource    *string `json:"resource"`
	Action      *string `json:"action"`
}

type permissionCheckRequest struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.authorize(w, r, "permissions", "read"); !ok {
			return
		}
		perms, err := a.directory.ListPermissions(r.Context())
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
	case http.MethodPost:
		actor, ok := a.authorize(w, r, "permissions", "create")
		if !ok {
			return
		}
		var req createPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), actor)
		perm, err := a.directory.CreatePermission(ctx, auth.Permission{
			Name:        req.Name,
			Description: req.Description,
			Resource:    req.Resource,
			Action:      req.Action,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.audit(ctx, "directory.permission.create", "permission", perm.ID, map[string]string{
			"resource": perm.Resource,
			"action":   perm.Action,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/permissions/%s", perm.ID))
		writeJSON(w, http.StatusCreated, perm)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handlePermissionCheck answers "may I do this" for the calling identity.
// It needs only a valid session, not a permission of its own, so UIs can
// probe before rendering controls.
func (a *API) handlePermissionCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, _, ok := a.identify(w, r)
	if !ok {
		return
	}
	var req permissionCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	resource := strings.TrimSpace(req.Resource)
	action := strings.TrimSpace(req.Action)
	if resource == "" || action == "" {
		writeError(w, r, http.StatusBadRequest, "resource and action are required")
		return
	}
	allowed, err := a.resolver.HasPermission(r.Context(), id.ID, resource, action)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	if allowed {
		obs.RecordAuthzDecision(obs.DecisionAllowed)
	} else {
		obs.RecordAuthzDecision(obs.DecisionForbidden)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed":  allowed,
		"resource": resource,
		"action":   action,
	})
}

func (a *API) handlePermissionScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/permissions/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 2 && parts[0] == "resource":
		a.handlePermissionsByResource(w, r, parts[1])
	case len(parts) == 1:
		a.handlePermissionByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "roles":
		a.handlePermissionRoles(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handlePermissionByID(w http.ResponseWriter, r *http.Request, permissionID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.authorize(w, r, "permissions", "read"); !ok {
			return
		}
		perm, err := a.directory.GetPermission(r.Context(), permissionID)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, perm)
	case http.MethodPut:
		actor, ok := a.authorize(w, r, "permissions", "update")
		if !ok {
			return
		}
		var req updatePermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), actor)
		perm, err := a.directory.UpdatePermission(ctx, permissionID, auth.PermissionUpdate{
			Name:        req.Name,
			Description: req.Description,
			Resource:    req.Resource,
			Action:      req.Action,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.audit(ctx, "directory.permission.update", "permission", perm.ID, nil)
		writeJSON(w, http.StatusOK, perm)
	case http.MethodDelete:
		actor, ok := a.authorize(w, r, "permissions", "delete")
		if !ok {
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), actor)
		if err := a.directory.DeletePermission(ctx, permissionID); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.audit(ctx, "directory.permission.delete", "permission", permissionID, nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handlePermissionsByResource(w http.ResponseWriter, r *http.Request, resource string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.authorize(w, r, "permissions", "read"); !ok {
		return
	}
	perms, err := a.directory.PermissionsByResource(r.Context(), resource)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (a *API) handlePermissionRoles(w http.ResponseWriter, r *http.Request, permissionID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.authorize(w, r, "permissions", "read"); !ok {
		return
	}
	roles, err := a.directory.RolesWithPermission(r.Context(), permissionID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}
