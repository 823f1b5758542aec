package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"cloudrbac.org/internal/auth"
)

type createUserRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Status    string `json:"status"`
}

type updateUserRequest struct {
	Username  *string `json:"username"`
	Email     *string `json:"email"`
	Password  *string `json:"password"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Status    *string `json:"status"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.authorize(w, r, "users", "read"); !ok {
			return
		}
		users, err := a.directory.ListUsers(r.Context())
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		actor, ok := a.authorize(w, r, "users", "create")
		if !ok {
			return
		}
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), actor)
		user, err := a.directory.CreateUser(ctx, auth.NewUser{
			Username:  req.Username,
			Email:     req.Email,
			Password:  req.Password,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Status:    req.Status,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.audit(ctx, "directory.user.create", "user", user.ID, map[string]string{
			"username": user.Username,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleUserByID(w, r, userID)
	case len(parts) == 2 && parts[1] == "roles":
		a.handleUserRoles(w, r, userID)
	case len(parts) == 3 && parts[1] == "roles":
		a.handleUserRoleByID(w, r, userID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserByID(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.authorize(w, r, "users", "read"); !ok {
			return
		}
		user, err := a.directory.GetUser(r.Context(), userID)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPut:
		actor, ok := a.authorize(w, r, "users", "update")
		if !ok {
			return
		}
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), actor)
		user, err := a.directory.UpdateUser(ctx, userID, auth.UserUpdate{
			Username:  req.Username,
			Email:     req.Email,
			Password:  req.Password,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Status:    req.Status,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.audit(ctx, "directory.user.update", "user", user.ID, nil)
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		actor, ok := a.authorize(w, r, "users", "delete")
		if !ok {
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), actor)
		if err := a.directory.DeleteUser(ctx, userID); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.audit(ctx, "directory.user.delete", "user", userID, nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.authorize(w, r, "users", "read"); !ok {
			return
		}
		roles, err := a.directory.RolesOfUser(r.Context(), userID)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		actor, ok := a.authorize(w, r, "users", "update")
		if !ok {
			return
		}
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), actor)
		link, err := a.directory.AssignRole(ctx, userID, req.RoleID)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		a.audit(ctx, "directory.user.assign_role", "user", userID, map[string]string{
			"role_id": link.RoleID,
		})
		writeJSON(w, http.StatusCreated, link)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserRoleByID(w http.ResponseWriter, r *http.Request, userID, roleID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	actor, ok := a.authorize(w, r, "users", "update")
	if !ok {
		return
	}
	ctx := auth.ContextWithIdentity(r.Context(), actor)
	if err := a.directory.RemoveRole(ctx, userID, roleID); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	a.audit(ctx, "directory.user.remove_role", "user", userID, map[string]string{
		"role_id": roleID,
	})
	w.WriteHeader(http.StatusNoContent)
}
