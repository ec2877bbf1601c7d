package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jmcleod/gatekeeper/credential"
)

// Bootstrap ensures an administrator account exists. A missing user is
// created with password; an existing one keeps its password. Either way
// the user is granted every permission the API's routes check.
func (a *API) Bootstrap(username, password string) (uuid.UUID, error) {
	userID, err := a.store.CreateUser(username, password)
	if errors.Is(err, credential.ErrConflict) {
		userID, err = a.store.GetUserIDFromUsername(username)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("bootstrapping admin %q: %w", username, err)
	}
	for _, name := range []string{PermLogin, PermWriteSelf, PermReadSelf, PermWriteAdmin, PermReadAdmin} {
		if err := a.store.GrantPermission(userID, a.perm(name)); err != nil {
			return uuid.Nil, fmt.Errorf("bootstrapping admin %q: %w", username, err)
		}
	}
	a.logger.Info("admin account ready", "component", "api", "username", username, "user_id", userID.String())
	return userID, nil
}

// targetUser resolves the {username} path parameter.
func (a *API) targetUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	username, err := url.PathUnescape(chi.URLParam(r, "username"))
	if err != nil || username == "" {
		writeError(w, http.StatusBadRequest, "invalid username")
		return uuid.Nil, "", false
	}
	userID, err := a.store.GetUserIDFromUsername(username)
	if err != nil {
		a.mapError(w, err)
		return uuid.Nil, "", false
	}
	return userID, username, true
}

// ListRegisteredPermissions handles GET /admin/permissions.
func (a *API) ListRegisteredPermissions(w http.ResponseWriter, r *http.Request) {
	known := a.registry.List()
	resp := ListPermissionsResponse{Permissions: make([]string, 0, len(known))}
	for _, p := range known {
		resp.Permissions = append(resp.Permissions, p.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

// RegisterPermission handles POST /admin/permissions, making a permission
// of another service grantable.
func (a *API) RegisterPermission(w http.ResponseWriter, r *http.Request) {
	p, ok := decodeJSON[credential.Permission](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	if _, err := credential.ParsePermission(p.String()); err != nil {
		a.mapError(w, err)
		return
	}
	a.registry.Register(p)
	writeJSON(w, http.StatusCreated, struct{}{})
}

// ListAuditLogs handles GET /admin/audit. The optional event and user_id
// query parameters filter the newest-first trail before pagination.
func (a *API) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := a.audit.trail.list()
	if err != nil {
		a.mapError(w, err)
		return
	}
	q := r.URL.Query()
	event, userID := q.Get("event"), q.Get("user_id")
	filtered := entries[:0]
	for _, e := range entries {
		if event != "" && string(e.Event) != event {
			continue
		}
		if userID != "" && e.UserID != userID {
			continue
		}
		filtered = append(filtered, e)
	}

	pageEntries, meta := page(r, filtered)
	resp := make([]AuditEntryResponse, 0, len(pageEntries))
	for _, e := range pageEntries {
		resp = append(resp, e.response())
	}
	writeJSON(w, http.StatusOK, ListAuditLogsResponse{Entries: resp, PaginationMeta: meta})
}

// Stats handles GET /admin/stats.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	st := a.store.Stats()
	writeJSON(w, http.StatusOK, StatsResponse{Users: st.Users, Sessions: st.Sessions, APIKeys: st.APIKeys})
}

// DeleteUser handles DELETE /admin/users/{username}.
func (a *API) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := a.targetUser(w, r)
	if !ok {
		return
	}
	if err := a.store.DeleteUser(userID); err != nil {
		a.mapError(w, err)
		return
	}
	out := outcomeFromContext(r.Context())
	a.audit.log(AuditUserDeleted, r, userID.String(), username,
		slog.String("admin", out.Result.Username()))
	writeJSON(w, http.StatusOK, struct{}{})
}

// GetUserPermissions handles GET /admin/users/{username}/permissions.
func (a *API) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := a.targetUser(w, r)
	if !ok {
		return
	}
	perms, err := a.store.GetPermissions(userID)
	if err != nil {
		a.mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserPermissionsResponse{Username: username, Permissions: perms})
}

// GrantUserPermission handles POST /admin/users/{username}/permissions.
// Only registered permissions can be granted.
func (a *API) GrantUserPermission(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := a.targetUser(w, r)
	if !ok {
		return
	}
	p, ok := decodeJSON[credential.Permission](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	if !a.registry.Known(p) {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown permission %q", p.String()))
		return
	}
	if err := a.store.GrantPermission(userID, p); err != nil {
		a.mapError(w, err)
		return
	}
	out := outcomeFromContext(r.Context())
	a.audit.log(AuditPermissionGranted, r, userID.String(), username,
		slog.String("permission", p.String()), slog.String("admin", out.Result.Username()))
	a.writeUserPermissions(w, userID, username)
}

// RevokeUserPermission handles
// DELETE /admin/users/{username}/permissions/{service}/{permission}.
func (a *API) RevokeUserPermission(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := a.targetUser(w, r)
	if !ok {
		return
	}
	p := permissionParam(r)
	if err := a.store.RevokePermission(userID, p); err != nil {
		a.mapError(w, err)
		return
	}
	out := outcomeFromContext(r.Context())
	a.audit.log(AuditPermissionRevoked, r, userID.String(), username,
		slog.String("permission", p.String()), slog.String("admin", out.Result.Username()))
	a.writeUserPermissions(w, userID, username)
}

func (a *API) writeUserPermissions(w http.ResponseWriter, userID uuid.UUID, username string) {
	perms, err := a.store.GetPermissions(userID)
	if err != nil {
		a.mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserPermissionsResponse{Username: username, Permissions: perms})
}
