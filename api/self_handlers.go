package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/gatekeeper/credential"
)

// Me handles GET /me.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	out := outcomeFromContext(r.Context())
	perms, err := a.store.GetPermissions(out.Result.UserID())
	if err != nil {
		a.mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{
		UserID:      out.Result.UserID().String(),
		Username:    out.Result.Username(),
		AuthKind:    string(out.Kind),
		Permissions: perms,
	})
}

// ChangePassword handles POST /me/password. Every other session of the
// caller is ended; the current one stays valid.
func (a *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ChangePasswordRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if !checkPassword(w, req.NewPassword) {
		return
	}
	out := outcomeFromContext(r.Context())
	if err := a.store.ChangePassword(out.Result.UserID(), req.NewPassword); err != nil {
		a.mapError(w, err)
		return
	}
	n, err := a.store.RevokeOtherSessions(out.SessionToken)
	if err != nil {
		a.mapError(w, err)
		return
	}
	a.audit.log(AuditPasswordChanged, r, out.Result.UserID().String(), out.Result.Username(),
		slog.Int("revoked", n))
	writeJSON(w, http.StatusOK, RevokedResponse{Revoked: n})
}

// ChangeUsername handles POST /me/username.
func (a *API) ChangeUsername(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ChangeUsernameRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.NewUsername == "" {
		writeError(w, http.StatusBadRequest, "new_username is required")
		return
	}
	out := outcomeFromContext(r.Context())
	if err := a.store.RenameUser(out.Result.UserID(), req.NewUsername); err != nil {
		a.mapError(w, err)
		return
	}
	a.audit.log(AuditUserRenamed, r, out.Result.UserID().String(), req.NewUsername,
		slog.String("previous_username", out.Result.Username()))
	writeJSON(w, http.StatusOK, UserResponse{UserID: out.Result.UserID().String(), Username: req.NewUsername})
}

// ListSessions handles GET /sessions.
func (a *API) ListSessions(w http.ResponseWriter, r *http.Request) {
	out := outcomeFromContext(r.Context())
	sessions, err := a.store.ListSessions(out.Result.UserID())
	if err != nil {
		a.mapError(w, err)
		return
	}
	resp := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, SessionResponse{
			DisplayID:         s.DisplayID,
			CreatedAt:         s.CreatedAt,
			IdleExpiresAt:     s.IdleExpiresAt,
			AbsoluteExpiresAt: s.AbsoluteExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: resp})
}

// RevokeSession handles DELETE /sessions/{displayID}.
func (a *API) RevokeSession(w http.ResponseWriter, r *http.Request) {
	displayID, err := strconv.ParseInt(chi.URLParam(r, "displayID"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "displayID must be a 32-bit integer")
		return
	}
	out := outcomeFromContext(r.Context())
	if err := a.store.RevokeSessionByDisplayID(out.Result.UserID(), int32(displayID)); err != nil {
		a.mapError(w, err)
		return
	}
	a.audit.log(AuditSessionRevoked, r, out.Result.UserID().String(), out.Result.Username(),
		slog.Int64("display_id", displayID))
	writeJSON(w, http.StatusOK, struct{}{})
}

// ListAPIKeys handles GET /api-keys.
func (a *API) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	out := outcomeFromContext(r.Context())
	keys, err := a.store.ListAPIKeys(out.Result.UserID())
	if err != nil {
		a.mapError(w, err)
		return
	}
	if keys == nil {
		keys = []credential.APIKey{}
	}
	writeJSON(w, http.StatusOK, ListAPIKeysResponse{APIKeys: keys})
}

// CreateAPIKey handles POST /api-keys. The key's scope may name any
// registered permission, but the key only authorizes what its owner also
// holds at the time of use.
func (a *API) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateAPIKeyRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	scope := credential.NewPermissions()
	for _, p := range req.Permissions {
		if !a.registry.Known(p) {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown permission %q", p.String()))
			return
		}
		scope.Add(p)
	}

	out := outcomeFromContext(r.Context())
	token, key, err := a.store.CreateAPIKey(out.Result.UserID(), scope)
	if err != nil {
		a.mapError(w, err)
		return
	}
	a.audit.log(AuditAPIKeyCreated, r, out.Result.UserID().String(), out.Result.Username(),
		slog.String("display_id", key.DisplayID))
	writeJSON(w, http.StatusCreated, CreateAPIKeyResponse{Key: token, APIKey: key})
}

// DeleteAPIKey handles DELETE /api-keys/{displayID}.
func (a *API) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	displayID, ok := displayIDParam(w, r)
	if !ok {
		return
	}
	out := outcomeFromContext(r.Context())
	if err := a.store.DeleteAPIKey(out.Result.UserID(), displayID); err != nil {
		a.mapError(w, err)
		return
	}
	a.audit.log(AuditAPIKeyDeleted, r, out.Result.UserID().String(), out.Result.Username(),
		slog.String("display_id", displayID))
	writeJSON(w, http.StatusOK, struct{}{})
}

// GrantAPIKeyPermission handles POST /api-keys/{displayID}/permissions.
// Only permissions the caller holds can be added.
func (a *API) GrantAPIKeyPermission(w http.ResponseWriter, r *http.Request) {
	displayID, ok := displayIDParam(w, r)
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
	out := outcomeFromContext(r.Context())
	if err := a.store.GrantAPIKeyPermission(out.Result.UserID(), displayID, p); err != nil {
		a.mapError(w, err)
		return
	}
	a.audit.log(AuditAPIKeyPermissionGranted, r, out.Result.UserID().String(), out.Result.Username(),
		slog.String("display_id", displayID), slog.String("permission", p.String()))
	writeJSON(w, http.StatusOK, struct{}{})
}

// RevokeAPIKeyPermission handles
// DELETE /api-keys/{displayID}/permissions/{service}/{permission}.
func (a *API) RevokeAPIKeyPermission(w http.ResponseWriter, r *http.Request) {
	displayID, ok := displayIDParam(w, r)
	if !ok {
		return
	}
	p := permissionParam(r)
	out := outcomeFromContext(r.Context())
	if err := a.store.RevokeAPIKeyPermission(out.Result.UserID(), displayID, p); err != nil {
		a.mapError(w, err)
		return
	}
	a.audit.log(AuditAPIKeyPermissionRevoked, r, out.Result.UserID().String(), out.Result.Username(),
		slog.String("display_id", displayID), slog.String("permission", p.String()))
	writeJSON(w, http.StatusOK, struct{}{})
}

// displayIDParam returns the unescaped {displayID}. API key display ids
// are base64 fragments and may arrive percent-encoded.
func displayIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "displayID"))
	if err != nil || id == "" {
		writeError(w, http.StatusBadRequest, "invalid displayID")
		return "", false
	}
	return id, true
}

func permissionParam(r *http.Request) credential.Permission {
	service, _ := url.PathUnescape(chi.URLParam(r, "service"))
	name, _ := url.PathUnescape(chi.URLParam(r, "permission"))
	return credential.Permission{Service: service, Name: name}
}
