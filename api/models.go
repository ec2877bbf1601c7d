package api

import (
	"time"

	"github.com/jmcleod/gatekeeper/credential"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateUserRequest is the JSON body for POST /users.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse identifies a user. It is returned from POST /users and
// POST /me/username.
type UserResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// LoginResponse is returned from POST /auth/login. CSRFToken must be
// echoed in X-Auth-CSRF on routes that require a strict session.
type LoginResponse struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	CSRFToken string `json:"csrf_token"`
}

// RevokedResponse reports how many sessions a bulk logout ended.
type RevokedResponse struct {
	Revoked int `json:"revoked"`
}

// MeResponse is returned from GET /me.
type MeResponse struct {
	UserID      string                 `json:"user_id"`
	Username    string                 `json:"username"`
	AuthKind    string                 `json:"auth_kind"`
	Permissions credential.Permissions `json:"permissions"`
}

// ChangePasswordRequest is the JSON body for POST /me/password. The
// current password travels in X-Auth-Pass.
type ChangePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// ChangeUsernameRequest is the JSON body for POST /me/username.
type ChangeUsernameRequest struct {
	NewUsername string `json:"new_username"`
}

// SessionResponse describes one live session.
type SessionResponse struct {
	DisplayID         int32     `json:"display_id"`
	CreatedAt         time.Time `json:"created_at"`
	IdleExpiresAt     time.Time `json:"idle_expires_at"`
	AbsoluteExpiresAt time.Time `json:"absolute_expires_at"`
}

// ListSessionsResponse is returned from GET /sessions.
type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// CreateAPIKeyRequest is the JSON body for POST /api-keys.
type CreateAPIKeyRequest struct {
	Permissions []credential.Permission `json:"permissions"`
}

// CreateAPIKeyResponse is returned from POST /api-keys. Key is shown only
// once.
type CreateAPIKeyResponse struct {
	Key    string            `json:"key"`
	APIKey credential.APIKey `json:"api_key"`
}

// ListAPIKeysResponse is returned from GET /api-keys.
type ListAPIKeysResponse struct {
	APIKeys []credential.APIKey `json:"api_keys"`
}

// UserPermissionsResponse is returned from the admin permission routes.
type UserPermissionsResponse struct {
	Username    string                 `json:"username"`
	Permissions credential.Permissions `json:"permissions"`
}

// ListPermissionsResponse is returned from GET /admin/permissions.
type ListPermissionsResponse struct {
	Permissions []string `json:"permissions"`
}

// StatsResponse is returned from GET /admin/stats.
type StatsResponse struct {
	Users    int `json:"users"`
	Sessions int `json:"sessions"`
	APIKeys  int `json:"api_keys"`
}

// AuditEntryResponse is one persisted audit event.
type AuditEntryResponse struct {
	ID        string            `json:"id"`
	Event     string            `json:"event"`
	UserID    string            `json:"user_id,omitempty"`
	Username  string            `json:"username,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	CreatedAt string            `json:"created_at"`
}

// ListAuditLogsResponse is returned from GET /admin/audit.
type ListAuditLogsResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
	PaginationMeta
}
