package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess            AuditEvent = "login_success"
	AuditLoginFailure            AuditEvent = "login_failure"
	AuditLoginRateLimited        AuditEvent = "login_rate_limited"
	AuditUserCreated             AuditEvent = "user_created"
	AuditUserDeleted             AuditEvent = "user_deleted"
	AuditUserRenamed             AuditEvent = "user_renamed"
	AuditLogout                  AuditEvent = "logout"
	AuditLogoutAll               AuditEvent = "logout_all"
	AuditLogoutOthers            AuditEvent = "logout_others"
	AuditSessionRevoked          AuditEvent = "session_revoked"
	AuditPasswordChanged         AuditEvent = "password_changed"
	AuditAPIKeyCreated           AuditEvent = "api_key_created"
	AuditAPIKeyDeleted           AuditEvent = "api_key_deleted"
	AuditAPIKeyPermissionGranted AuditEvent = "api_key_permission_granted"
	AuditAPIKeyPermissionRevoked AuditEvent = "api_key_permission_revoked"
	AuditPermissionGranted       AuditEvent = "permission_granted"
	AuditPermissionRevoked       AuditEvent = "permission_revoked"
	AuditInternalCheckFailed     AuditEvent = "internal_check_failed"
)

// auditLogger writes security audit events to slog, the persistent trail
// and, when configured, an external webhook.
type auditLogger struct {
	logger   *slog.Logger
	metrics  *metricsCollector
	trail    *auditTrail
	webhook  *auditWebhook
	// clientIP resolves the caller's address, honoring trusted proxies.
	clientIP func(*http.Request) string
	now      func() time.Time
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger:   logger.With("component", "audit"),
		clientIP: extractClientIP,
		now:      time.Now,
	}
}

// log writes a structured audit entry. userID and username are empty
// for events without an established identity.
func (al *auditLogger) log(event AuditEvent, r *http.Request, userID, username string, attrs ...slog.Attr) {
	now := al.now().UTC()
	clientIP := al.clientIP(r)
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("client_ip", clientIP),
		slog.String("timestamp", now.Format(time.RFC3339)),
	}
	if userID != "" {
		baseAttrs = append(baseAttrs, slog.String("user_id", userID))
	}
	if username != "" {
		baseAttrs = append(baseAttrs, slog.String("username", username))
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)

	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}

	// Version 7 ids sort by creation time.
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	entry := auditEntry{
		ID:        id.String(),
		Event:     event,
		UserID:    userID,
		Username:  username,
		ClientIP:  clientIP,
		Attrs:     attrMap(attrs),
		CreatedAt: now.Format(time.RFC3339Nano),
	}
	if al.trail != nil {
		if err := al.trail.append(entry); err != nil {
			al.logger.Warn("audit trail write failed", "event", string(event), "error", err)
		}
	}
	if al.webhook != nil {
		al.webhook.enqueue(webhookEvent{
			Event:     string(event),
			UserID:    userID,
			Username:  username,
			ClientIP:  clientIP,
			Timestamp: entry.CreatedAt,
			Attrs:     entry.Attrs,
		})
	}
}

// logFailure logs an event whose actor could not be identified.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, "", "", attrs...)
}

func attrMap(attrs []slog.Attr) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value.String()
	}
	return m
}
