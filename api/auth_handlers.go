package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/jmcleod/gatekeeper/authorizer"
	"github.com/jmcleod/gatekeeper/credential"
	"github.com/jmcleod/gatekeeper/internal/util"
)

// minPasswordLen is the shortest password accepted on account creation
// and password change, counted in runes.
const minPasswordLen = 8

func checkPassword(w http.ResponseWriter, password string) bool {
	if utf8.RuneCountInString(password) < minPasswordLen {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("password must be at least %d characters", minPasswordLen))
		return false
	}
	return true
}

// CreateUser handles POST /users.
func (a *API) CreateUser(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateUserRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if !checkPassword(w, req.Password) {
		return
	}

	userID, err := a.store.CreateUser(req.Username, req.Password)
	if err != nil {
		a.mapError(w, err)
		return
	}

	a.audit.log(AuditUserCreated, r, userID.String(), req.Username)
	writeJSON(w, http.StatusCreated, UserResponse{UserID: userID.String(), Username: req.Username})
}

// Login handles POST /auth/login. Credentials travel in X-Auth-User and
// X-Auth-Pass and must carry the login permission. On success the session
// and CSRF cookies are set and the CSRF token is also returned in the body.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	m := authorizer.MaterialFromRequest(r)
	limiterKey := util.FoldUsername(m.Username)

	if limiterKey != "" {
		if blocked, retryAfter := a.rateLimiter.check(limiterKey); blocked {
			a.audit.logFailure(AuditLoginRateLimited, r, "username locked out",
				slog.String("username", m.Username))
			writeRateLimited(w, retryAfter)
			return
		}
	}

	out := a.credentials.Authorize(m, a.perm(PermLogin))
	res := out.Result
	switch {
	case !res.IsAuthenticated():
		if limiterKey != "" {
			a.rateLimiter.recordFailure(limiterKey)
		}
		a.audit.logFailure(AuditLoginFailure, r, "invalid credentials",
			slog.String("username", m.Username))
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	case !res.IsAuthorized():
		a.rateLimiter.recordSuccess(limiterKey)
		a.audit.log(AuditLoginFailure, r, res.UserID().String(), res.Username(),
			slog.String("reason", "missing login permission"))
		writeError(w, http.StatusForbidden, "login not permitted")
		return
	}
	a.rateLimiter.recordSuccess(limiterKey)

	token, err := a.store.CreateSession(res.UserID())
	if err != nil {
		a.mapError(w, err)
		return
	}
	csrfToken, err := a.csrf.Token(token)
	if err != nil {
		a.store.RevokeSession(token)
		a.writeInternalError(w, "failed to issue CSRF token", err)
		return
	}
	writeSessionCookie(w, r, token)
	writeCSRFCookie(w, r, csrfToken)

	a.audit.log(AuditLoginSuccess, r, res.UserID().String(), res.Username())
	writeJSON(w, http.StatusOK, LoginResponse{
		UserID:    res.UserID().String(),
		Username:  res.Username(),
		CSRFToken: csrfToken,
	})
}

// Logout handles POST /auth/logout.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	out := outcomeFromContext(r.Context())
	if err := a.store.RevokeSession(out.SessionToken); err != nil && !errors.Is(err, credential.ErrNotFound) {
		a.mapError(w, err)
		return
	}
	clearAuthCookies(w, r)
	a.audit.log(AuditLogout, r, out.Result.UserID().String(), out.Result.Username())
	writeJSON(w, http.StatusOK, struct{}{})
}

// LogoutAll handles POST /auth/logout-all. It ends every session of the
// caller, including the current one.
func (a *API) LogoutAll(w http.ResponseWriter, r *http.Request) {
	out := outcomeFromContext(r.Context())
	n, err := a.store.RevokeAllSessions(out.Result.UserID())
	if err != nil {
		a.mapError(w, err)
		return
	}
	clearAuthCookies(w, r)
	a.audit.log(AuditLogoutAll, r, out.Result.UserID().String(), out.Result.Username(),
		slog.Int("revoked", n))
	writeJSON(w, http.StatusOK, RevokedResponse{Revoked: n})
}

// LogoutOthers handles POST /auth/logout-others. The current session
// survives.
func (a *API) LogoutOthers(w http.ResponseWriter, r *http.Request) {
	out := outcomeFromContext(r.Context())
	n, err := a.store.RevokeOtherSessions(out.SessionToken)
	if err != nil {
		a.mapError(w, err)
		return
	}
	a.audit.log(AuditLogoutOthers, r, out.Result.UserID().String(), out.Result.Username(),
		slog.Int("revoked", n))
	writeJSON(w, http.StatusOK, RevokedResponse{Revoked: n})
}
