package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmcleod/gatekeeper/authorizer"
	"github.com/jmcleod/gatekeeper/credential"
	"github.com/jmcleod/gatekeeper/internal/util"
)

// requireInternalToken admits requests bearing the internal API token.
// Without a configured token the internal routes do not exist.
func (a *API) requireInternalToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.internalToken == "" {
			http.NotFound(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(a.internalToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid internal token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// InternalAuthenticate handles POST /internal/authenticate/{service}.
func (a *API) InternalAuthenticate(w http.ResponseWriter, r *http.Request) {
	a.internalCheck(w, r, nil)
}

// InternalAuthorize handles POST /internal/authorize/{service}/{permission}.
func (a *API) InternalAuthorize(w http.ResponseWriter, r *http.Request) {
	p := permissionParam(r)
	if p.Service == "" || p.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid permission")
		return
	}
	a.internalCheck(w, r, &p)
}

// internalCheck answers with the store's AuthorizationResult for the
// material in the body. Strict sessions skip the CSRF check; the calling
// service owns the browser exchange. Credential checks share the login
// lockout.
func (a *API) internalCheck(w http.ResponseWriter, r *http.Request, p *credential.Permission) {
	req, ok := decodeJSON[authorizer.CheckRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	var res credential.AuthorizationResult
	switch {
	case req.APIKey != "":
		res = a.store.AuthenticateAPIKey(req.APIKey)
		if p != nil {
			res = a.store.AuthorizeAPIKey(req.APIKey, *p)
		}
	case req.SessionToken != "" && req.Password != "":
		res = a.store.AuthenticateStrictSession(req.SessionToken, req.Password)
		if p != nil {
			res = a.store.AuthorizeStrictSession(req.SessionToken, req.Password, *p)
		}
	case req.SessionToken != "":
		res = a.store.AuthenticateSession(req.SessionToken)
		if p != nil {
			res = a.store.AuthorizeSession(req.SessionToken, *p)
		}
	case req.Username != "" && req.Password != "":
		var blocked bool
		if res, blocked = a.internalCredentials(w, r, req, p); blocked {
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "no credential material")
		return
	}

	if !res.IsAuthenticated() {
		a.audit.logFailure(AuditInternalCheckFailed, r, "invalid credential material",
			slog.String("service", permissionParam(r).Service))
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) internalCredentials(w http.ResponseWriter, r *http.Request, req authorizer.CheckRequest, p *credential.Permission) (credential.AuthorizationResult, bool) {
	key := util.FoldUsername(req.Username)
	if blocked, retryAfter := a.rateLimiter.check(key); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "username locked out",
			slog.String("username", req.Username))
		writeRateLimited(w, retryAfter)
		return credential.Failed(), true
	}
	res := a.store.AuthenticateCredentials(req.Username, req.Password)
	if p != nil {
		res = a.store.AuthorizeCredentials(req.Username, req.Password, *p)
	}
	if res.IsAuthenticated() {
		a.rateLimiter.recordSuccess(key)
	} else {
		a.rateLimiter.recordFailure(key)
	}
	return res, false
}
