package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jmcleod/gatekeeper/authorizer"
)

type contextKey int

const outcomeKey contextKey = iota

// authenticate admits requests whose material proves identity to authz.
func (a *API) authenticate(authz authorizer.Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			out := authz.Authenticate(authorizer.MaterialFromRequest(r))
			if !out.Result.IsAuthenticated() {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), outcomeKey, out)))
		})
	}
}

// authorize admits requests whose material proves identity and the named
// permission of the API's service. Identity without the permission is 403.
func (a *API) authorize(authz authorizer.Authorizer, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			out := authz.Authorize(authorizer.MaterialFromRequest(r), a.perm(name))
			switch {
			case !out.Result.IsAuthenticated():
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			case !out.Result.IsAuthorized():
				writeError(w, http.StatusForbidden, "permission denied")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), outcomeKey, out)))
		})
	}
}

func outcomeFromContext(ctx context.Context) authorizer.Outcome {
	out, _ := ctx.Value(outcomeKey).(authorizer.Outcome)
	return out
}

func writeSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authorizer.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// writeCSRFCookie is readable by scripts so a browser client can echo it
// in X-Auth-CSRF.
func writeCSRFCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authorizer.CSRFCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func clearAuthCookies(w http.ResponseWriter, r *http.Request) {
	secure := requestIsSecure(r)
	for _, c := range []struct {
		name     string
		httpOnly bool
	}{
		{authorizer.SessionCookie, true},
		{authorizer.CSRFCookie, false},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     "/",
			HttpOnly: c.httpOnly,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
		})
	}
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
