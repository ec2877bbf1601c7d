package api

import (
	"net/http"
	"strings"
)

const (
	apiCSP = "default-src 'none'; frame-ancestors 'none'"
	// docsCSP admits the Swagger UI and Redoc bundles, which load from a CDN
	// and bootstrap with an inline script.
	docsCSP = "default-src 'self'; script-src 'self' 'unsafe-inline' https://unpkg.com https://cdn.redoc.ly; " +
		"style-src 'self' 'unsafe-inline' https://unpkg.com https://fonts.googleapis.com; " +
		"font-src https://fonts.gstatic.com; img-src 'self' data: https:; worker-src blob:; frame-ancestors 'none'"
)

// SecurityHeaders is middleware that sets standard security response
// headers. API responses carry no cacheable credentials and may not be
// framed.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		if isDocsPath(r.URL.Path) {
			h.Set("Content-Security-Policy", docsCSP)
		} else {
			h.Set("Content-Security-Policy", apiCSP)
		}
		if requestIsSecure(r) {
			h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

func isDocsPath(p string) bool {
	return strings.Contains(p, "/docs") || strings.Contains(p, "/redoc")
}
