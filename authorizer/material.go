package authorizer

import "net/http"

const (
	HeaderUser     = "X-Auth-User"
	HeaderPassword = "X-Auth-Pass"
	HeaderAPIKey   = "X-Api-Key"
	HeaderCSRF     = "X-Auth-CSRF"

	SessionCookie = "session"
	CSRFCookie    = "csrf"
)

// Material is the raw credential material carried by a request. Empty
// fields were not supplied.
type Material struct {
	Username     string
	Password     string
	SessionToken string
	CSRFToken    string
	APIKey       string
}

// MaterialFromRequest extracts credential headers and the session cookie.
func MaterialFromRequest(r *http.Request) Material {
	m := Material{
		Username:  r.Header.Get(HeaderUser),
		Password:  r.Header.Get(HeaderPassword),
		CSRFToken: r.Header.Get(HeaderCSRF),
		APIKey:    r.Header.Get(HeaderAPIKey),
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		m.SessionToken = c.Value
	}
	return m
}
