package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/gatekeeper/authorizer"
	"github.com/jmcleod/gatekeeper/credential"
	"github.com/jmcleod/gatekeeper/storage"
	"github.com/jmcleod/gatekeeper/storage/memory"
)

// Permission names the API's own routes require, scoped to the configured
// service.
const (
	PermLogin      = "login"
	PermWriteSelf  = "ws"
	PermReadSelf   = "rs"
	PermWriteAdmin = "wa"
	PermReadAdmin  = "ra"
)

// DefaultService is the permission service used when none is configured.
const DefaultService = "cam"

// API holds the dependencies needed by the REST handlers.
type API struct {
	store          *credential.Store
	registry       *credential.Registry
	csrf           *authorizer.CSRFSigner
	service        string
	trailRepo      storage.Repository
	trailMaxAge    time.Duration
	trailMaxCount  int
	audit          *auditLogger
	logger         *slog.Logger
	alertFn        AlertFunc
	webhook        *auditWebhook
	webhookURL     string
	webhookHeader  string
	internalToken  string
	rateLimiter    *loginRateLimiter
	ipRateLimit    int
	trustedProxies []netip.Prefix

	credentials   authorizer.Authorizer
	session       authorizer.Authorizer
	strictSession authorizer.Authorizer
	standard      authorizer.Authorizer
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithAuditRepository persists the audit trail in repo. The default keeps
// it in memory.
func WithAuditRepository(repo storage.Repository) Option {
	return func(a *API) {
		a.trailRepo = repo
	}
}

// WithAuditRetention bounds the persisted audit trail by age and entry
// count. Zero disables either bound.
func WithAuditRetention(maxAge time.Duration, maxEntries int) Option {
	return func(a *API) {
		a.trailMaxAge = maxAge
		a.trailMaxCount = maxEntries
	}
}

// WithService sets the permission service the API's routes check.
func WithService(service string) Option {
	return func(a *API) {
		a.service = service
	}
}

// WithCSRFSigner replaces the per-process CSRF signer, e.g. to share one
// key across replicas.
func WithCSRFSigner(s *authorizer.CSRFSigner) Option {
	return func(a *API) {
		a.csrf = s
	}
}

// WithRegistry shares a permission registry with the caller. The API
// registers its own permissions into it.
func WithRegistry(r *credential.Registry) Option {
	return func(a *API) {
		a.registry = r
	}
}

// WithAlertFunc installs a callback for anomaly alerts.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// WithIPRateLimit caps unauthenticated requests (login and account
// creation) per client IP per minute. Zero disables the limit.
func WithIPRateLimit(perMinute int) Option {
	return func(a *API) {
		a.ipRateLimit = perMinute
	}
}

// WithTrustedProxies sets CIDR ranges whose forwarding headers are honored
// when resolving the client IP.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithAuditWebhook forwards every audit event to url. header, if set, is
// sent as "Name: value".
func WithAuditWebhook(url, header string) Option {
	return func(a *API) {
		a.webhookURL, a.webhookHeader = url, header
	}
}

// WithInternalToken enables the internal authenticate and authorize routes
// for callers presenting token as a bearer credential.
func WithInternalToken(token string) Option {
	return func(a *API) {
		a.internalToken = token
	}
}

// New creates a new API instance over store.
func New(store *credential.Store, opts ...Option) *API {
	a := &API{
		store:       store,
		service:     DefaultService,
		rateLimiter: newLoginRateLimiter(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.trailRepo == nil {
		a.trailRepo = memory.NewRepository()
	}
	if a.csrf == nil {
		a.csrf = authorizer.NewCSRFSigner()
	}
	if a.registry == nil {
		a.registry = credential.NewRegistry()
	}
	for _, name := range []string{PermLogin, PermWriteSelf, PermReadSelf, PermWriteAdmin, PermReadAdmin} {
		a.registry.Register(a.perm(name))
	}

	a.audit = newAuditLogger(a.logger)
	a.audit.metrics = newMetricsCollector(a.alertFn)
	a.audit.trail = newAuditTrail(a.trailRepo, a.trailMaxAge, a.trailMaxCount)
	if a.webhookURL != "" {
		a.webhook = newAuditWebhook(a.webhookURL, a.webhookHeader, a.logger)
		a.audit.webhook = a.webhook
	}
	a.audit.clientIP = a.extractClientIP

	a.credentials = authorizer.Credential(store)
	a.session = authorizer.Session(store)
	a.strictSession = authorizer.StrictSession(store, a.csrf)
	a.standard = authorizer.Standard(store)
	return a
}

// Close stops background delivery of audit events.
func (a *API) Close() {
	if a.webhook != nil {
		a.webhook.close()
	}
}

// RunLimiterSweeper drops stale login-failure records every interval until
// ctx is done.
func (a *API) RunLimiterSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.rateLimiter.sweep()
		}
	}
}

func (a *API) perm(name string) credential.Permission {
	return credential.Permission{Service: a.service, Name: name}
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		if a.ipRateLimit > 0 {
			r.Use(httprate.Limit(a.ipRateLimit, time.Minute,
				httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
					return a.extractClientIP(r), nil
				}),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, http.StatusTooManyRequests, "too many requests; try again later")
				}),
			))
		}
		r.Post("/users", a.CreateUser)
		r.Post("/auth/login", a.Login)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(a.requireInternalToken)
		r.Post("/authenticate/{service}", a.InternalAuthenticate)
		r.Post("/authorize/{service}/{permission}", a.InternalAuthorize)
	})

	r.With(a.authenticate(a.session)).Post("/auth/logout", a.Logout)
	r.With(a.authenticate(a.strictSession)).Post("/auth/logout-all", a.LogoutAll)
	r.With(a.authenticate(a.strictSession)).Post("/auth/logout-others", a.LogoutOthers)

	r.With(a.authorize(a.standard, PermReadSelf)).Get("/me", a.Me)
	r.With(a.authorize(a.strictSession, PermWriteSelf)).Post("/me/password", a.ChangePassword)
	r.With(a.authorize(a.strictSession, PermWriteSelf)).Post("/me/username", a.ChangeUsername)

	r.With(a.authorize(a.standard, PermReadSelf)).Get("/sessions", a.ListSessions)
	r.With(a.authorize(a.strictSession, PermWriteSelf)).Delete("/sessions/{displayID}", a.RevokeSession)

	r.Route("/api-keys", func(r chi.Router) {
		r.With(a.authorize(a.standard, PermReadSelf)).Get("/", a.ListAPIKeys)
		r.With(a.authorize(a.strictSession, PermWriteSelf)).Post("/", a.CreateAPIKey)
		r.With(a.authorize(a.strictSession, PermWriteSelf)).Delete("/{displayID}", a.DeleteAPIKey)
		r.With(a.authorize(a.strictSession, PermWriteSelf)).Post("/{displayID}/permissions", a.GrantAPIKeyPermission)
		r.With(a.authorize(a.strictSession, PermWriteSelf)).Delete("/{displayID}/permissions/{service}/{permission}", a.RevokeAPIKeyPermission)
	})

	r.Route("/admin", func(r chi.Router) {
		r.With(a.authorize(a.standard, PermReadAdmin)).Get("/permissions", a.ListRegisteredPermissions)
		r.With(a.authorize(a.strictSession, PermWriteAdmin)).Post("/permissions", a.RegisterPermission)
		r.With(a.authorize(a.standard, PermReadAdmin)).Get("/audit", a.ListAuditLogs)
		r.With(a.authorize(a.standard, PermReadAdmin)).Get("/stats", a.Stats)
		r.Route("/users/{username}", func(r chi.Router) {
			r.With(a.authorize(a.strictSession, PermWriteAdmin)).Delete("/", a.DeleteUser)
			r.With(a.authorize(a.standard, PermReadAdmin)).Get("/permissions", a.GetUserPermissions)
			r.With(a.authorize(a.strictSession, PermWriteAdmin)).Post("/permissions", a.GrantUserPermission)
			r.With(a.authorize(a.strictSession, PermWriteAdmin)).Delete("/permissions/{service}/{permission}", a.RevokeUserPermission)
		})
	})

	return r
}
