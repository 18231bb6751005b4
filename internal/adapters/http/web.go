// Package web serves the course administration dashboard: server-rendered
// pages for the five entity panels, the stats cards, login and a small JSON
// API.
package web

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"coursedesk/internal/adapters/email"
	"coursedesk/internal/adapters/http/middleware"
	"coursedesk/internal/adapters/http/perf"
	"coursedesk/internal/adapters/i18n"
	"coursedesk/internal/application/orchestrators"
	"coursedesk/internal/application/panel"
	"coursedesk/internal/domain/schema"
)

// DefaultRateLimit is the per-IP request budget per second.
const DefaultRateLimit = 20

// Deps holds everything the handlers need.
type Deps struct {
	Registry   *panel.Registry
	Records    orchestrators.RecordGetter // single-record reads for confirmations
	AppIDs     map[schema.Kind]string
	Translator *i18n.Translator
	Sender     email.Sender // nil disables registration confirmations
	Collector  *perf.Collector
	Sessions   *middleware.SessionStore // nil: a fresh store
	Limiter    *middleware.RateLimiter  // nil: DefaultRateLimit per second
	Options    Options
}

// Options carries the HTTP-level settings.
type Options struct {
	CSRFKey           []byte // nil: random per process
	Secure            bool   // TLS-only cookies
	TrustedOrigins    []string
	AdminPasswordHash string // bcrypt; empty disables login
	SlowRequestMs     int
}

// app is the handler receiver.
type app struct {
	Deps
	pages *pageSet
}

// NewMux creates the HTTP handler with all routes and middleware.
// PRE: deps.Registry and deps.Translator are non-nil
// POST: Returns the root handler; expired sessions drop their workspace
func NewMux(deps Deps) http.Handler {
	if deps.Sessions == nil {
		deps.Sessions = middleware.NewSessionStore()
	}
	if deps.Limiter == nil {
		deps.Limiter = middleware.NewRateLimiter(DefaultRateLimit, time.Second)
	}
	deps.Sessions.OnExpire(deps.Registry.Drop)

	a := &app{Deps: deps, pages: mustParsePages()}

	mux := http.NewServeMux()
	requireAuth := middleware.RequireAuth(deps.Options.AdminPasswordHash != "")
	protected := func(h http.HandlerFunc) http.Handler { return requireAuth(h) }

	mux.Handle("GET /{$}", protected(a.handleDashboard))
	mux.Handle("POST /panels/{kind}/new", protected(a.handleOpenCreate))
	mux.Handle("POST /panels/{kind}/edit/{id}", protected(a.handleOpenEdit))
	mux.Handle("POST /panels/{kind}/submit", protected(a.handleSubmit))
	mux.Handle("POST /panels/{kind}/cancel", protected(a.handleCancel))
	mux.Handle("POST /panels/{kind}/delete/{id}", protected(a.handleDelete))
	mux.Handle("POST /panels/{kind}/toggle/{id}", protected(a.handleToggle))
	mux.Handle("POST /panels/{kind}/dismiss", protected(a.handleDismiss))
	mux.Handle("POST /stats/refresh", protected(a.handleStatsRefresh))

	mux.HandleFunc("GET /login", a.handleLoginPage)
	mux.HandleFunc("POST /login", a.handleLogin)
	mux.HandleFunc("POST /logout", a.handleLogout)

	mux.Handle("GET /api/stats", protected(a.handleAPIStats))
	mux.Handle("GET /api/panels/{kind}", protected(a.handleAPIPanel))
	mux.Handle("GET /api/perf", protected(a.handleAPIPerf))
	mux.HandleFunc("GET /healthz", handleHealthz)

	return middleware.Chain(mux,
		middleware.Auth(deps.Sessions, middleware.AuthOptions{
			Secure: deps.Options.Secure,
			Locale: func(r *http.Request) string { return deps.Translator.Match(r.Header.Get("Accept-Language")) },
		}),
		middleware.CSRF(loadCSRFKey(deps.Options.CSRFKey), middleware.CSRFOptions{
			Secure:         deps.Options.Secure,
			TrustedOrigins: deps.Options.TrustedOrigins,
		}),
		middleware.RateLimit(deps.Limiter),
		middleware.SecurityHeaders,
		middleware.Timing(deps.Collector, deps.Options.SlowRequestMs),
	)
}

// loadCSRFKey returns key, or a random key valid for this process only.
func loadCSRFKey(key []byte) []byte {
	if len(key) == 32 {
		return key
	}
	generated := make([]byte, 32)
	if _, err := rand.Read(generated); err != nil {
		panic("csrf key: " + err.Error())
	}
	slog.Warn("csrf_key_generated", "hint", "set COURSEDESK_CSRF_KEY to keep form tokens valid across restarts")
	return generated
}

// session returns the request's session. Auth guarantees one on every
// route except /healthz.
func session(r *http.Request) middleware.Session {
	s, _ := middleware.GetSessionFromContext(r.Context())
	return s
}

// workspace returns the calling browser's workspace.
func (a *app) workspace(r *http.Request) *panel.Workspace {
	return a.Registry.Get(session(r).Token)
}

// locale returns the session's locale, or the default.
func (a *app) locale(r *http.Request) string {
	if l := session(r).Locale; l != "" && a.Translator.Supported(l) {
		return l
	}
	return a.Translator.Default()
}

// kindParam validates the {kind} path segment.
func kindParam(r *http.Request) (schema.Kind, bool) {
	kind := schema.Kind(r.PathValue("kind"))
	_, err := schema.Lookup(kind)
	return kind, err == nil
}

// backToTab redirects to the dashboard showing kind (post-redirect-get).
func backToTab(w http.ResponseWriter, r *http.Request, kind schema.Kind) {
	http.Redirect(w, r, "/?tab="+string(kind), http.StatusSeeOther)
}

// internalError logs err and writes a generic 500.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
