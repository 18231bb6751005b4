package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const sessionContextKey contextKey = "session"

// SessionTTL is how long a session lives after its last request.
const SessionTTL = 24 * time.Hour

// Session is one browser's server-side identity. Its token also keys the
// panel workspace of that browser.
type Session struct {
	Token         string
	Authenticated bool
	Locale        string
	CreatedAt     time.Time
	LastSeen      time.Time
}

// SessionStore is an in-memory session store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
	onExpire func(token string)
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]Session),
		ttl:      SessionTTL,
		now:      time.Now,
	}
}

// OnExpire registers a callback run for every session removed by Sweep,
// Delete or Get of an expired token.
func (ss *SessionStore) OnExpire(fn func(token string)) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.onExpire = fn
}

// Create stores a new session and returns it.
// POST: Session is stored under a fresh random token
func (ss *SessionStore) Create(authenticated bool, locale string) (Session, error) {
	token, err := generateToken()
	if err != nil {
		return Session{}, err
	}
	now := ss.now()
	s := Session{Token: token, Authenticated: authenticated, Locale: locale, CreatedAt: now, LastSeen: now}
	ss.mu.Lock()
	ss.sessions[token] = s
	ss.mu.Unlock()
	return s, nil
}

// Get retrieves a session by token and refreshes its last-seen time.
// PRE: token is non-empty
// POST: Returns session if present and not idle past the TTL
func (ss *SessionStore) Get(token string) (Session, bool) {
	ss.mu.Lock()
	session, ok := ss.sessions[token]
	if !ok {
		ss.mu.Unlock()
		return Session{}, false
	}
	now := ss.now()
	if now.Sub(session.LastSeen) > ss.ttl {
		delete(ss.sessions, token)
		fn := ss.onExpire
		ss.mu.Unlock()
		if fn != nil {
			fn(token)
		}
		return Session{}, false
	}
	session.LastSeen = now
	ss.sessions[token] = session
	ss.mu.Unlock()
	return session, true
}

// Delete removes a session by token.
// PRE: token is non-empty
// POST: Session with given token is removed
func (ss *SessionStore) Delete(token string) {
	ss.mu.Lock()
	_, ok := ss.sessions[token]
	delete(ss.sessions, token)
	fn := ss.onExpire
	ss.mu.Unlock()
	if ok && fn != nil {
		fn(token)
	}
}

// Update replaces the session for a given token in-place.
// PRE: token exists in the store
// POST: Session is replaced with the new value
func (ss *SessionStore) Update(session Session) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if _, ok := ss.sessions[session.Token]; !ok {
		return false
	}
	ss.sessions[session.Token] = session
	return true
}

// Sweep removes sessions idle past the TTL and returns how many.
func (ss *SessionStore) Sweep() int {
	ss.mu.Lock()
	now := ss.now()
	var expired []string
	for token, s := range ss.sessions {
		if now.Sub(s.LastSeen) > ss.ttl {
			delete(ss.sessions, token)
			expired = append(expired, token)
		}
	}
	fn := ss.onExpire
	ss.mu.Unlock()
	if fn != nil {
		for _, token := range expired {
			fn(token)
		}
	}
	return len(expired)
}

// Len returns the number of stored sessions.
func (ss *SessionStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

const sessionCookieName = "coursedesk_session"

// AuthOptions configures Auth.
type AuthOptions struct {
	Secure bool // Secure flag on the session cookie
	// Locale picks the locale of a new session from the request.
	Locale func(r *http.Request) string
}

// Auth returns middleware that attaches the session from the cookie to the
// context. Requests without a valid session get a fresh unauthenticated one,
// so every browser has a stable workspace key. It does NOT block; use
// RequireAuth for that.
func Auth(sessions *SessionStore, opts AuthOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}
			if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
				if session, ok := sessions.Get(cookie.Value); ok {
					next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
					return
				}
			}
			locale := ""
			if opts.Locale != nil {
				locale = opts.Locale(r)
			}
			session, err := sessions.Create(false, locale)
			if err != nil {
				slog.Error("session_create_failed", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			SetSessionCookie(w, session.Token, opts.Secure)
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// RequireAuth returns middleware that blocks sessions that have not logged
// in. Page requests are redirected to /login, API requests get 401.
// With enabled false it passes everything through.
func RequireAuth(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := GetSessionFromContext(r.Context())
			if !ok || !session.Authenticated {
				if strings.HasPrefix(r.URL.Path, "/api/") {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSessionFromContext extracts the session from the request context.
func GetSessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(Session)
	return session, ok
}

// ContextWithSession returns a context with the given session set.
func ContextWithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// SetSessionCookie sets the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   int(SessionTTL / time.Second),
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
