package web

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"coursedesk/internal/adapters/http/middleware"
)

type loginPage struct {
	Locale string
	Failed bool
}

// handleLoginPage shows the password form. Without a configured admin
// password there is nothing to log into.
func (a *app) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if a.Options.AdminPasswordHash == "" || session(r).Authenticated {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	a.render(w, r, http.StatusOK, "login.html", loginPage{Locale: a.locale(r)})
}

// handleLogin checks the admin password. Success replaces the session with
// a fresh authenticated one, so a token seen before login is worthless
// afterwards.
// PRE: admin password hash configured
// POST: authenticated session cookie set, or the form re-rendered with 401
func (a *app) handleLogin(w http.ResponseWriter, r *http.Request) {
	if a.Options.AdminPasswordHash == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	password := r.FormValue("password")
	if err := bcrypt.CompareHashAndPassword([]byte(a.Options.AdminPasswordHash), []byte(password)); err != nil {
		slog.Warn("login_failed", "ip", r.RemoteAddr)
		a.render(w, r, http.StatusUnauthorized, "login.html", loginPage{Locale: a.locale(r), Failed: true})
		return
	}

	old := session(r)
	fresh, err := a.Sessions.Create(true, old.Locale)
	if err != nil {
		internalError(w, err)
		return
	}
	if old.Token != "" {
		a.Sessions.Delete(old.Token)
	}
	middleware.SetSessionCookie(w, fresh.Token, a.Options.Secure)
	slog.Info("login_succeeded", "ip", r.RemoteAddr)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout ends the session and discards its workspace.
func (a *app) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := session(r).Token; token != "" {
		a.Sessions.Delete(token)
	}
	middleware.ClearSessionCookie(w, a.Options.Secure)
	target := "/"
	if a.Options.AdminPasswordHash != "" {
		target = "/login"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
