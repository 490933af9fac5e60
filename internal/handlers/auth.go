package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/eldtechnologies/parlor/internal/api/middleware"
	"github.com/eldtechnologies/parlor/internal/auth"
	"github.com/eldtechnologies/parlor/internal/metrics"
	"github.com/eldtechnologies/parlor/internal/session"
)

// loginRequest is accepted either as a JSON body or an HTML form.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /login. A successful login issues a session cookie and
// redirects to the app root; any failure redirects back to the login page
// with no credential. The response never says which part was wrong.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := parseLogin(r)
	if !ok {
		h.failLogin(w, r)
		return
	}

	user, err := h.store.GetUser(r.Context(), req.Username)
	if err != nil {
		h.logger.Error().Err(err).Msg("user lookup failed")
		h.failLogin(w, r)
		return
	}
	if user == nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		h.failLogin(w, r)
		return
	}

	token := h.sessions.Create(user.Username, h.sessionTTL)
	http.SetCookie(w, h.sessions.Cookie(token, h.sessionTTL))
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	h.logger.Info().Str("username", user.Username).Msg("login")

	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout handles GET /logout: the session is invalidated server-side and
// the cookie cleared client-side.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		h.sessions.Invalidate(claims.Token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/login", http.StatusFound)
}

// Profile handles GET /profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusBadRequest, "username not found in request")
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"username": claims.Username})
}

func (h *Handler) failLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusFound)
}

func parseLogin(r *http.Request) (loginRequest, bool) {
	var req loginRequest

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, false
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, false
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	}

	return req, req.Username != ""
}
