package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/quoteboard/internal/auth"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/service"
	"github.com/sakif/quoteboard/internal/view"
)

const oauthStateCookie = "oauth_state"

// AuthHandler manages logins, registration and the account page.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLoginForm / HandleLogin       → password login
//   - HandleRegisterForm / HandleRegister → new accounts (always default flags)
//   - HandleLogout                        → clear the session cookie
//   - HandleGitHubLogin / Callback        → optional GitHub sign-in
//   - HandleAccount / HandleChangePassword / HandleDeleteAccount
//
// DEPENDENCY CHAIN:
//   - accounts *service.AuthService   → credential checks and account records
//   - sessions *auth.Middleware       → issues and clears the session cookie
//   - github   *auth.GitHubProvider   → nil when GitHub sign-in is not configured
type AuthHandler struct {
	pages
	accounts *service.AuthService
	sessions *auth.Middleware
	github   *auth.GitHubProvider
	now      func() time.Time
}

// NewAuthHandler creates an AuthHandler. github may be nil.
func NewAuthHandler(
	accounts *service.AuthService,
	sessions *auth.Middleware,
	github *auth.GitHubProvider,
	views view.Renderer,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		pages:    pages{views: views, logger: logger},
		accounts: accounts,
		sessions: sessions,
		github:   github,
		now:      time.Now,
	}
}

type loginData struct {
	Name     string
	ReturnTo string
	GitHub   bool
}

type registerData struct {
	Name string
}

// startSession snapshots user into a fresh session cookie.
func (h *AuthHandler) startSession(w http.ResponseWriter, user *model.User) error {
	return h.sessions.IssueCookie(w, auth.Start(user, h.now()))
}

// HandleLoginForm renders the login page.
//
// HTTP: GET /login?return_to=/quote/new
func (h *AuthHandler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "login", "Log in", loginData{
		ReturnTo: auth.SafeReturnTo(r.URL.Query().Get("return_to")),
		GitHub:   h.github != nil,
	})
}

// HandleLogin checks the credentials and, on success, issues a session and
// returns the browser to where it was headed.
//
// HTTP: POST /login (form: name, password, return_to)
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	name := r.PostFormValue("name")
	returnTo := auth.SafeReturnTo(r.PostFormValue("return_to"))

	user, err := h.accounts.Authenticate(r.Context(), name, r.PostFormValue("password"))
	if err != nil {
		h.renderForm(w, r, "login", "Log in", loginData{Name: name, ReturnTo: returnTo, GitHub: h.github != nil}, err)
		return
	}

	if err := h.startSession(w, user); err != nil {
		h.renderError(w, r, err)
		return
	}
	h.logger.Info("user logged in", "user_id", user.ID, "name", user.Name)
	redirect(w, r, returnTo, "Welcome back, "+user.Name+".")
}

// HandleRegisterForm renders the registration page.
//
// HTTP: GET /register
func (h *AuthHandler) HandleRegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "register", "Register", registerData{})
}

// HandleRegister creates an account and logs it in.
//
// HTTP: POST /register (form: name, password)
//
// Only name and password are read. A "flags" field in the form, or any
// other field, has no effect: new accounts always get the default mask.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	name := r.PostFormValue("name")

	user, err := h.accounts.Register(r.Context(), name, r.PostFormValue("password"))
	if err != nil {
		h.renderForm(w, r, "register", "Register", registerData{Name: name}, err)
		return
	}

	if err := h.startSession(w, user); err != nil {
		h.renderError(w, r, err)
		return
	}
	redirect(w, r, "/", "Welcome to quoteboard, "+user.Name+"!")
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /logout
//
// Sessions are client-held, so logging out only removes the browser's copy.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCookie(w)
	redirect(w, r, "/", "You have been logged out.")
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state value is stored in a short-lived cookie and checked when
// GitHub calls back, proving the callback was initiated by this server.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the GitHub sign-in.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		redirect(w, r, "/login", "GitHub sign-in failed. Please try again.")
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: authorization denied", "error", errParam)
		redirect(w, r, "/login", "GitHub sign-in was cancelled.")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		redirect(w, r, "/login", "GitHub sign-in failed. Please try again.")
		return
	}

	profile, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", "error", err)
		redirect(w, r, "/login", "GitHub sign-in failed. Please try again.")
		return
	}

	user, err := h.accounts.LoginGitHub(r.Context(), profile)
	if err != nil {
		h.logger.Error("github callback: account lookup failed", "github_id", profile.ID, "error", err)
		redirect(w, r, "/login", "GitHub sign-in failed. Please try again.")
		return
	}

	if err := h.startSession(w, user); err != nil {
		h.renderError(w, r, err)
		return
	}
	redirect(w, r, "/", "Welcome, "+user.Name+".")
}

// HandleAccount renders the account page.
//
// HTTP: GET /account/password
func (h *AuthHandler) HandleAccount(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "account", "Account", nil)
}

// HandleChangePassword changes the caller's own password.
//
// HTTP: POST /account/password (form: current, password)
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	me := actor(r)
	err := h.accounts.ChangePassword(r.Context(), me.UserID, r.PostFormValue("current"), r.PostFormValue("password"))
	if err != nil {
		h.renderForm(w, r, "account", "Account", nil, err)
		return
	}
	redirect(w, r, "/account/password", "Your password has been changed.")
}

// HandleDeleteAccount deletes the caller's own account and logs them out.
//
// HTTP: POST /account/delete (form: password)
func (h *AuthHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	me := actor(r)
	if err := h.accounts.DeleteAccount(r.Context(), me.UserID, r.PostFormValue("password")); err != nil {
		h.renderForm(w, r, "account", "Account", nil, err)
		return
	}
	h.sessions.ClearCookie(w)
	redirect(w, r, "/", "Your account has been deleted.")
}
