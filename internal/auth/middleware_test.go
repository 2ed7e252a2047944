package auth_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/sakif/quoteboard/internal/auth"
	"github.com/sakif/quoteboard/internal/flash"
	"github.com/sakif/quoteboard/internal/permission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMiddleware(t *testing.T) (*auth.Middleware, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("middleware-test-secret-1234")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return auth.NewMiddleware(tokens, auth.NewGate(auth.DefaultTTL), logger, false), tokens
}

func sessionCookie(t *testing.T, tokens *auth.TokenService, sess *auth.Session) *http.Cookie {
	t.Helper()
	token, err := tokens.Encode(sess)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.CookieName, Value: token}
}

func cookieNamed(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// guarded wraps an "ok" handler with Load + Require(req) and reports whether
// it ran.
func guarded(m *auth.Middleware, req permission.Requirement, reached *bool) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*reached = true
		w.WriteHeader(http.StatusOK)
	})
	return m.Load(m.Require(req)(inner))
}

func TestRequire_AnonymousInteractiveIsRedirected(t *testing.T) {
	m, _ := newTestMiddleware(t)
	var reached bool

	req := httptest.NewRequest(http.MethodGet, "/quote/5/edit", nil)
	req.Header.Set("Accept", "text/html")
	rr := httptest.NewRecorder()
	guarded(m, permission.All(permission.EditQuotes), &reached).ServeHTTP(rr, req)

	assert.False(t, reached)
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "/quote/5/edit", loc.Query().Get("return_to"))

	notice := cookieNamed(rr, flash.CookieName)
	require.NotNil(t, notice, "interactive denial should leave a notice")
}

func TestRequire_AnonymousProgrammaticGetsCode(t *testing.T) {
	m, _ := newTestMiddleware(t)
	var reached bool

	req := httptest.NewRequest(http.MethodPost, "/quote/5/edit", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	rr := httptest.NewRecorder()
	guarded(m, permission.All(permission.EditQuotes), &reached).ServeHTTP(rr, req)

	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Header().Get("Location"), "programmatic callers must never be redirected")
	assert.Nil(t, cookieNamed(rr, flash.CookieName))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "NOT_LOGGED_IN", body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestRequire_MissingPermission(t *testing.T) {
	m, tokens := newTestMiddleware(t)
	sess := &auth.Session{ID: "x", UserID: 1, Username: "alice", Mask: permission.Default, IssuedAt: time.Now()}

	t.Run("programmatic gets 403 and keeps the session", func(t *testing.T) {
		var reached bool
		req := httptest.NewRequest(http.MethodPost, "/api/admin/recount", nil)
		req.Header.Set("Accept", "application/json")
		req.AddCookie(sessionCookie(t, tokens, sess))
		rr := httptest.NewRecorder()

		guarded(m, permission.All(permission.EditQuotes), &reached).ServeHTTP(rr, req)

		assert.False(t, reached)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Contains(t, rr.Body.String(), `"UNAUTHORIZED"`)
		assert.Nil(t, cookieNamed(rr, auth.CookieName), "a permission denial must not clear the session")
	})

	t.Run("interactive is redirected with a notice", func(t *testing.T) {
		var reached bool
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		req.AddCookie(sessionCookie(t, tokens, sess))
		rr := httptest.NewRecorder()

		guarded(m, permission.All(permission.ListUsers), &reached).ServeHTTP(rr, req)

		assert.False(t, reached)
		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.NotNil(t, cookieNamed(rr, flash.CookieName))
	})
}

func TestRequire_Allowed(t *testing.T) {
	m, tokens := newTestMiddleware(t)
	sess := &auth.Session{ID: "x", UserID: 1, Username: "alice", Mask: permission.Default, IssuedAt: time.Now()}

	var seen *auth.Session
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.SessionFromContext(r.Context())
	})
	h := m.Load(m.Require(permission.All(permission.CanVote))(inner))

	req := httptest.NewRequest(http.MethodPost, "/upvote/1", nil)
	req.AddCookie(sessionCookie(t, tokens, sess))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.NotNil(t, seen)
	assert.Equal(t, "alice", seen.Username)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequire_ExpiredSessionIsClearedAndReported(t *testing.T) {
	m, tokens := newTestMiddleware(t)
	old := &auth.Session{ID: "x", UserID: 1, Username: "alice", Mask: permission.Full(), IssuedAt: time.Now().Add(-auth.DefaultTTL - time.Hour)}
	var reached bool

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Accept", "application/json")
	req.AddCookie(sessionCookie(t, tokens, old))
	rr := httptest.NewRecorder()
	guarded(m, permission.LoggedIn(), &reached).ServeHTTP(rr, req)

	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "SESSION_EXPIRED")

	cleared := cookieNamed(rr, auth.CookieName)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestLoad_ForgedCookieReadsAsAnonymous(t *testing.T) {
	m, _ := newTestMiddleware(t)
	other, err := auth.NewTokenService("some-other-secret-entirely")
	require.NoError(t, err)
	forged := &auth.Session{UserID: 1, Username: "admin", Mask: permission.Full(), IssuedAt: time.Now()}

	var ok bool
	h := m.Load(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = auth.SessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sessionCookie(t, other, forged))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.False(t, ok)
	cleared := cookieNamed(rr, auth.CookieName)
	require.NotNil(t, cleared, "an untrusted cookie should be cleared")
	assert.Less(t, cleared.MaxAge, 0)
}

func TestIssueCookie(t *testing.T) {
	m, tokens := newTestMiddleware(t)
	sess := &auth.Session{ID: "x", UserID: 9, Username: "bob", Mask: permission.Default, IssuedAt: time.Now()}

	rr := httptest.NewRecorder()
	require.NoError(t, m.IssueCookie(rr, sess))

	c := cookieNamed(rr, auth.CookieName)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int(auth.DefaultTTL.Seconds()), c.MaxAge)

	decoded, err := tokens.Decode(c.Value)
	require.NoError(t, err)
	assert.Equal(t, "bob", decoded.Username)
}

func TestSafeReturnTo(t *testing.T) {
	cases := map[string]string{
		"":                      "/",
		"/quotes/top?page=2":    "/quotes/top?page=2",
		"//evil.example/phish":  "/",
		"/\\evil.example":       "/",
		"https://evil.example/": "/",
		"javascript:alert(1)":   "/",
		"quotes":                "/",
	}
	for in, want := range cases {
		assert.Equal(t, want, auth.SafeReturnTo(in), "SafeReturnTo(%q)", in)
	}
}

func TestLoginURL(t *testing.T) {
	assert.Equal(t, "/login", auth.LoginURL(""))
	assert.Equal(t, "/login", auth.LoginURL("https://evil.example"))
	assert.Equal(t, "/login?return_to=%2Fquote%2F3", auth.LoginURL("/quote/3"))
}
