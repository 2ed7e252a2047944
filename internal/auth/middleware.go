package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/quoteboard/internal/flash"
	"github.com/sakif/quoteboard/internal/metrics"
	"github.com/sakif/quoteboard/internal/permission"
)

// CookieName is the HttpOnly cookie carrying the signed session.
const CookieName = "session"

// LoginPath is where interactive clients are sent after a denial.
const LoginPath = "/login"

// contextKey is unexported so only this package can read or write session
// values in a request context.
type contextKey string

const sessionKey contextKey = "session"

// loaded is what Load stores in the context: the decoded session (possibly
// stale) and its freshness verdict.
type loaded struct {
	sess   *Session
	reason Reason
}

// Middleware connects the Gate to HTTP: it decodes the session cookie,
// enforces requirements and renders denials.
type Middleware struct {
	tokens       *TokenService
	gate         *Gate
	logger       *slog.Logger
	secureCookie bool
	now          func() time.Time
}

// NewMiddleware builds the HTTP side of the gate. secureCookie sets the Secure
// attribute on the session cookie and should be on behind HTTPS.
func NewMiddleware(tokens *TokenService, gate *Gate, logger *slog.Logger, secureCookie bool) *Middleware {
	return &Middleware{
		tokens:       tokens,
		gate:         gate,
		logger:       logger,
		secureCookie: secureCookie,
		now:          time.Now,
	}
}

// Load decodes the session cookie once per request and stores it in the
// context. It never rejects a request; it only clears cookies that cannot be
// trusted.
func (m *Middleware) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := m.decode(w, r)
		ctx := context.WithValue(r.Context(), sessionKey, l)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) decode(w http.ResponseWriter, r *http.Request) *loaded {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return &loaded{reason: ReasonNotLoggedIn}
	}

	sess, err := m.tokens.Decode(cookie.Value)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			m.logger.Warn("discarding untrusted session cookie",
				"error", err,
				"remote_addr", r.RemoteAddr,
			)
			m.ClearCookie(w)
		}
		return &loaded{reason: ReasonNotLoggedIn}
	}

	return &loaded{sess: sess, reason: sess.Check(m.now(), m.gate.TTL())}
}

// Require guards next with req. It must run after Load; if it does not, it
// decodes the cookie itself.
func (m *Middleware) Require(req permission.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l, ok := r.Context().Value(sessionKey).(*loaded)
			if !ok {
				l = m.decode(w, r)
				r = r.WithContext(context.WithValue(r.Context(), sessionKey, l))
			}

			d := m.gate.Decide(l.sess, req, m.now())
			if !d.Allowed {
				if d.Reason.SessionFailure() {
					l.sess, l.reason = nil, d.Reason
				}
				m.deny(w, r, d.Reason, req)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// deny renders a denial for the kind of client that made r.
//
//	interactive  → 303 to /login?return_to=..., notice cookie
//	programmatic → 401/403 JSON {"error": REASON, "message": ...}
func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, reason Reason, req permission.Requirement) {
	kind := DetectClient(r)
	metrics.AuthDenialsTotal.WithLabelValues(string(reason), kind.String()).Inc()

	m.logger.Info("request denied",
		"reason", reason,
		"client", kind.String(),
		"method", r.Method,
		"path", r.URL.Path,
		"requires", req.String(),
	)

	if reason.SessionFailure() {
		m.ClearCookie(w)
	}

	if kind == Programmatic {
		status := http.StatusForbidden
		if reason.SessionFailure() {
			status = http.StatusUnauthorized
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{
			"error":   string(reason),
			"message": reason.Message(),
		})
		return
	}

	flash.Set(w, reason.Message())
	http.Redirect(w, r, LoginURL(returnTarget(r)), http.StatusSeeOther)
}

// returnTarget picks the page to come back to after login. Only GET
// navigations are worth returning to; a form POST would replay as a GET on a
// route that may not exist.
func returnTarget(r *http.Request) string {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return r.URL.RequestURI()
	}
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Host == r.Host {
		return ref.RequestURI()
	}
	return ""
}

// LoginURL builds the login link, carrying returnTo when it is a local path.
func LoginURL(returnTo string) string {
	if returnTo = SafeReturnTo(returnTo); returnTo == "/" {
		return LoginPath
	}
	return LoginPath + "?return_to=" + url.QueryEscape(returnTo)
}

// SafeReturnTo returns target if it is a path on this site, otherwise "/".
// It blocks open redirects such as "//evil.example" or "https://evil.example".
func SafeReturnTo(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return target
}

// IssueCookie signs sess into the session cookie.
func (m *Middleware) IssueCookie(w http.ResponseWriter, sess *Session) error {
	token, err := m.tokens.Encode(sess)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.gate.TTL().Seconds()),
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie removes the session cookie from the browser.
func (m *Middleware) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionFromContext returns the request's session if it is present and
// fresh. Stale or corrupt sessions read as anonymous.
//
// Usage in handlers:
//
//	sess, ok := auth.SessionFromContext(r.Context())
//	if !ok {
//	    // anonymous visitor
//	}
func SessionFromContext(ctx context.Context) (*Session, bool) {
	l, ok := ctx.Value(sessionKey).(*loaded)
	if !ok || l.sess == nil || l.reason != ReasonNone {
		return nil, false
	}
	return l.sess, true
}

// WithSession returns a context carrying sess as a fresh session. Handlers
// use it after login; tests use it to skip cookie handling.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, &loaded{sess: sess})
}
