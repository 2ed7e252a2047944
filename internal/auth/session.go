// Package auth owns everything between a request and an authorization
// decision: the session snapshot, its signed cookie transport, the gate that
// decides, and the middleware that turns a denial into a response.
//
// AUTHORIZATION FLOW OVERVIEW:
//  1. Login (password or GitHub) → Start() snapshots the user's name, id and
//     permission mask together with the issue time.
//  2. The snapshot is signed into a JWT (token.go) and stored in the
//     HttpOnly "session" cookie.
//  3. Each request decodes the cookie once (Middleware.Load).
//  4. Routes that need more than an anonymous visitor are wrapped in
//     Middleware.Require(requirement), which asks the Gate for a Decision.
//  5. Denials are rendered differently for browsers (redirect to /login with
//     a notice) and for API/XHR callers (JSON with a reason code).
//
// SNAPSHOT STALENESS:
// The mask inside the cookie is captured at login. If a moderator changes a
// user's flags, the user keeps the old mask until they log in again or the
// session expires. Sessions are short enough (7 days by default) for this to
// be acceptable, and it means authorization needs no database read.
package auth

import (
	"time"

	"github.com/rs/xid"
	"github.com/sakif/quoteboard/internal/model"
	"github.com/sakif/quoteboard/internal/permission"
)

// DefaultTTL is how long a session stays fresh after login.
const DefaultTTL = 7 * 24 * time.Hour

// clockSkew tolerates small differences between the clock that issued a
// session and the one checking it.
const clockSkew = time.Minute

// Reason is the stable, machine-readable cause of a denial.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotLoggedIn      Reason = "NOT_LOGGED_IN"
	ReasonSessionExpired   Reason = "SESSION_EXPIRED"
	ReasonInvalidTimestamp Reason = "INVALID_TIMESTAMP"
	ReasonUnauthorized     Reason = "UNAUTHORIZED"
)

// SessionFailure reports whether the reason is about the session itself
// rather than about missing permissions. Such sessions are invalidated.
func (r Reason) SessionFailure() bool {
	switch r {
	case ReasonNotLoggedIn, ReasonSessionExpired, ReasonInvalidTimestamp:
		return true
	}
	return false
}

// Message is the user-facing text shown for a denial.
func (r Reason) Message() string {
	switch r {
	case ReasonNotLoggedIn:
		return "You need to log in to do that."
	case ReasonSessionExpired:
		return "Your session has expired. Please log in again."
	case ReasonInvalidTimestamp:
		return "Your session was invalid. Please log in again."
	case ReasonUnauthorized:
		return "You are not allowed to do that."
	}
	return ""
}

// Session is the identity and permission snapshot carried by the session
// cookie. It is never re-read from storage during a request.
type Session struct {
	ID       string
	UserID   int64
	Username string
	Mask     permission.Mask
	IssuedAt time.Time
}

// Start snapshots user at time now.
func Start(user *model.User, now time.Time) *Session {
	return &Session{
		ID:       xid.New().String(),
		UserID:   user.ID,
		Username: user.Name,
		Mask:     user.Flags,
		IssuedAt: now.UTC(),
	}
}

func (s *Session) populated() bool {
	return s != nil && (s.UserID != 0 || s.Username != "")
}

// IsExpired reports whether more than ttl has passed since the session was
// issued.
func (s *Session) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.IssuedAt) > ttl
}

// Check classifies the session at time now. It returns ReasonNone for a
// fresh session.
//
// A populated session without an issue time is corrupt, which is reported
// separately from plain expiry.
func (s *Session) Check(now time.Time, ttl time.Duration) Reason {
	if !s.populated() {
		return ReasonNotLoggedIn
	}
	if s.IssuedAt.IsZero() || s.IssuedAt.After(now.Add(clockSkew)) {
		return ReasonInvalidTimestamp
	}
	if s.IsExpired(now, ttl) {
		return ReasonSessionExpired
	}
	return ReasonNone
}

// Invalidate clears every field. Calling it twice, or on nil, is fine.
func (s *Session) Invalidate() {
	if s == nil {
		return
	}
	*s = Session{}
}

// Can reports whether the snapshot grants p.
func (s *Session) Can(p permission.Permission) bool {
	if s == nil {
		return false
	}
	return permission.Has(s.Mask, p)
}
