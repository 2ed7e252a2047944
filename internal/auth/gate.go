package auth

import (
	"time"

	"github.com/sakif/quoteboard/internal/permission"
)

// Decision is the outcome of one authorization check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Gate decides whether a session may perform an operation. It has no I/O and
// no knowledge of HTTP; Middleware renders its decisions.
type Gate struct {
	ttl time.Duration
}

// NewGate returns a Gate enforcing the given session lifetime. A non-positive
// ttl falls back to DefaultTTL.
func NewGate(ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{ttl: ttl}
}

// TTL returns the session lifetime the gate enforces.
func (g *Gate) TTL() time.Duration { return g.ttl }

// Decide runs the decision procedure in order:
//
//  1. missing, corrupt or stale session → deny with the session reason and
//     invalidate sess
//  2. LoggedIn requirement → allow
//  3. every required permission held → allow, else deny UNAUTHORIZED
//
// Step 3 fails closed: a requirement naming no permissions is never met.
func (g *Gate) Decide(sess *Session, req permission.Requirement, now time.Time) Decision {
	if reason := sess.Check(now, g.ttl); reason != ReasonNone {
		sess.Invalidate()
		return Decision{Reason: reason}
	}

	if req.AnyUser() {
		return Decision{Allowed: true}
	}

	if !permission.HasAll(sess.Mask, req.Permissions()...) {
		return Decision{Reason: ReasonUnauthorized}
	}
	return Decision{Allowed: true}
}
