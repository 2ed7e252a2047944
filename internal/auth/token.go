package auth

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sakif/quoteboard/internal/permission"
)

// issuer is checked on every decode so tokens minted by other apps sharing
// the secret are rejected.
const issuer = "quoteboard"

var (
	// ErrNoSession means the request carried no session token at all.
	ErrNoSession = errors.New("auth: no session")
	// ErrMalformedSession means a token was present but could not be trusted:
	// bad signature, wrong algorithm, unknown fields or impossible values.
	ErrMalformedSession = errors.New("auth: malformed session")
)

// TokenService signs sessions into JWTs and verifies them.
//
// WHY A JWT FOR THE SESSION?
// The session carries the permission snapshot used for authorization, so the
// client must not be able to edit it. An HMAC signature gives exactly that
// without a server-side session table. The token has no "exp" claim: freshness
// is a policy decision made by the Gate from "iat", so an expired session is
// still decodable and can be reported as SESSION_EXPIRED instead of a generic
// failure.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; a missing secret is a fatal configuration error.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// sessionClaims is the JWT payload.
//
//	sub   → user id (decimal)
//	name  → username
//	flags → permission mask snapshot
//	iat   → issue time
//	jti   → session id
type sessionClaims struct {
	Name  string `json:"name"`
	Flags uint32 `json:"flags"`
	jwt.RegisteredClaims
}

// Encode signs s into a compact JWT.
func (ts *TokenService) Encode(s *Session) (string, error) {
	if !s.populated() {
		return "", errors.New("auth: cannot encode an empty session")
	}

	c := sessionClaims{
		Name:  s.Username,
		Flags: uint32(s.Mask),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: strconv.FormatInt(s.UserID, 10),
			ID:      s.ID,
			Issuer:  issuer,
		},
	}
	if !s.IssuedAt.IsZero() {
		c.IssuedAt = jwt.NewNumericDate(s.IssuedAt)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(ts.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing session: %w", err)
	}
	return signed, nil
}

// Decode verifies tokenStr and rebuilds the Session.
//
// Decode does not judge freshness. A token with a missing "iat" decodes into
// a Session with a zero IssuedAt, which Session.Check reports as
// INVALID_TIMESTAMP.
func (ts *TokenService) Decode(tokenStr string) (*Session, error) {
	if tokenStr == "" {
		return nil, ErrNoSession
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&sessionClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return ts.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}

	c, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, ErrMalformedSession
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: bad subject %q", ErrMalformedSession, c.Subject)
	}
	if c.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrMalformedSession)
	}
	mask := permission.Mask(c.Flags)
	if !mask.Valid() {
		return nil, fmt.Errorf("%w: unknown permission bits %d", ErrMalformedSession, c.Flags)
	}

	s := &Session{
		ID:       c.ID,
		UserID:   userID,
		Username: c.Name,
		Mask:     mask,
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.UTC()
	}
	return s, nil
}
