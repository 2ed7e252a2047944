// Package flash carries a one-shot notice across a redirect in a short-lived
// cookie. The notice is read once and then cleared.
package flash

import (
	"encoding/base64"
	"net/http"
)

// CookieName is the cookie holding the pending notice.
const CookieName = "notice"

const maxAge = 60 // seconds

// Set stores msg for the next page view.
func Set(w http.ResponseWriter, msg string) {
	if msg == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(msg)),
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Take returns the pending notice, if any, and clears it.
func Take(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	msg, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return ""
	}
	return string(msg)
}
