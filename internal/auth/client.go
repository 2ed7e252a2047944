package auth

import (
	"context"
	"mime"
	"net/http"
	"strings"
)

// ClientKind selects how a denial is presented.
type ClientKind int

const (
	// Interactive clients are browsers navigating pages. They get redirects
	// and a notice.
	Interactive ClientKind = iota
	// Programmatic clients are scripts, XHR calls and API consumers. They get
	// a status code and a JSON reason, never a redirect.
	Programmatic
)

func (k ClientKind) String() string {
	if k == Programmatic {
		return "programmatic"
	}
	return "interactive"
}

type programmaticKey struct{}

// MarkProgrammatic is a middleware for route groups that only serve machine
// clients (the JSON API, vote endpoints). Every request under it is treated
// as Programmatic regardless of its headers.
func MarkProgrammatic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), programmaticKey{}, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DetectClient classifies r. A request is programmatic when its route is
// marked, when it says it is an XHR, or when its Accept header ranks JSON
// ahead of HTML.
func DetectClient(r *http.Request) ClientKind {
	if marked, _ := r.Context().Value(programmaticKey{}).(bool); marked {
		return Programmatic
	}
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return Programmatic
	}
	if prefersJSON(r.Header.Get("Accept")) {
		return Programmatic
	}
	return Interactive
}

// prefersJSON walks the Accept list in order and reports whether JSON shows
// up before any HTML type. Quality values are not weighed; browsers always
// list text/html first.
func prefersJSON(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch {
		case mediaType == "text/html" || mediaType == "application/xhtml+xml":
			return false
		case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
			return true
		}
	}
	return false
}
