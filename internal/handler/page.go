// Package handler contains the HTTP handlers.
//
// Handlers parse the request, call one service method and write the result,
// either as a rendered page for browsers or as JSON for scripts. They hold no
// business rules: route permissions are checked by auth.Middleware before a
// handler runs, and ownership rules live in the services.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/quoteboard/internal/apperror"
	"github.com/sakif/quoteboard/internal/auth"
	"github.com/sakif/quoteboard/internal/flash"
	"github.com/sakif/quoteboard/internal/service"
	"github.com/sakif/quoteboard/internal/view"
)

// pages bundles what every HTML handler needs to render.
type pages struct {
	views  view.Renderer
	logger *slog.Logger
}

// page builds the template payload. It consumes the pending notice, so it
// must be called before anything is written to w.
func (p pages) page(w http.ResponseWriter, r *http.Request, title string, data any) view.Page {
	sess, _ := auth.SessionFromContext(r.Context())
	return view.Page{
		Title:   title,
		Session: sess,
		Notice:  flash.Take(w, r),
		Data:    data,
	}
}

// render is page + Render in one call.
func (p pages) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	p.views.Render(w, status, name, p.page(w, r, title, data))
}

// renderForm re-renders a form page with err shown above it. Validation and
// conflict errors carry a message meant for the user; anything else is a
// server fault.
func (p pages) renderForm(w http.ResponseWriter, r *http.Request, name, title string, data any, err error) {
	status, _ := classify(err)
	pg := p.page(w, r, title, data)

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		pg.Error = appErr.Message
	} else {
		p.logger.Error("request failed", "path", r.URL.Path, "error", err)
		pg.Error = "Something went wrong. Please try again."
	}
	p.views.Render(w, status, name, pg)
}

// renderError shows a full-page error for err.
func (p pages) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := classify(err)
	if status == http.StatusInternalServerError {
		p.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	p.render(w, r, status, "error", http.StatusText(status), nil)
}

// redirect sends a browser to target with an optional notice.
func redirect(w http.ResponseWriter, r *http.Request, target, notice string) {
	flash.Set(w, notice)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// back redirects to the referring page on this site, or to fallback.
func back(w http.ResponseWriter, r *http.Request, fallback, notice string) {
	target := fallback
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Host == r.Host && ref.Path != "" {
		target = auth.SafeReturnTo(ref.RequestURI())
	}
	redirect(w, r, target, notice)
}

// actor returns who is making the request; anonymous if nobody is logged in.
func actor(r *http.Request) service.Actor {
	sess, _ := auth.SessionFromContext(r.Context())
	return service.ActorFromSession(sess)
}

// idParam parses the {id} URL parameter.
func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NotFound("page", chi.URLParam(r, "id"))
	}
	return id, nil
}

// pageParam reads ?page=N, defaulting to 1.
func pageParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// NotFound answers requests no route matched, in the client's format.
func NotFound(views view.Renderer, logger *slog.Logger) http.HandlerFunc {
	p := pages{views: views, logger: logger}
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.DetectClient(r) == auth.Programmatic {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "No such endpoint."})
			return
		}
		p.render(w, r, http.StatusNotFound, "error", http.StatusText(http.StatusNotFound), nil)
	}
}
