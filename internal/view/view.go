// Package view renders HTML pages.
//
// Every page is the "base" layout plus one page template defining "content".
// Handlers never pass loose values to templates: they build a Page, which
// always carries the viewer's session and the pending notice explicitly.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/quoteboard/internal/auth"
	"github.com/sakif/quoteboard/internal/permission"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page is the data every template receives.
type Page struct {
	Title   string
	Session *auth.Session
	Notice  string
	Error   string
	Data    any
}

// Renderer writes a named page with the given status.
type Renderer interface {
	Render(w http.ResponseWriter, status int, page string, data Page)
}

// Templates is the html/template Renderer. Pages are parsed once at startup.
type Templates struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

var pageNames = []string{
	"quotes",
	"quote",
	"quote_form",
	"login",
	"register",
	"account",
	"users",
	"user_edit",
	"modlog",
	"error",
}

// New parses the embedded templates.
func New(logger *slog.Logger) (*Templates, error) {
	t := &Templates{
		pages:  make(map[string]*template.Template, len(pageNames)),
		logger: logger,
	}
	for _, name := range pageNames {
		tmpl, err := template.New("base.html").Funcs(funcs).ParseFS(templateFS,
			"templates/base.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("view: parsing %s: %w", name, err)
		}
		t.pages[name] = tmpl
	}
	return t, nil
}

// Render executes page into a buffer first so a template error turns into a
// clean 500 instead of a half-written page.
func (t *Templates) Render(w http.ResponseWriter, status int, page string, data Page) {
	tmpl, ok := t.pages[page]
	if !ok {
		t.logger.Error("unknown page", "page", page)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		t.logger.Error("template execution failed", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Static returns the embedded static assets rooted at "static".
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err) // the directory is embedded at build time
	}
	return sub
}

// flagBox is one checkbox in the flag editor.
type flagBox struct {
	Name    string
	Bit     uint32
	Checked bool
}

var funcs = template.FuncMap{
	// can reports whether the session holds the named permission.
	"can": func(s *auth.Session, name string) bool {
		p, err := permission.Parse(name)
		if err != nil {
			return false
		}
		return s.Can(p)
	},
	"date": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04")
	},
	"add": func(a, b int) int { return a + b },
	"flagBoxes": func(m permission.Mask) []flagBox {
		boxes := make([]flagBox, 0, len(permission.List()))
		for _, p := range permission.List() {
			boxes = append(boxes, flagBox{Name: p.String(), Bit: uint32(p), Checked: m.Has(p)})
		}
		return boxes
	},
}
