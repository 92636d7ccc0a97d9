package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/dukerupert/gasportal/internal/auth"
	"github.com/dukerupert/gasportal/internal/flash"
	"github.com/dukerupert/gasportal/internal/form"
	"github.com/dukerupert/gasportal/internal/model"
	"github.com/dukerupert/gasportal/web"
)

const appTitle = "Gas Utility Service"

// page is the data every full-page template receives.
type page struct {
	Title         string
	Authenticated bool
	User          *model.User
	Notices       []flash.Notice

	// login
	Email string

	// index
	Services []model.Service
	Draft    form.RequestDraft
	Accept   string
	Status   statusView
}

// Renderer executes the embedded templates. Each page is parsed into its own
// clone of the shared layout so pages can all define "content".
type Renderer struct {
	base   *template.Template
	pages  map[string]*template.Template
	logger *slog.Logger
}

func NewRenderer(logger *slog.Logger) (*Renderer, error) {
	base, err := template.New("").ParseFS(web.FS, "templates/layout.html", "templates/status.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	r := &Renderer{base: base, pages: make(map[string]*template.Template), logger: logger}
	for _, name := range []string{"index", "login"} {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout: %w", err)
		}
		if _, err := t.ParseFS(web.FS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// newPage fills the fields shared by every page and drains the device's
// pending notices.
func newPage(req *http.Request, notices *flash.Queue, title string) page {
	ctx := req.Context()
	state := auth.State(ctx)
	return page{
		Title:         title,
		Authenticated: state.IsAuthenticated,
		User:          state.User,
		Notices:       notices.Drain(auth.DeviceID(ctx)),
	}
}

func (r *Renderer) render(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.pages[name]
	if !ok {
		r.logger.Error("unknown page", "page", name)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("template error", "page", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (r *Renderer) renderPartial(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := r.base.ExecuteTemplate(w, name, data); err != nil {
		r.logger.Error("template error", "partial", name, "error", err)
		fmt.Fprint(w, `<div class="text-utility-error">Template error</div>`)
	}
}

// redirect navigates the browser to url, using HX-Redirect for HTMX requests.
func redirect(w http.ResponseWriter, r *http.Request, url string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", url)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}
