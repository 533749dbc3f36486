package httpx

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/domain/model"
	"github.com/target/notekeeper/internal/http/uiutil"
)

//go:embed templates/layout.tmpl templates/pages/*.tmpl
var templateFS embed.FS

// PageData is the view model shared by every page template.
type PageData struct {
	Title       string
	Page        string
	Viewer      *domainauth.Identity
	Error       string
	RedirectURI string
	Email       string
	SSOEnabled  bool

	Notes      []*model.Note
	Categories []string
	Note       *model.Note
}

// TemplateRenderer renders the HTML pages. Each page is parsed into its own
// clone of the layout so every page can define "content".
type TemplateRenderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS // defaults to the embedded templates
	Logger     *slog.Logger
}

// NewTemplateRenderer parses the layout and every page template.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	fsys := cfg.TemplateFS
	if fsys == nil {
		sub, err := fs.Sub(templateFS, "templates")
		if err != nil {
			return nil, fmt.Errorf("open embedded templates: %w", err)
		}
		fsys = sub
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base, err := template.New("layout").Funcs(templateFuncs()).ParseFS(fsys, "layout.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	r := &TemplateRenderer{pages: make(map[string]*template.Template), logger: logger}
	for _, page := range []string{PageLogin, PageDashboard, PageNote, PageLoading, PageError} {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout for %s: %w", page, err)
		}
		t, err := clone.ParseFS(fsys, "pages/"+page+".tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", page, err)
		}
		r.pages[page] = t
	}
	return r, nil
}

// Render writes data.Page with the given status.
func (r *TemplateRenderer) Render(w http.ResponseWriter, status int, data PageData) error {
	t, ok := r.pages[data.Page]
	if !ok {
		return fmt.Errorf("unknown page %q", data.Page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("template execution failed",
			slog.String("template", data.Page),
			slog.Any("error", err),
		)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		r.logger.Debug("failed to write rendered template",
			slog.String("template", data.Page),
			slog.Any("error", err),
		)
	}
	return nil
}

// renderPage renders a page, falling back to plain text when the template fails.
func renderPage(w http.ResponseWriter, pages *TemplateRenderer, status int, data PageData) {
	if pages != nil && pages.Render(w, status, data) == nil {
		return
	}
	msg := data.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	http.Error(w, msg, status)
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"friendlyTime": uiutil.DateTime,
		"since":        func(t time.Time) string { return uiutil.Since(time.Now(), t) },
		"truncateText": uiutil.Truncate,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}
}
