// Package web serves the single-page extraction UI.
package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

// Options are rendered into the page.
type Options struct {
	Title       string
	MaxUploadMB int64
}

type Web struct {
	tpl  *template.Template
	opts Options
}

func New(opts Options) (*Web, error) {
	tpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	if opts.Title == "" {
		opts.Title = "PDF Page Extractor"
	}
	return &Web{tpl: tpl, opts: opts}, nil
}

func (w *Web) RegisterRoutes(r *gin.Engine) {
	r.GET("/", w.handleIndex)
}

func (w *Web) handleIndex(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := w.tpl.ExecuteTemplate(c.Writer, "index.html", w.opts); err != nil {
		_ = c.Error(err)
	}
}
