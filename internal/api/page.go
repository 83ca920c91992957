package api

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"path/filepath"

	"image-converter/internal/util"
)

// PageData is what the page template renders with.
type PageData struct {
	Title            string
	MaxImageMB       int64
	CameraConfigured bool
}

var pageFuncs = template.FuncMap{
	"cn":       util.ClassNames,
	"truncate": util.Truncate,
}

// NewPageHandler parses the template at path once and serves it on GET.
func NewPageHandler(path string, data PageData) (http.Handler, error) {
	tmpl, err := template.New(filepath.Base(path)).Funcs(pageFuncs).ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return pageHandler{tmpl: tmpl, data: data}, nil
}

type pageHandler struct {
	tmpl *template.Template
	data PageData
}

func (h pageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, h.data); err != nil {
		log.Printf("render page: %v", err)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
