package api

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageIndex  = "index.html"
	pageEdit   = "edit.html"
	pageAdd    = "add.html"
	pageSelect = "select.html"
	pageError  = "error.html"
)

var templateFuncs = template.FuncMap{
	"rating": func(v *float64) string {
		if v == nil {
			return "–"
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	},
	"rank": func(v *int) string {
		if v == nil {
			return "?"
		}
		return strconv.Itoa(*v)
	},
	"text": func(v *string) string {
		if v == nil {
			return ""
		}
		return *v
	},
}

// views - набор шаблонов страниц, каждая собрана вместе с layout.html.
type views map[string]*template.Template

func loadViews() (views, error) {
	v := views{}
	for _, page := range []string{pageIndex, pageEdit, pageAdd, pageSelect, pageError} {
		t, err := template.New(page).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", page, err)
		}
		v[page] = t
	}
	return v, nil
}

func (v views) render(w io.Writer, page string, data any) error {
	t, ok := v[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	return t.ExecuteTemplate(w, "layout", data)
}
