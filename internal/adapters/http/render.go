package web

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"

	"coursedesk/internal/adapters/i18n"
	"coursedesk/internal/domain/schema"
)

//go:embed templates/*.html
var templatesFS embed.FS

// mdRenderer renders course descriptions. Raw HTML in the source is
// dropped.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
	),
)

// renderMarkdown converts markdown to sanitised HTML.
func renderMarkdown(s string) template.HTML {
	if s == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(s), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(s))
	}
	return template.HTML(buf.String())
}

// pageSet holds the parsed templates. Each page is cloned per request so
// that request-bound functions can be attached.
type pageSet struct {
	base *template.Template
}

// placeholderFuncs stands in for the per-request template functions,
// so parsing succeeds before a request is known.
func placeholderFuncs() template.FuncMap {
	return template.FuncMap{
		"csrfField":  func() template.HTML { return "" },
		"t":          func(key string, kv ...any) string { return key },
		"date":       func(s string) string { return s },
		"money":      func(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) },
		"fieldLabel": func(kind schema.Kind, name string) string { return name },
		"entityName": func(kind schema.Kind) string { return string(kind) },
		"markdown":   renderMarkdown,
		"dict":       dict,
	}
}

// dict builds a map from key/value pairs for passing several values to a
// nested template.
func dict(kv ...any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			m[k] = kv[i+1]
		}
	}
	return m
}

func mustParsePages() *pageSet {
	base := template.Must(template.New("").Funcs(placeholderFuncs()).ParseFS(templatesFS, "templates/*.html"))
	return &pageSet{base: base}
}

// requestFuncs binds translation, formatting and the CSRF field to r.
func requestFuncs(r *http.Request, tr *i18n.Translator, locale string) template.FuncMap {
	t := func(key string, kv ...any) string {
		var data map[string]any
		if len(kv) > 1 {
			data = dict(kv...)
		}
		return tr.T(locale, key, data)
	}
	return template.FuncMap{
		"csrfField": func() template.HTML { return csrf.TemplateField(r) },
		"t":         t,
		"date":      func(s string) string { return tr.FormatDate(locale, s) },
		"money":     func(f float64) string { return tr.FormatMoney(locale, f) },
		"fieldLabel": func(kind schema.Kind, name string) string {
			return t("field." + string(kind) + "." + name)
		},
		"entityName": func(kind schema.Kind) string { return t("entity." + string(kind)) },
		"markdown":   renderMarkdown,
		"dict":       dict,
	}
}

// render executes the named page into a buffer, then writes it, so that a
// template error never leaves a half-written page.
func (a *app) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	tpl, err := a.pages.base.Clone()
	if err != nil {
		internalError(w, err)
		return
	}
	tpl.Funcs(requestFuncs(r, a.Translator, a.locale(r)))

	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("template_failed", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
