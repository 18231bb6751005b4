package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"coursedesk/internal/adapters/http/middleware"
	"coursedesk/internal/application/panel"
	"coursedesk/internal/application/projections"
	"coursedesk/internal/domain/schema"
)

type tabLink struct {
	Kind   schema.Kind
	Active bool
}

type dashboardPage struct {
	Locale       string
	Locales      []string
	Tabs         []tabLink
	Stats        *projections.DashboardResult
	StatsFailed  bool
	LoginEnabled bool
	Panel        panelView
}

type panelView struct {
	Kind    schema.Kind
	Loaded  bool
	Columns []schema.Field
	Rows    []rowView
	Notice  *panel.Notice
	Dialog  *dialogView
}

type rowView struct {
	ID    string
	Cells []cellView
}

// cellView is one list cell. Display selects how the template renders it:
// text, date, money, markdown, bool, toggle or ref.
type cellView struct {
	Display string
	Text    string
	Number  float64
	On      bool
	Ref     panel.Resolution
}

type dialogView struct {
	Editing    string
	Submitting bool
	Inputs     []inputView
}

// inputView is one form control. Control is text, email, tel, date,
// number, textarea, checkbox or select.
type inputView struct {
	Name    string
	Control string
	Step    string
	Value   string
	Checked bool
	Options []panel.Option
	Missing bool // a reference is set but matches no selectable record
}

// handleDashboard renders the shell with the stats cards and the active
// panel. A request without ?tab is a full page load: stats are refreshed
// and the active panel reloads.
func (a *app) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if lang := r.URL.Query().Get("lang"); lang != "" && a.Translator.Supported(lang) {
		s := session(r)
		s.Locale = lang
		if a.Sessions.Update(s) {
			r = r.WithContext(middleware.ContextWithSession(r.Context(), s))
		}
	}

	ws := a.workspace(r)
	tab := r.URL.Query().Get("tab")
	full := tab == ""
	kind := ws.Active()
	if !full {
		kind = schema.Kind(tab)
	}
	p, err := ws.Panel(kind)
	if err != nil {
		a.renderError(w, r, http.StatusNotFound, "error.not_found")
		return
	}

	if stats, statsErr := ws.Stats(); full || (stats == nil && statsErr == nil) {
		_ = ws.RefreshStats(r.Context())
	}

	sameTab := ws.Active() == kind && p.Loaded()
	if _, err := ws.Show(r.Context(), kind); err != nil {
		slog.Debug("dashboard_panel_load_failed", "kind", kind, "error", err)
	} else if full && sameTab {
		if err := p.Reload(r.Context()); err != nil && !errors.Is(err, panel.ErrStale) {
			slog.Debug("dashboard_panel_load_failed", "kind", kind, "error", err)
		}
	}

	stats, statsErr := ws.Stats()
	page := dashboardPage{
		Locale:       a.locale(r),
		Locales:      []string{"de", "en"},
		Stats:        stats,
		StatsFailed:  statsErr != nil,
		LoginEnabled: a.Options.AdminPasswordHash != "",
		Panel:        buildPanelView(p.View()),
	}
	for _, e := range schema.All() {
		page.Tabs = append(page.Tabs, tabLink{Kind: e.Kind, Active: e.Kind == kind})
	}
	a.render(w, r, http.StatusOK, "dashboard.html", page)
}

// handleStatsRefresh recomputes the stats snapshot.
func (a *app) handleStatsRefresh(w http.ResponseWriter, r *http.Request) {
	ws := a.workspace(r)
	_ = ws.RefreshStats(r.Context())
	backToTab(w, r, ws.Active())
}

type errorPage struct {
	Locale  string
	Status  int
	Message string
}

func (a *app) renderError(w http.ResponseWriter, r *http.Request, status int, key string) {
	a.render(w, r, status, "error.html", errorPage{Locale: a.locale(r), Status: status, Message: key})
}

// buildPanelView turns a panel snapshot into display rows and, when the
// dialog is open, form controls.
func buildPanelView(v panel.View) panelView {
	pv := panelView{
		Kind:    v.Kind(),
		Loaded:  v.Loaded,
		Columns: v.Entity.Fields,
		Notice:  v.Notice,
	}
	for _, row := range v.Rows {
		rv := rowView{ID: row.Record.ID, Cells: make([]cellView, 0, len(v.Entity.Fields))}
		for _, f := range v.Entity.Fields {
			rv.Cells = append(rv.Cells, buildCell(f, row))
		}
		pv.Rows = append(pv.Rows, rv)
	}
	if v.DialogOpen {
		d := &dialogView{Editing: v.Editing, Submitting: v.Submitting}
		for _, f := range v.Entity.Fields {
			d.Inputs = append(d.Inputs, buildInput(f, v.Draft[f.Name], v.Options[f.Name]))
		}
		pv.Dialog = d
	}
	return pv
}

func buildCell(f schema.Field, row panel.Row) cellView {
	fields := row.Record.Fields
	switch f.Type {
	case schema.Date:
		return cellView{Display: "date", Text: fields.String(f.Name)}
	case schema.Decimal:
		return cellView{Display: "money", Number: fields.Number(f.Name)}
	case schema.Integer:
		return cellView{Display: "text", Text: strconv.Itoa(fields.Int(f.Name))}
	case schema.LongText:
		return cellView{Display: "markdown", Text: fields.String(f.Name)}
	case schema.Bool:
		return cellView{Display: "toggle", On: fields.Bool(f.Name)}
	case schema.Reference:
		return cellView{Display: "ref", Ref: row.Refs[f.Name]}
	default:
		return cellView{Display: "text", Text: fields.String(f.Name)}
	}
}

func buildInput(f schema.Field, value string, options []panel.Option) inputView {
	in := inputView{Name: f.Name, Value: value}
	switch f.Type {
	case schema.LongText:
		in.Control = "textarea"
	case schema.Email:
		in.Control = "email"
	case schema.Phone:
		in.Control = "tel"
	case schema.Date:
		in.Control = "date"
	case schema.Integer:
		in.Control, in.Step = "number", "1"
	case schema.Decimal:
		in.Control, in.Step = "number", "0.01"
	case schema.Bool:
		in.Control = "checkbox"
		in.Checked = panel.CoerceBool(value)
	case schema.Reference:
		in.Control = "select"
		in.Options = options
		if value != "" {
			in.Missing = true
			for _, o := range options {
				if o.ID == value {
					in.Missing = false
					break
				}
			}
		}
	default:
		in.Control = "text"
	}
	return in
}
