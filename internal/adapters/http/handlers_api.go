package web

import (
	"cmp"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coursedesk/internal/adapters/http/perf"
	"coursedesk/internal/application/listutil"
	"coursedesk/internal/application/panel"
	"coursedesk/internal/domain/record"
	"coursedesk/internal/domain/schema"
)

// perfWindow is how far back /api/perf aggregates.
const perfWindow = 15 * time.Minute

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json_encode_failed", "error", err)
	}
}

type statsResponse struct {
	ActiveCourses     int       `json:"active_courses"`
	TotalParticipants int       `json:"total_participants"`
	Instructors       int       `json:"instructors"`
	Revenue           float64   `json:"revenue"`
	PaidRegistrations int       `json:"paid_registrations"`
	OpenRegistrations int       `json:"open_registrations"`
	ComputedAt        time.Time `json:"computed_at"`
}

// handleAPIStats returns the caller's stats snapshot, computing it when none
// exists yet.
func (a *app) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	ws := a.workspace(r)
	stats, _ := ws.Stats()
	if stats == nil || r.URL.Query().Get("refresh") == "1" {
		if err := ws.RefreshStats(r.Context()); err != nil && stats == nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "stats unavailable"})
			return
		}
		stats, _ = ws.Stats()
	}
	writeJSON(w, http.StatusOK, statsResponse{
		ActiveCourses:     stats.ActiveCourses,
		TotalParticipants: stats.TotalParticipants,
		Instructors:       stats.Instructors,
		Revenue:           stats.Revenue,
		PaidRegistrations: stats.PaidRegistrations,
		OpenRegistrations: stats.OpenRegistrations,
		ComputedAt:        stats.ComputedAt,
	})
}

type refJSON struct {
	ID         string `json:"id,omitempty"`
	Label      string `json:"label,omitempty"`
	Unresolved bool   `json:"unresolved,omitempty"`
}

type rowJSON struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"createdat"`
	UpdatedAt *time.Time         `json:"updatedat,omitempty"`
	Fields    record.Fields      `json:"fields"`
	Refs      map[string]refJSON `json:"refs,omitempty"`
}

type panelJSON struct {
	Kind   string    `json:"kind"`
	Loaded bool      `json:"loaded"`
	Rows   []rowJSON `json:"rows"`
}

// handleAPIPanel returns the caller's panel of {kind} with resolved
// references. It loads the panel when it never loaded but does not change
// the active tab. ?q= filters rows by any field or reference label and
// ?sort=<field>&dir=asc|desc orders them.
func (a *app) handleAPIPanel(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown kind"})
		return
	}
	p, err := a.workspace(r).Panel(kind)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown kind"})
		return
	}
	if !p.Loaded() {
		if err := p.Reload(r.Context()); err != nil && !errors.Is(err, panel.ErrStale) {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "load failed"})
			return
		}
	}

	v := p.View()
	params := listutil.Parse(r.URL.Query(), fieldNames(v.Entity))
	rows := listutil.Filter(v.Rows, params.Search, rowText)
	if params.Sort != "" {
		rows = append([]panel.Row(nil), rows...)
		f, _ := v.Entity.Field(params.Sort)
		listutil.Sort(rows, params.Desc(), compareBy(f))
	}

	out := panelJSON{Kind: string(kind), Loaded: v.Loaded, Rows: make([]rowJSON, 0, len(rows))}
	for _, row := range rows {
		rj := rowJSON{
			ID:        row.Record.ID,
			CreatedAt: row.Record.CreatedAt,
			UpdatedAt: row.Record.UpdatedAt,
			Fields:    row.Record.Fields,
		}
		for name, res := range row.Refs {
			if res.State == panel.RefNone {
				continue
			}
			if rj.Refs == nil {
				rj.Refs = make(map[string]refJSON)
			}
			rj.Refs[name] = refJSON{ID: res.ID, Label: res.Label, Unresolved: res.Unresolved()}
		}
		out.Rows = append(out.Rows, rj)
	}
	writeJSON(w, http.StatusOK, out)
}

func fieldNames(e schema.Entity) []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// rowText is the searchable text of a row: its field values and the labels
// of resolved references.
func rowText(row panel.Row) []string {
	out := make([]string, 0, len(row.Record.Fields)+len(row.Refs))
	for name := range row.Record.Fields {
		if _, isRef := row.Refs[name]; isRef {
			continue
		}
		out = append(out, row.Record.Fields.String(name))
	}
	for _, res := range row.Refs {
		if res.Resolved() {
			out = append(out, res.Label)
		}
	}
	return out
}

// compareBy orders rows by field f according to its type. References
// compare by label; unresolved and empty references sort first.
func compareBy(f schema.Field) func(a, b panel.Row) int {
	switch f.Type {
	case schema.Integer, schema.Decimal:
		return func(a, b panel.Row) int {
			return cmp.Compare(a.Record.Fields.Number(f.Name), b.Record.Fields.Number(f.Name))
		}
	case schema.Bool:
		return func(a, b panel.Row) int {
			return cmp.Compare(boolRank(a.Record.Fields.Bool(f.Name)), boolRank(b.Record.Fields.Bool(f.Name)))
		}
	case schema.Reference:
		return func(a, b panel.Row) int {
			return strings.Compare(strings.ToLower(a.Refs[f.Name].Label), strings.ToLower(b.Refs[f.Name].Label))
		}
	default:
		return func(a, b panel.Row) int {
			return strings.Compare(strings.ToLower(a.Record.Fields.String(f.Name)), strings.ToLower(b.Record.Fields.String(f.Name)))
		}
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// handleAPIPerf returns the perf collector aggregate. ?top=N limits the
// slowest lists (default 10).
func (a *app) handleAPIPerf(w http.ResponseWriter, r *http.Request) {
	if a.Collector == nil {
		writeJSON(w, http.StatusOK, perf.Snapshot{})
		return
	}
	top := 10
	if n, err := strconv.Atoi(r.URL.Query().Get("top")); err == nil && n > 0 && n <= 100 {
		top = n
	}
	writeJSON(w, http.StatusOK, a.Collector.Snapshot(time.Now().Add(-perfWindow), top))
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
