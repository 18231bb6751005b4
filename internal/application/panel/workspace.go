package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"coursedesk/internal/application/projections"
	"coursedesk/internal/domain/schema"
)

// Workspace is one browser session's set of panels plus its dashboard
// stats snapshot.
type Workspace struct {
	deps   Deps
	panels map[schema.Kind]*Panel

	mu       sync.Mutex
	active   schema.Kind
	stats    *projections.DashboardResult
	statsErr error
	lastSeen time.Time
}

// NewWorkspace creates a workspace with one unloaded panel per entity.
func NewWorkspace(deps Deps) *Workspace {
	w := &Workspace{
		deps:     deps,
		panels:   make(map[schema.Kind]*Panel),
		active:   schema.KindCourses,
		lastSeen: deps.now(),
	}
	for _, e := range schema.All() {
		w.panels[e.Kind] = New(e, deps)
	}
	return w
}

// Panel returns the panel of kind.
func (w *Workspace) Panel(kind schema.Kind) (*Panel, error) {
	p, ok := w.panels[kind]
	if !ok {
		return nil, fmt.Errorf("panel %q: %w", kind, schema.ErrUnknownKind)
	}
	return p, nil
}

// Active returns the kind of the currently shown panel.
func (w *Workspace) Active() schema.Kind {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Show makes kind the active panel. The panel reloads when it becomes
// active or has never loaded; the previously active panel is detached.
// PRE: kind is a known entity kind
// POST: returns the reload error, if any; the panel is active either way
func (w *Workspace) Show(ctx context.Context, kind schema.Kind) (*Panel, error) {
	p, err := w.Panel(kind)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	prev := w.active
	w.active = kind
	w.lastSeen = w.deps.now()
	w.mu.Unlock()

	switched := prev != kind
	if switched {
		if old, ok := w.panels[prev]; ok {
			old.Detach()
		}
	}
	if !switched && p.Loaded() {
		return p, nil
	}
	if err := p.Reload(ctx); err != nil && !errors.Is(err, ErrStale) {
		return p, err
	}
	return p, nil
}

// RefreshStats recomputes the dashboard snapshot. On failure the previous
// snapshot is kept and the error is remembered for display.
func (w *Workspace) RefreshStats(ctx context.Context) error {
	res, err := projections.QueryGetDashboard(ctx, projections.GetDashboardDeps{
		Store:  w.deps.Store,
		AppIDs: w.deps.AppIDs,
	}, w.deps.now())

	w.mu.Lock()
	defer w.mu.Unlock()
	w.statsErr = err
	if err != nil {
		slog.Error("stats_refresh_failed", "error", err)
		return fmt.Errorf("refresh stats: %w", err)
	}
	w.stats = &res
	return nil
}

// Stats returns the current snapshot, nil before the first successful
// refresh, and the error of the latest refresh.
func (w *Workspace) Stats() (*projections.DashboardResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stats == nil {
		return nil, w.statsErr
	}
	s := *w.stats
	return &s, w.statsErr
}

func (w *Workspace) touch() {
	w.mu.Lock()
	w.lastSeen = w.deps.now()
	w.mu.Unlock()
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

// Registry maps session tokens to workspaces.
type Registry struct {
	deps Deps

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, workspaces: make(map[string]*Workspace)}
}

// Get returns the workspace of token, creating it on first use.
// PRE: token is non-empty
func (r *Registry) Get(token string) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workspaces[token]
	if !ok {
		w = NewWorkspace(r.deps)
		r.workspaces[token] = w
		slog.Debug("workspace_created", "sessions", len(r.workspaces))
	}
	w.touch()
	return w
}

// Drop discards the workspace of token, detaching its panels.
func (r *Registry) Drop(token string) {
	r.mu.Lock()
	w, ok := r.workspaces[token]
	delete(r.workspaces, token)
	r.mu.Unlock()
	if ok {
		for _, p := range w.panels {
			p.Detach()
		}
	}
}

// Sweep drops workspaces not used for longer than maxIdle and returns how
// many were dropped.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.deps.now().Add(-maxIdle)
	r.mu.Lock()
	var stale []string
	for token, w := range r.workspaces {
		if w.idleSince().Before(cutoff) {
			stale = append(stale, token)
		}
	}
	r.mu.Unlock()
	for _, token := range stale {
		r.Drop(token)
	}
	if len(stale) > 0 {
		slog.Info("workspaces_swept", "count", len(stale))
	}
	return len(stale)
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}
