// Package panel implements the list, dialog and delete flow shared by every
// entity kind. A Panel is configured by a schema.Entity and keeps the state
// of one browser session's view of that collection.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"coursedesk/internal/domain/record"
	"coursedesk/internal/domain/reference"
	"coursedesk/internal/domain/schema"
)

var (
	ErrBusy         = errors.New("a save is already in progress")
	ErrStale        = errors.New("panel changed while the request was outstanding")
	ErrNoDialog     = errors.New("no dialog is open")
	ErrReloadFailed = errors.New("saved, but reloading the list failed")
	ErrNotToggle    = errors.New("field cannot be toggled")
)

// Store is the record access the panel needs.
type Store interface {
	List(ctx context.Context, appID string) ([]record.Record, error)
	Create(ctx context.Context, appID string, fields record.Fields) (record.Record, error)
	Update(ctx context.Context, appID, id string, fields record.Fields) (record.Record, error)
	Delete(ctx context.Context, appID, id string) error
}

// Deps holds panel dependencies.
type Deps struct {
	Store  Store
	AppIDs map[schema.Kind]string
	Codec  reference.Codec
	Now    func() time.Time // nil means time.Now
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// NoticeLevel classifies a Notice.
type NoticeLevel string

const (
	LevelError   NoticeLevel = "error"
	LevelWarning NoticeLevel = "warning"
	LevelSuccess NoticeLevel = "success"
)

// Notice keys. They double as translation message ids.
const (
	NoticeLoadFailed        = "notice.load_failed"
	NoticeSaveFailed        = "notice.save_failed"
	NoticeDeleteFailed      = "notice.delete_failed"
	NoticeToggleFailed      = "notice.toggle_failed"
	NoticeUnknownRecord     = "notice.unknown_record"
	NoticeBusy              = "notice.busy"
	NoticeDialogExpired     = "notice.dialog_expired"
	NoticeCreated           = "notice.created"
	NoticeUpdated           = "notice.updated"
	NoticeDeleted           = "notice.deleted"
	NoticeToggled           = "notice.toggled"
	NoticeEmailFailed       = "notice.email_failed"
	NoticeEmailSent         = "notice.email_sent"
	NoticeEmailNotDelivered = "notice.email_not_delivered"
)

// Notice is the outcome banner shown above the panel.
type Notice struct {
	Level  NoticeLevel
	Key    string
	Detail string
}

// SubmitResult describes a successful save.
type SubmitResult struct {
	Record  record.Record
	Created bool
}

// Panel is the state of one entity list with its edit dialog.
type Panel struct {
	entity schema.Entity
	deps   Deps

	mu         sync.Mutex
	items      []record.Record
	lookups    map[schema.Kind][]record.Record
	draft      Draft
	editing    string // empty: create mode
	dialogOpen bool
	loaded     bool
	submitting bool
	generation uint64
	notice     *Notice
}

// New creates an empty, unloaded panel.
func New(entity schema.Entity, deps Deps) *Panel {
	return &Panel{
		entity:  entity,
		deps:    deps,
		lookups: map[schema.Kind][]record.Record{},
		draft:   NewDraft(entity, deps.now()),
	}
}

// Entity returns the panel's configuration.
func (p *Panel) Entity() schema.Entity {
	return p.entity
}

// Loaded reports whether a reload has ever been applied.
func (p *Panel) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

func (p *Panel) appID(kind schema.Kind) (string, error) {
	id, ok := p.deps.AppIDs[kind]
	if !ok || id == "" {
		return "", fmt.Errorf("no app id configured for %s", kind)
	}
	return id, nil
}

// Reload fetches the panel's collection and its lookup collections
// concurrently and replaces them together.
// PRE: none
// POST: On success items and lookups are replaced; on failure or when the
// panel changed meanwhile, nothing is applied
func (p *Panel) Reload(ctx context.Context) error {
	p.mu.Lock()
	gen := p.generation
	p.mu.Unlock()

	items, lookups, err := p.fetch(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		slog.Debug("panel_reload_discarded", "kind", p.entity.Kind, "issued", gen, "current", p.generation)
		return ErrStale
	}
	if err != nil {
		p.notice = &Notice{Level: LevelError, Key: NoticeLoadFailed, Detail: err.Error()}
		slog.Error("panel_reload_failed", "kind", p.entity.Kind, "error", err)
		return fmt.Errorf("reload %s: %w", p.entity.Kind, err)
	}
	p.items = items
	p.lookups = lookups
	p.loaded = true
	if p.notice != nil && p.notice.Key == NoticeLoadFailed {
		p.notice = nil
	}
	return nil
}

// fetch runs the joint fetch. Any failure fails the whole fetch.
func (p *Panel) fetch(ctx context.Context) ([]record.Record, map[schema.Kind][]record.Record, error) {
	kinds := append([]schema.Kind{p.entity.Kind}, p.entity.LookupKinds()...)
	results := make([][]record.Record, len(kinds))

	appIDs := make([]string, len(kinds))
	for i, kind := range kinds {
		appID, err := p.appID(kind)
		if err != nil {
			return nil, nil, err
		}
		appIDs[i] = appID
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			list, err := p.deps.Store.List(gctx, appIDs[i])
			if err != nil {
				return fmt.Errorf("list %s: %w", kind, err)
			}
			results[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	lookups := make(map[schema.Kind][]record.Record, len(kinds)-1)
	for i, kind := range kinds[1:] {
		lookups[kind] = results[i+1]
	}
	return results[0], lookups, nil
}

// OpenCreate resets the draft to defaults and opens the dialog in create mode.
func (p *Panel) OpenCreate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draft = NewDraft(p.entity, p.deps.now())
	p.editing = ""
	p.dialogOpen = true
	p.clearErrorNotice()
}

// OpenEdit populates the draft from the loaded record with the given id and
// opens the dialog in update mode.
// PRE: id is the ID of a record in the current items
// POST: dialog open with editing target id, or record.ErrUnknownRecord
func (p *Panel) OpenEdit(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := record.Find(p.items, id)
	if !ok {
		p.notice = &Notice{Level: LevelError, Key: NoticeUnknownRecord, Detail: id}
		return fmt.Errorf("edit %s %s: %w", p.entity.Kind, id, record.ErrUnknownRecord)
	}
	p.draft = DraftFromRecord(p.entity, rec, p.deps.now())
	p.editing = id
	p.dialogOpen = true
	p.clearErrorNotice()
	return nil
}

// SetDraft replaces the draft with submitted form values. Fields missing
// from values become empty, which unchecks bool fields.
func (p *Panel) SetDraft(values map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := make(Draft, len(p.entity.Fields))
	for _, f := range p.entity.Fields {
		d[f.Name] = values[f.Name]
	}
	p.draft = d
}

// CloseDialog discards the draft and closes the dialog.
func (p *Panel) CloseDialog() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetDialog()
}

func (p *Panel) resetDialog() {
	p.dialogOpen = false
	p.editing = ""
	p.draft = NewDraft(p.entity, p.deps.now())
}

func (p *Panel) clearErrorNotice() {
	if p.notice != nil && p.notice.Level == LevelError {
		p.notice = nil
	}
}

// Submit saves the draft: create when no editing target is set, update
// otherwise. On success the dialog closes and the list reloads. On failure
// the dialog stays open with the draft preserved.
// PRE: dialog is open
// POST: ErrNoDialog reopens the dialog in create mode with the draft kept
// and an error notice set; error wraps ErrReloadFailed when the save
// succeeded but the reload did not
func (p *Panel) Submit(ctx context.Context) (SubmitResult, error) {
	p.mu.Lock()
	if !p.dialogOpen {
		p.dialogOpen = true
		p.editing = ""
		p.notice = &Notice{Level: LevelError, Key: NoticeDialogExpired}
		p.mu.Unlock()
		slog.Warn("panel_submit_without_dialog", "kind", p.entity.Kind)
		return SubmitResult{}, ErrNoDialog
	}
	if p.submitting {
		p.notice = &Notice{Level: LevelWarning, Key: NoticeBusy}
		p.mu.Unlock()
		return SubmitResult{}, ErrBusy
	}
	appID, err := p.appID(p.entity.Kind)
	if err != nil {
		p.mu.Unlock()
		return SubmitResult{}, err
	}
	p.submitting = true
	editing := p.editing
	fields := BuildFields(p.entity, p.draft, p.deps.Codec, p.deps.AppIDs)
	p.mu.Unlock()

	var rec record.Record
	if editing == "" {
		rec, err = p.deps.Store.Create(ctx, appID, fields)
	} else {
		rec, err = p.deps.Store.Update(ctx, appID, editing, fields)
	}

	p.mu.Lock()
	p.submitting = false
	if err != nil {
		p.notice = &Notice{Level: LevelError, Key: NoticeSaveFailed, Detail: err.Error()}
		p.mu.Unlock()
		slog.Error("panel_submit_failed", "kind", p.entity.Kind, "record_id", editing, "error", err)
		return SubmitResult{}, fmt.Errorf("save %s: %w", p.entity.Kind, err)
	}
	result := SubmitResult{Record: rec, Created: editing == ""}
	if result.Created {
		p.notice = &Notice{Level: LevelSuccess, Key: NoticeCreated}
	} else {
		p.notice = &Notice{Level: LevelSuccess, Key: NoticeUpdated}
	}
	p.resetDialog()
	p.generation++
	p.mu.Unlock()

	slog.Info("panel_event", "event", "record_saved", "kind", p.entity.Kind, "record_id", rec.ID, "created", result.Created)

	if err := p.Reload(ctx); err != nil && !errors.Is(err, ErrStale) {
		return result, fmt.Errorf("%w: %w", ErrReloadFailed, err)
	}
	return result, nil
}

// Remove deletes the record and drops it from the local list without a reload.
// PRE: id is non-empty
// POST: on success exactly the records with ID == id are gone from items
func (p *Panel) Remove(ctx context.Context, id string) error {
	appID, err := p.appID(p.entity.Kind)
	if err != nil {
		return err
	}
	if err := p.deps.Store.Delete(ctx, appID, id); err != nil {
		p.mu.Lock()
		p.notice = &Notice{Level: LevelError, Key: NoticeDeleteFailed, Detail: err.Error()}
		p.mu.Unlock()
		slog.Error("panel_delete_failed", "kind", p.entity.Kind, "record_id", id, "error", err)
		return fmt.Errorf("delete %s %s: %w", p.entity.Kind, id, err)
	}

	p.mu.Lock()
	p.items = record.Remove(p.items, id)
	if p.editing == id {
		p.resetDialog()
	}
	p.generation++
	p.notice = &Notice{Level: LevelSuccess, Key: NoticeDeleted}
	p.mu.Unlock()

	slog.Info("panel_event", "event", "record_deleted", "kind", p.entity.Kind, "record_id", id)
	return nil
}

// Toggle flips a bool field with a partial update, outside the dialog
// flow, then reloads.
// PRE: field is a Bool field of the entity; id is in the current items
// POST: only field is sent to the backend
func (p *Panel) Toggle(ctx context.Context, id, field string) error {
	if !p.entity.HasField(field, schema.Bool) {
		return fmt.Errorf("toggle %s.%s: %w", p.entity.Kind, field, ErrNotToggle)
	}
	appID, err := p.appID(p.entity.Kind)
	if err != nil {
		return err
	}

	p.mu.Lock()
	rec, ok := record.Find(p.items, id)
	if !ok {
		p.notice = &Notice{Level: LevelError, Key: NoticeUnknownRecord, Detail: id}
		p.mu.Unlock()
		return fmt.Errorf("toggle %s %s: %w", p.entity.Kind, id, record.ErrUnknownRecord)
	}
	p.mu.Unlock()

	next := !rec.Fields.Bool(field)
	if _, err := p.deps.Store.Update(ctx, appID, id, record.Fields{field: next}); err != nil {
		p.mu.Lock()
		p.notice = &Notice{Level: LevelError, Key: NoticeToggleFailed, Detail: err.Error()}
		p.mu.Unlock()
		slog.Error("panel_toggle_failed", "kind", p.entity.Kind, "record_id", id, "field", field, "error", err)
		return fmt.Errorf("toggle %s %s: %w", p.entity.Kind, id, err)
	}

	p.mu.Lock()
	p.generation++
	p.notice = &Notice{Level: LevelSuccess, Key: NoticeToggled}
	p.mu.Unlock()

	slog.Info("panel_event", "event", "record_toggled", "kind", p.entity.Kind, "record_id", id, "field", field, "value", next)

	if err := p.Reload(ctx); err != nil && !errors.Is(err, ErrStale) {
		return fmt.Errorf("%w: %w", ErrReloadFailed, err)
	}
	return nil
}

// TogglePaid flips the paid flag of a registration.
func (p *Panel) TogglePaid(ctx context.Context, id string) error {
	return p.Toggle(ctx, id, "paid")
}

// Detach invalidates outstanding requests and drops dialog state, as when
// the view is left. Loaded items are kept until the next reload.
func (p *Panel) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	p.resetDialog()
	p.notice = nil
}

// DismissNotice clears the banner.
func (p *Panel) DismissNotice() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notice = nil
}

// Notify replaces the banner, e.g. with the outcome of a follow-up step
// after a successful save.
func (p *Panel) Notify(level NoticeLevel, key, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notice = &Notice{Level: level, Key: key, Detail: detail}
}
