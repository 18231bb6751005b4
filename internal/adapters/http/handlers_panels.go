package web

import (
	"errors"
	"log/slog"
	"net/http"

	"coursedesk/internal/application/orchestrators"
	"coursedesk/internal/application/panel"
	"coursedesk/internal/domain/schema"
)

// panelFor resolves the {kind} segment to the caller's panel, writing a 404
// when it is unknown.
func (a *app) panelFor(w http.ResponseWriter, r *http.Request) (*panel.Panel, schema.Kind, bool) {
	kind, ok := kindParam(r)
	if !ok {
		a.renderError(w, r, http.StatusNotFound, "error.not_found")
		return nil, "", false
	}
	p, err := a.workspace(r).Panel(kind)
	if err != nil {
		a.renderError(w, r, http.StatusNotFound, "error.not_found")
		return nil, "", false
	}
	return p, kind, true
}

func (a *app) handleOpenCreate(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := a.panelFor(w, r)
	if !ok {
		return
	}
	p.OpenCreate()
	backToTab(w, r, kind)
}

func (a *app) handleOpenEdit(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := a.panelFor(w, r)
	if !ok {
		return
	}
	// An unknown id leaves a notice on the panel
	_ = p.OpenEdit(r.PathValue("id"))
	backToTab(w, r, kind)
}

// handleSubmit stores the posted form as the draft and saves it. A newly
// created registration triggers the confirmation email when a sender is
// configured. A post without an open dialog reopens it with the posted
// values.
func (a *app) handleSubmit(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := a.panelFor(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	values := make(map[string]string, len(p.Entity().Fields))
	for _, f := range p.Entity().Fields {
		values[f.Name] = r.PostForm.Get(f.Name)
	}
	p.SetDraft(values)

	res, err := p.Submit(r.Context())
	if err == nil || errors.Is(err, panel.ErrReloadFailed) {
		if res.Created && kind == schema.KindRegistrations {
			a.sendConfirmation(r, p, res)
		}
	}
	backToTab(w, r, kind)
}

// sendConfirmation emails the participant of a new registration and
// reports the outcome on the panel. The registration is kept either way.
func (a *app) sendConfirmation(r *http.Request, p *panel.Panel, res panel.SubmitResult) {
	if a.Sender == nil || a.Records == nil {
		return
	}
	out, err := orchestrators.ExecuteSendRegistrationConfirmation(r.Context(), orchestrators.SendRegistrationConfirmationInput{
		Registration: res.Record,
		Locale:       a.locale(r),
	}, orchestrators.SendRegistrationConfirmationDeps{
		Records:   a.Records,
		AppIDs:    a.AppIDs,
		Sender:    a.Sender,
		Localizer: a.Translator,
	})
	if err != nil {
		slog.Warn("confirmation_failed", "registration_id", res.Record.ID, "error", err)
		p.Notify(panel.LevelWarning, panel.NoticeEmailFailed, err.Error())
		return
	}
	switch {
	case out.Sent && out.Simulated:
		p.Notify(panel.LevelWarning, panel.NoticeEmailNotDelivered, out.To)
	case out.Sent:
		p.Notify(panel.LevelSuccess, panel.NoticeEmailSent, out.To)
	}
}

func (a *app) handleCancel(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := a.panelFor(w, r)
	if !ok {
		return
	}
	p.CloseDialog()
	backToTab(w, r, kind)
}

func (a *app) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := a.panelFor(w, r)
	if !ok {
		return
	}
	_ = p.Remove(r.Context(), r.PathValue("id"))
	backToTab(w, r, kind)
}

// handleToggle flips a bool field; the field defaults to the entity's
// first bool field.
func (a *app) handleToggle(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := a.panelFor(w, r)
	if !ok {
		return
	}
	field := r.FormValue("field")
	if field == "" {
		for _, f := range p.Entity().Fields {
			if f.Type == schema.Bool {
				field = f.Name
				break
			}
		}
	}
	if err := p.Toggle(r.Context(), r.PathValue("id"), field); errors.Is(err, panel.ErrNotToggle) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	backToTab(w, r, kind)
}

func (a *app) handleDismiss(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := a.panelFor(w, r)
	if !ok {
		return
	}
	p.DismissNotice()
	backToTab(w, r, kind)
}
