package panel

import (
	"sort"
	"strings"

	"coursedesk/internal/domain/record"
	"coursedesk/internal/domain/reference"
	"coursedesk/internal/domain/schema"
)

// ResolutionState distinguishes "nothing set" from "set but broken".
type ResolutionState int

const (
	RefNone ResolutionState = iota
	RefResolved
	RefUnresolved
)

// Resolution is the display form of one reference field.
type Resolution struct {
	State ResolutionState
	ID    string
	Label string
}

// Resolved reports whether the reference points at a loaded record.
func (r Resolution) Resolved() bool { return r.State == RefResolved }

// Unresolved reports whether a reference is set but matches no record.
func (r Resolution) Unresolved() bool { return r.State == RefUnresolved }

// Row is one rendered list entry.
type Row struct {
	Record record.Record
	Refs   map[string]Resolution
}

// Option is one entry of a reference selector.
type Option struct {
	ID    string
	Label string
}

// View is an immutable snapshot of a panel for rendering.
type View struct {
	Entity     schema.Entity
	Loaded     bool
	Rows       []Row
	Draft      Draft
	Editing    string
	DialogOpen bool
	Submitting bool
	Notice     *Notice
	Options    map[string][]Option // reference field name -> selectable records
}

// Kind returns the entity kind of the view.
func (v View) Kind() schema.Kind { return v.Entity.Kind }

// LookupDisplayName resolves a reference URL against collection by record
// id and returns the target's display attribute. It never mutates state.
// PRE: collection holds records of kind target
// POST: RefNone for an empty reference, RefUnresolved when no record matches
func LookupDisplayName(refURL string, target schema.Kind, collection []record.Record) Resolution {
	if strings.TrimSpace(refURL) == "" {
		return Resolution{State: RefNone}
	}
	id, ok := reference.Decode(refURL)
	if !ok {
		return Resolution{State: RefUnresolved}
	}
	rec, found := record.Find(collection, id)
	if !found {
		return Resolution{State: RefUnresolved, ID: id}
	}
	return Resolution{State: RefResolved, ID: id, Label: displayLabel(target, rec)}
}

// displayLabel returns the record's display attribute, or its id when empty.
func displayLabel(kind schema.Kind, rec record.Record) string {
	entity, err := schema.Lookup(kind)
	if err != nil {
		return rec.ID
	}
	if label := rec.Fields.String(entity.DisplayField); label != "" {
		return label
	}
	return rec.ID
}

// View returns a snapshot of the panel with references resolved.
func (p *Panel) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	refs := p.entity.References()
	rows := make([]Row, len(p.items))
	for i, rec := range p.items {
		row := Row{Record: rec, Refs: make(map[string]Resolution, len(refs))}
		for _, f := range refs {
			row.Refs[f.Name] = LookupDisplayName(rec.Fields.String(f.Name), f.Ref, p.collection(f.Ref))
		}
		rows[i] = row
	}

	options := make(map[string][]Option, len(refs))
	for _, f := range refs {
		coll := p.collection(f.Ref)
		opts := make([]Option, 0, len(coll))
		for _, rec := range coll {
			opts = append(opts, Option{ID: rec.ID, Label: displayLabel(f.Ref, rec)})
		}
		sort.SliceStable(opts, func(i, j int) bool {
			return strings.ToLower(opts[i].Label) < strings.ToLower(opts[j].Label)
		})
		options[f.Name] = opts
	}

	draft := make(Draft, len(p.draft))
	for k, v := range p.draft {
		draft[k] = v
	}
	var notice *Notice
	if p.notice != nil {
		n := *p.notice
		notice = &n
	}

	return View{
		Entity:     p.entity,
		Loaded:     p.loaded,
		Rows:       rows,
		Draft:      draft,
		Editing:    p.editing,
		DialogOpen: p.dialogOpen,
		Submitting: p.submitting,
		Notice:     notice,
		Options:    options,
	}
}

// collection returns the loaded records of kind. Caller holds p.mu.
func (p *Panel) collection(kind schema.Kind) []record.Record {
	if kind == p.entity.Kind {
		return p.items
	}
	return p.lookups[kind]
}
