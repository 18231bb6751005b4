// Package schema describes the five course-management entity kinds: their
// fields, editing defaults, display attribute and outgoing references.
package schema

import (
	"errors"
	"time"
)

// ErrUnknownKind is returned for a kind that is not one of the five entities.
var ErrUnknownKind = errors.New("unknown entity kind")

// Kind identifies an entity collection.
type Kind string

// Entity kinds.
const (
	KindCourses       Kind = "courses"
	KindInstructors   Kind = "instructors"
	KindParticipants  Kind = "participants"
	KindRooms         Kind = "rooms"
	KindRegistrations Kind = "registrations"
)

// FieldType selects coercion on submit and the input rendered in forms.
type FieldType int

const (
	Text FieldType = iota
	LongText
	Email
	Phone
	Date
	Integer
	Decimal
	Bool
	Reference
)

// Field describes one attribute of an entity.
type Field struct {
	Name         string
	Type         FieldType
	Ref          Kind   // target collection, Reference only
	Default      string // draft value for create mode
	DefaultToday bool   // Date only: default to the current day
}

// DraftDefault returns the field's create-mode draft value.
// PRE: none
// POST: Returns today's date (YYYY-MM-DD) for DefaultToday fields, Default otherwise
func (f Field) DraftDefault(now time.Time) string {
	if f.DefaultToday {
		return now.Format("2006-01-02")
	}
	return f.Default
}

// Entity is the configuration of one panel.
type Entity struct {
	Kind         Kind
	DisplayField string
	Fields       []Field
}

// Field returns the named field.
func (e Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// References returns the reference fields in declaration order.
func (e Entity) References() []Field {
	var out []Field
	for _, f := range e.Fields {
		if f.Type == Reference {
			out = append(out, f)
		}
	}
	return out
}

// LookupKinds returns the distinct kinds this entity references.
func (e Entity) LookupKinds() []Kind {
	var out []Kind
	seen := map[Kind]bool{}
	for _, f := range e.References() {
		if !seen[f.Ref] {
			seen[f.Ref] = true
			out = append(out, f.Ref)
		}
	}
	return out
}

// HasField reports whether the entity has a field of the given name and type.
func (e Entity) HasField(name string, typ FieldType) bool {
	f, ok := e.Field(name)
	return ok && f.Type == typ
}

var (
	Instructors = Entity{
		Kind:         KindInstructors,
		DisplayField: "name",
		Fields: []Field{
			{Name: "name", Type: Text},
			{Name: "email", Type: Email},
			{Name: "phone", Type: Phone},
			{Name: "specialty", Type: Text},
		},
	}

	Participants = Entity{
		Kind:         KindParticipants,
		DisplayField: "name",
		Fields: []Field{
			{Name: "name", Type: Text},
			{Name: "email", Type: Email},
			{Name: "phone", Type: Phone},
			{Name: "birth_date", Type: Date},
		},
	}

	Rooms = Entity{
		Kind:         KindRooms,
		DisplayField: "name",
		Fields: []Field{
			{Name: "name", Type: Text},
			{Name: "building", Type: Text},
			{Name: "capacity", Type: Integer, Default: "20"},
		},
	}

	Courses = Entity{
		Kind:         KindCourses,
		DisplayField: "title",
		Fields: []Field{
			{Name: "title", Type: Text},
			{Name: "description", Type: LongText},
			{Name: "start_date", Type: Date},
			{Name: "end_date", Type: Date},
			{Name: "max_participants", Type: Integer, Default: "20"},
			{Name: "price", Type: Decimal, Default: "0"},
			{Name: "instructor", Type: Reference, Ref: KindInstructors},
			{Name: "room", Type: Reference, Ref: KindRooms},
		},
	}

	Registrations = Entity{
		Kind:         KindRegistrations,
		DisplayField: "registration_date",
		Fields: []Field{
			{Name: "participant", Type: Reference, Ref: KindParticipants},
			{Name: "course", Type: Reference, Ref: KindCourses},
			{Name: "registration_date", Type: Date, DefaultToday: true},
			{Name: "paid", Type: Bool},
		},
	}
)

// All returns the entities in tab order.
func All() []Entity {
	return []Entity{Courses, Instructors, Participants, Rooms, Registrations}
}

// Lookup returns the entity for kind.
func Lookup(kind Kind) (Entity, error) {
	for _, e := range All() {
		if e.Kind == kind {
			return e, nil
		}
	}
	return Entity{}, ErrUnknownKind
}

// DefaultAppIDs are the record-storage app ids of the hosted collections.
var DefaultAppIDs = map[Kind]string{
	KindInstructors:   "698dc41e6f9a9520c4296ee9",
	KindParticipants:  "698dc41f196c22d9da1f0edd",
	KindRooms:         "698dc41f68b94742af639f07",
	KindCourses:       "698dc41fb5663d0e68bc070c",
	KindRegistrations: "698dc42024624596759dd74c",
}
