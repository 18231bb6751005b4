package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"coursedesk/internal/domain/record"
	"coursedesk/internal/domain/reference"
	"coursedesk/internal/domain/schema"
)

// RecordStoreForSeed defines the store interface needed by SeedDemoData.
type RecordStoreForSeed interface {
	List(ctx context.Context, appID string) ([]record.Record, error)
	Create(ctx context.Context, appID string, fields record.Fields) (record.Record, error)
}

// SeedDemoDataDeps holds dependencies for SeedDemoData.
type SeedDemoDataDeps struct {
	Store  RecordStoreForSeed
	AppIDs map[schema.Kind]string
	Codec  reference.Codec
	Now    func() time.Time
}

// SeedResult counts the created records per kind.
type SeedResult struct {
	Skipped bool
	Created map[schema.Kind]int
}

// ExecuteSeedDemoData creates a small demo data set if every collection is empty.
// PRE: deps.AppIDs covers all entity kinds
// POST: Skipped is true and nothing is written when any collection has records
func ExecuteSeedDemoData(ctx context.Context, deps SeedDemoDataDeps) (SeedResult, error) {
	for _, e := range schema.All() {
		existing, err := deps.Store.List(ctx, deps.AppIDs[e.Kind])
		if err != nil {
			return SeedResult{}, fmt.Errorf("check %s: %w", e.Kind, err)
		}
		if len(existing) > 0 {
			slog.Info("seed_demo_skipped", "kind", e.Kind, "records", len(existing))
			return SeedResult{Skipped: true}, nil
		}
	}

	s := seeder{ctx: ctx, deps: deps, created: map[schema.Kind]int{}}
	today := deps.Now()

	studio := s.create(schema.KindRooms, record.Fields{"name": "Studio A", "building": "Hauptgebäude", "capacity": 20})
	hall := s.create(schema.KindRooms, record.Fields{"name": "Saal 2", "building": "Nebengebäude", "capacity": 40})

	anna := s.create(schema.KindInstructors, record.Fields{"name": "Anna Berger", "email": "anna.berger@example.com", "phone": "+49 30 1234567", "specialty": "Yoga"})
	jonas := s.create(schema.KindInstructors, record.Fields{"name": "Jonas Krüger", "email": "jonas.krueger@example.com", "phone": "", "specialty": "Rückenfit"})

	lena := s.create(schema.KindParticipants, record.Fields{"name": "Lena Schmidt", "email": "lena.schmidt@example.com", "phone": "", "birth_date": "1990-05-14"})
	weber := s.create(schema.KindParticipants, record.Fields{"name": "Max Weber", "email": "", "phone": "+49 40 7654321", "birth_date": "1985-11-02"})
	sara := s.create(schema.KindParticipants, record.Fields{"name": "Sara Yilmaz", "email": "sara.yilmaz@example.com", "phone": "", "birth_date": "1998-02-27"})

	yoga := s.create(schema.KindCourses, record.Fields{
		"title":            "Yoga für Einsteiger",
		"description":      "Sanfter Einstieg in **Hatha Yoga**.\n\n- Matten sind vorhanden\n- Bitte bequeme Kleidung mitbringen",
		"start_date":       today.AddDate(0, 0, 14).Format(time.DateOnly),
		"end_date":         today.AddDate(0, 2, 14).Format(time.DateOnly),
		"max_participants": 12,
		"price":            89.0,
		"instructor":       s.ref(schema.KindInstructors, anna),
		"room":             s.ref(schema.KindRooms, studio),
	})
	back := s.create(schema.KindCourses, record.Fields{
		"title":            "Rückenfit",
		"description":      "Kräftigung und Mobilisation für einen *gesunden Rücken*.",
		"start_date":       today.AddDate(0, 1, 0).Format(time.DateOnly),
		"end_date":         today.AddDate(0, 3, 0).Format(time.DateOnly),
		"max_participants": 20,
		"price":            120.0,
		"instructor":       s.ref(schema.KindInstructors, jonas),
		"room":             s.ref(schema.KindRooms, hall),
	})

	date := today.Format(time.DateOnly)
	s.create(schema.KindRegistrations, record.Fields{"participant": s.ref(schema.KindParticipants, lena), "course": s.ref(schema.KindCourses, yoga), "registration_date": date, "paid": true})
	s.create(schema.KindRegistrations, record.Fields{"participant": s.ref(schema.KindParticipants, weber), "course": s.ref(schema.KindCourses, back), "registration_date": date, "paid": false})
	s.create(schema.KindRegistrations, record.Fields{"participant": s.ref(schema.KindParticipants, sara), "course": s.ref(schema.KindCourses, yoga), "registration_date": date, "paid": false})

	if s.err != nil {
		return SeedResult{Created: s.created}, s.err
	}
	slog.Info("seed_demo_completed", "created", s.created)
	return SeedResult{Created: s.created}, nil
}

// seeder stops creating after the first failure.
type seeder struct {
	ctx     context.Context
	deps    SeedDemoDataDeps
	created map[schema.Kind]int
	err     error
}

func (s *seeder) create(kind schema.Kind, fields record.Fields) string {
	if s.err != nil {
		return ""
	}
	rec, err := s.deps.Store.Create(s.ctx, s.deps.AppIDs[kind], fields)
	if err != nil {
		s.err = fmt.Errorf("seed %s: %w", kind, err)
		return ""
	}
	s.created[kind]++
	return rec.ID
}

func (s *seeder) ref(kind schema.Kind, id string) string {
	return s.deps.Codec.Encode(s.deps.AppIDs[kind], id)
}
