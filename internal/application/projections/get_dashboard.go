package projections

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"coursedesk/internal/domain/record"
	"coursedesk/internal/domain/reference"
	"coursedesk/internal/domain/schema"
)

// GetDashboardDeps holds dependencies for the dashboard projection.
type GetDashboardDeps struct {
	Store  RecordLister
	AppIDs map[schema.Kind]string
}

// DashboardResult is a point-in-time summary of the collections.
type DashboardResult struct {
	ActiveCourses     int
	TotalParticipants int
	Instructors       int
	Revenue           float64
	PaidRegistrations int
	OpenRegistrations int
	ComputedAt        time.Time
}

// QueryGetDashboard fetches courses, participants, instructors and
// registrations jointly and derives the summary counters. If any fetch
// fails, no partial result is returned.
// PRE: deps.AppIDs has entries for the four kinds
// POST: Revenue sums the price of the course of every paid registration;
// unknown courses and missing prices add 0
func QueryGetDashboard(ctx context.Context, deps GetDashboardDeps, now time.Time) (DashboardResult, error) {
	kinds := []schema.Kind{schema.KindCourses, schema.KindParticipants, schema.KindInstructors, schema.KindRegistrations}
	lists := make(map[schema.Kind][]record.Record, len(kinds))
	results := make([][]record.Record, len(kinds))

	appIDs := make([]string, len(kinds))
	for i, kind := range kinds {
		appID, ok := deps.AppIDs[kind]
		if !ok || appID == "" {
			return DashboardResult{}, fmt.Errorf("no app id configured for %s", kind)
		}
		appIDs[i] = appID
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			list, err := deps.Store.List(gctx, appIDs[i])
			if err != nil {
				return fmt.Errorf("list %s: %w", kind, err)
			}
			results[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DashboardResult{}, err
	}
	for i, kind := range kinds {
		lists[kind] = results[i]
	}

	paid, revenue := Revenue(lists[schema.KindRegistrations], lists[schema.KindCourses])
	return DashboardResult{
		ActiveCourses:     len(lists[schema.KindCourses]),
		TotalParticipants: len(lists[schema.KindParticipants]),
		Instructors:       len(lists[schema.KindInstructors]),
		Revenue:           revenue,
		PaidRegistrations: paid,
		OpenRegistrations: len(lists[schema.KindRegistrations]) - paid,
		ComputedAt:        now,
	}, nil
}

// Revenue returns the number of paid registrations and the sum of their
// course prices.
// INVARIANT: inputs are not mutated
func Revenue(registrations, courses []record.Record) (int, float64) {
	prices := make(map[string]float64, len(courses))
	for _, c := range courses {
		prices[c.ID] = c.Fields.Number("price")
	}

	paid := 0
	total := 0.0
	for _, reg := range registrations {
		if !reg.Fields.Bool("paid") {
			continue
		}
		paid++
		courseID, ok := reference.Decode(reg.Fields.String("course"))
		if !ok {
			continue
		}
		total += prices[courseID]
	}
	return paid, total
}
