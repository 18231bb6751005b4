package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"coursedesk/internal/adapters/email"
	"coursedesk/internal/domain/record"
)

var errUnavailable = errors.New("backend unavailable")

// mockRecords is an in-memory record store keyed by app id.
type mockRecords struct {
	mu        sync.Mutex
	data      map[string][]record.Record
	n         int
	failGet   error
	failAfter int // Create fails once this many records were created; 0 disables
}

func newMockRecords() *mockRecords {
	return &mockRecords{data: map[string][]record.Record{}}
}

// List returns the app's records.
// PRE: none
// POST: Returns stored records
func (m *mockRecords) List(_ context.Context, appID string) ([]record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]record.Record(nil), m.data[appID]...), nil
}

// Get returns one record.
// PRE: none
// POST: Returns the record or an error
func (m *mockRecords) Get(_ context.Context, appID, id string) (record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return record.Record{}, m.failGet
	}
	if rec, ok := record.Find(m.data[appID], id); ok {
		return rec, nil
	}
	return record.Record{}, record.ErrUnknownRecord
}

// Create stores a record with a generated id.
// PRE: none
// POST: Record stored unless failAfter is reached
func (m *mockRecords) Create(_ context.Context, appID string, fields record.Fields) (record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter > 0 && m.n >= m.failAfter {
		return record.Record{}, errUnavailable
	}
	m.n++
	rec := record.Record{ID: fmt.Sprintf("%024x", m.n), Fields: fields.Clone()}
	m.data[appID] = append(m.data[appID], rec)
	return rec, nil
}

// mockSender records sent messages.
type mockSender struct {
	sent []email.Message
	err  error
}

// Send records msg.
// PRE: none
// POST: msg recorded unless err is set
func (s *mockSender) Send(_ context.Context, msg email.Message) (email.Receipt, error) {
	if s.err != nil {
		return email.Receipt{}, s.err
	}
	s.sent = append(s.sent, msg)
	return email.Receipt{MessageID: fmt.Sprintf("msg-%d", len(s.sent))}, nil
}

// mockLocalizer echoes keys and template data.
type mockLocalizer struct{}

// T returns the key followed by data values.
// PRE: none
// POST: Returns a deterministic string
func (mockLocalizer) T(_ string, key string, data map[string]any) string {
	var parts []string
	for _, k := range []string{"Name", "Course"} {
		if v, ok := data[k]; ok {
			parts = append(parts, fmt.Sprint(v))
		}
	}
	if len(parts) == 0 {
		return key
	}
	return key + ":" + strings.Join(parts, ",")
}

// FormatDate returns the date unchanged.
// PRE: none
// POST: Returns date
func (mockLocalizer) FormatDate(_ string, date string) string { return date }

// FormatMoney formats with two decimals.
// PRE: none
// POST: Returns a fixed-point amount
func (mockLocalizer) FormatMoney(_ string, amount float64) string {
	return fmt.Sprintf("%.2f EUR", amount)
}
