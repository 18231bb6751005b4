package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"coursedesk/internal/domain/record"
	"coursedesk/internal/domain/reference"
	"coursedesk/internal/domain/schema"
)

var errBackend = errors.New("backend unavailable")

type updateCall struct {
	AppID  string
	ID     string
	Fields record.Fields
}

// mockStore is an in-memory record store keyed by app id.
type mockStore struct {
	mu       sync.Mutex
	data     map[string][]record.Record
	nextID   int
	failList map[string]error
	failSave error
	failDel  error

	listCalls map[string]int
	updates   []updateCall
	creates   []record.Fields

	// When set, List and Create signal entry and wait for release.
	listEntered   chan struct{}
	listRelease   chan struct{}
	createEntered chan struct{}
	createRelease chan struct{}
}

func newMockStore() *mockStore {
	return &mockStore{
		data:      map[string][]record.Record{},
		failList:  map[string]error{},
		listCalls: map[string]int{},
	}
}

// seed appends a record with a generated id and returns that id.
// PRE: kind has an app id in schema.DefaultAppIDs
// POST: Record is visible to List
func (m *mockStore) seed(kind schema.Kind, fields record.Fields) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.newID()
	appID := schema.DefaultAppIDs[kind]
	m.data[appID] = append(m.data[appID], record.Record{ID: id, CreatedAt: time.Now(), Fields: fields})
	return id
}

func (m *mockStore) newID() string {
	m.nextID++
	return fmt.Sprintf("%024x", m.nextID)
}

// List returns a copy of the app's records.
// PRE: none
// POST: Returns seeded data or the configured failure
func (m *mockStore) List(_ context.Context, appID string) ([]record.Record, error) {
	if m.listEntered != nil {
		m.listEntered <- struct{}{}
		<-m.listRelease
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls[appID]++
	if err := m.failList[appID]; err != nil {
		return nil, err
	}
	out := make([]record.Record, len(m.data[appID]))
	copy(out, m.data[appID])
	return out, nil
}

// Create appends a record.
// PRE: none
// POST: Returns the stored record unless failSave is set
func (m *mockStore) Create(_ context.Context, appID string, fields record.Fields) (record.Record, error) {
	if m.createEntered != nil {
		m.createEntered <- struct{}{}
		<-m.createRelease
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates = append(m.creates, fields.Clone())
	if m.failSave != nil {
		return record.Record{}, m.failSave
	}
	rec := record.Record{ID: m.newID(), CreatedAt: time.Now(), Fields: fields.Clone()}
	m.data[appID] = append(m.data[appID], rec)
	return rec, nil
}

// Update merges fields into the stored record.
// PRE: none
// POST: Stored fields include the given ones unless failSave is set
func (m *mockStore) Update(_ context.Context, appID, id string, fields record.Fields) (record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, updateCall{AppID: appID, ID: id, Fields: fields.Clone()})
	if m.failSave != nil {
		return record.Record{}, m.failSave
	}
	for i, rec := range m.data[appID] {
		if rec.ID != id {
			continue
		}
		merged := rec.Fields.Clone()
		for k, v := range fields {
			merged[k] = v
		}
		m.data[appID][i].Fields = merged
		return m.data[appID][i], nil
	}
	return record.Record{}, fmt.Errorf("update %s: %w", id, record.ErrUnknownRecord)
}

// Delete removes the record.
// PRE: none
// POST: Record is gone unless failDel is set
func (m *mockStore) Delete(_ context.Context, appID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDel != nil {
		return m.failDel
	}
	m.data[appID] = record.Remove(m.data[appID], id)
	return nil
}

func (m *mockStore) calls(kind schema.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls[schema.DefaultAppIDs[kind]]
}

var testNow = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

const testBase = "https://my.living-apps.de/rest"

func testDeps(store *mockStore) Deps {
	return Deps{
		Store:  store,
		AppIDs: schema.DefaultAppIDs,
		Codec:  reference.NewCodec(testBase),
		Now:    func() time.Time { return testNow },
	}
}

func refTo(kind schema.Kind, id string) string {
	return reference.NewCodec(testBase).Encode(schema.DefaultAppIDs[kind], id)
}
