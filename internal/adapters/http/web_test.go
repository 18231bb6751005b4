package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"coursedesk/internal/adapters/devbackend"
	"coursedesk/internal/adapters/email"
	"coursedesk/internal/adapters/http/middleware"
	"coursedesk/internal/adapters/http/perf"
	"coursedesk/internal/adapters/i18n"
	"coursedesk/internal/adapters/records"
	"coursedesk/internal/adapters/storage"
	recstore "coursedesk/internal/adapters/storage/record"
	"coursedesk/internal/application/panel"
	"coursedesk/internal/domain/record"
	"coursedesk/internal/domain/reference"
	"coursedesk/internal/domain/schema"
)

var testCSRFKey = []byte("0123456789abcdef0123456789abcdef")

// recordingSender keeps every message. With simulate set its receipts
// report no delivery, like email.NoopSender.
type recordingSender struct {
	mu       sync.Mutex
	sent     []email.Message
	simulate bool
}

func (s *recordingSender) Send(_ context.Context, msg email.Message) (email.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return email.Receipt{MessageID: fmt.Sprintf("test-%d", len(s.sent)), SentAt: time.Now(), Simulated: s.simulate}, nil
}

func (s *recordingSender) Sent() []email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]email.Message(nil), s.sent...)
}

// testEnv is a dashboard served against an in-memory development backend.
type testEnv struct {
	t        *testing.T
	srv      *httptest.Server
	browser  *http.Client
	records  *records.Client
	registry *panel.Registry
	sender   *recordingSender
	codec    reference.Codec
	csrf     string
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	db, err := storage.Open(":memory:", nil, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	backend := httptest.NewServer(devbackend.NewHandler(recstore.NewSQLiteStore(db), devbackend.Options{}))
	t.Cleanup(backend.Close)

	client := records.New(records.Options{BaseURL: backend.URL + "/rest", Timeout: 5 * time.Second})
	codec := reference.NewCodec(client.BaseURL())
	registry := panel.NewRegistry(panel.Deps{Store: client, AppIDs: schema.DefaultAppIDs, Codec: codec})
	sender := &recordingSender{}

	if opts.CSRFKey == nil {
		opts.CSRFKey = testCSRFKey
	}
	mux := NewMux(Deps{
		Registry:   registry,
		Records:    client,
		AppIDs:     schema.DefaultAppIDs,
		Translator: i18n.NewTranslator("en"),
		Sender:     sender,
		Collector:  perf.NewCollector(100),
		Limiter:    middleware.NewRateLimiter(10000, time.Second),
		Options:    opts,
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &testEnv{
		t:        t,
		srv:      srv,
		browser:  &http.Client{Jar: jar, Timeout: 10 * time.Second},
		records:  client,
		registry: registry,
		sender:   sender,
		codec:    codec,
	}
}

// seed creates a record directly in the backend.
func (e *testEnv) seed(kind schema.Kind, fields record.Fields) string {
	e.t.Helper()
	rec, err := e.records.Create(context.Background(), schema.DefaultAppIDs[kind], fields)
	if err != nil {
		e.t.Fatalf("seed %s: %v", kind, err)
	}
	return rec.ID
}

func (e *testEnv) ref(kind schema.Kind, id string) string {
	return e.codec.Encode(schema.DefaultAppIDs[kind], id)
}

// get fetches path and returns status and body.
func (e *testEnv) get(path string) (int, string) {
	e.t.Helper()
	resp, err := e.browser.Get(e.srv.URL + path)
	if err != nil {
		e.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

var csrfFieldRe = regexp.MustCompile(`name="gorilla.csrf.Token" value="([^"]+)"`)

// token reads a form token from the dashboard once. Any masked form of the
// cookie's token stays valid, so it is reused.
func (e *testEnv) token() string {
	e.t.Helper()
	if e.csrf != "" {
		return e.csrf
	}
	_, body := e.get("/")
	m := csrfFieldRe.FindStringSubmatch(body)
	if m == nil {
		e.t.Fatalf("no csrf field in page")
	}
	e.csrf = m[1]
	return e.csrf
}

// post submits a form with a valid token and follows the redirect.
func (e *testEnv) post(path string, form url.Values) (int, string) {
	e.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("gorilla.csrf.Token", e.token())
	resp, err := e.browser.PostForm(e.srv.URL+path, form)
	if err != nil {
		e.t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (e *testEnv) list(kind schema.Kind) []record.Record {
	e.t.Helper()
	list, err := e.records.List(context.Background(), schema.DefaultAppIDs[kind])
	if err != nil {
		e.t.Fatalf("List %s: %v", kind, err)
	}
	return list
}

func TestDashboard_RendersTabsAndStats(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seed(schema.KindCourses, record.Fields{"title": "Yoga", "price": 89})
	env.seed(schema.KindParticipants, record.Fields{"name": "Anna"})

	status, body := env.get("/")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	for _, e := range schema.All() {
		if !strings.Contains(body, `data-tab="`+string(e.Kind)+`"`) {
			t.Errorf("missing tab %s", e.Kind)
		}
	}
	if !strings.Contains(body, `data-stat="active_courses">1<`) {
		t.Error("active course count not rendered")
	}
	if !strings.Contains(body, `data-stat="participants">1<`) {
		t.Error("participant count not rendered")
	}
	if !strings.Contains(body, `data-panel="courses"`) || !strings.Contains(body, "Yoga") {
		t.Error("default tab should show the loaded courses panel")
	}
}

func TestDashboard_UnknownTab(t *testing.T) {
	env := newTestEnv(t, Options{})
	if status, _ := env.get("/?tab=invoices"); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if status, _ := env.post("/panels/invoices/new", nil); status != http.StatusNotFound {
		t.Errorf("POST status = %d, want 404", status)
	}
}

func TestDashboard_LanguageSwitch(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, body := env.get("/?lang=de&tab=rooms")
	if !strings.Contains(body, `lang="de"`) || !strings.Contains(body, "Räume") {
		t.Error("page should render in German after ?lang=de")
	}
	// The choice sticks to the session
	_, body = env.get("/?tab=rooms")
	if !strings.Contains(body, `lang="de"`) {
		t.Error("locale not kept in session")
	}
}

func TestPanel_CreateRoomThenReload(t *testing.T) {
	env := newTestEnv(t, Options{})

	_, body := env.post("/panels/rooms/new", nil)
	if !strings.Contains(body, `action="/panels/rooms/submit"`) {
		t.Fatal("create dialog not rendered")
	}
	if !strings.Contains(body, `name="capacity" type="number" step="1" value="20"`) {
		t.Error("capacity default missing from dialog")
	}

	status, body := env.post("/panels/rooms/submit", url.Values{
		"name":     {"Studio A"},
		"building": {"Haus 1"},
		"capacity": {"lots"},
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(body, `data-notice="notice.created"`) {
		t.Error("created notice missing")
	}
	if !strings.Contains(body, "Studio A") {
		t.Error("new room not in reloaded list")
	}
	if strings.Contains(body, `action="/panels/rooms/submit"`) {
		t.Error("dialog should close after a successful save")
	}

	rooms := env.list(schema.KindRooms)
	if len(rooms) != 1 || rooms[0].Fields.Int("capacity") != 0 {
		t.Errorf("rooms = %+v, want one room with capacity 0", rooms)
	}
}

func TestPanel_EditCancel(t *testing.T) {
	env := newTestEnv(t, Options{})
	id := env.seed(schema.KindInstructors, record.Fields{"name": "Dr. Lena Fischer", "email": "lena@example.com"})
	env.get("/?tab=instructors")

	_, body := env.post("/panels/instructors/edit/"+id, nil)
	if !strings.Contains(body, `value="Dr. Lena Fischer"`) || !strings.Contains(body, "Edit Instructor") {
		t.Fatal("edit dialog not populated")
	}

	_, body = env.post("/panels/instructors/cancel", nil)
	if strings.Contains(body, `action="/panels/instructors/submit"`) {
		t.Error("dialog should be closed after cancel")
	}
}

func TestPanel_UnresolvedReferenceBadge(t *testing.T) {
	env := newTestEnv(t, Options{})
	missing := strings.Repeat("ab", 12)
	env.seed(schema.KindCourses, record.Fields{"title": "Pilates", "instructor": env.ref(schema.KindInstructors, missing)})

	_, body := env.get("/?tab=courses")
	if !strings.Contains(body, "badge-unresolved") {
		t.Error("reference to a missing instructor should render the unresolved badge")
	}
}

func TestPanel_ToggleAndDelete(t *testing.T) {
	env := newTestEnv(t, Options{})
	id := env.seed(schema.KindRegistrations, record.Fields{"registration_date": "2026-03-01", "paid": false})
	env.get("/?tab=registrations")

	env.post("/panels/registrations/toggle/"+id, nil)
	rec, err := env.records.Get(context.Background(), schema.DefaultAppIDs[schema.KindRegistrations], id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.Fields.Bool("paid") {
		t.Error("paid should be true after toggle")
	}

	_, body := env.post("/panels/registrations/delete/"+id, nil)
	if !strings.Contains(body, `data-notice="notice.deleted"`) {
		t.Error("deleted notice missing")
	}
	if got := env.list(schema.KindRegistrations); len(got) != 0 {
		t.Errorf("registrations left = %d, want 0", len(got))
	}
}

func TestPanel_RegistrationSendsConfirmation(t *testing.T) {
	env := newTestEnv(t, Options{})
	participant := env.seed(schema.KindParticipants, record.Fields{"name": "Anna Schmidt", "email": "anna@example.com"})
	course := env.seed(schema.KindCourses, record.Fields{"title": "Yoga", "price": 89, "start_date": "2026-04-01", "end_date": "2026-06-30"})
	env.get("/?tab=registrations")

	env.post("/panels/registrations/new", nil)
	_, body := env.post("/panels/registrations/submit", url.Values{
		"participant":       {participant},
		"course":            {course},
		"registration_date": {"2026-03-09"},
	})

	sent := env.sender.Sent()
	if len(sent) != 1 || sent[0].To[0] != "anna@example.com" {
		t.Fatalf("sent = %+v, want one message to anna", sent)
	}
	if !strings.Contains(body, `data-notice="notice.email_sent"`) {
		t.Error("email notice missing")
	}

	regs := env.list(schema.KindRegistrations)
	if len(regs) != 1 {
		t.Fatalf("registrations = %d, want 1", len(regs))
	}
	if id, _ := reference.Decode(regs[0].Fields.String("participant")); id != participant {
		t.Errorf("participant ref = %q", regs[0].Fields.String("participant"))
	}
}

func TestPanel_NoopDeliveryIsNotReportedAsSent(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.sender.simulate = true
	participant := env.seed(schema.KindParticipants, record.Fields{"name": "Anna Schmidt", "email": "anna@example.com"})
	course := env.seed(schema.KindCourses, record.Fields{"title": "Yoga"})
	env.get("/?tab=registrations")

	env.post("/panels/registrations/new", nil)
	_, body := env.post("/panels/registrations/submit", url.Values{
		"participant":       {participant},
		"course":            {course},
		"registration_date": {"2026-03-09"},
	})

	if strings.Contains(body, `data-notice="notice.email_sent"`) {
		t.Error("simulated delivery must not show the sent notice")
	}
	if !strings.Contains(body, `data-notice="notice.email_not_delivered"`) {
		t.Error("not-delivered warning missing")
	}
	if got := env.list(schema.KindRegistrations); len(got) != 1 {
		t.Errorf("registrations = %d, want 1", len(got))
	}
}

func TestPanel_RegistrationWithoutParticipantSkipsConfirmation(t *testing.T) {
	env := newTestEnv(t, Options{})
	course := env.seed(schema.KindCourses, record.Fields{"title": "Yoga"})
	env.get("/?tab=registrations")

	env.post("/panels/registrations/new", nil)
	_, body := env.post("/panels/registrations/submit", url.Values{
		"course":            {course},
		"registration_date": {"2026-03-09"},
	})

	if got := env.list(schema.KindRegistrations); len(got) != 1 {
		t.Fatalf("registrations = %d, want 1", len(got))
	}
	if strings.Contains(body, `data-notice="notice.email_failed"`) {
		t.Error("a registration without participant is not an email failure")
	}
	if !strings.Contains(body, `data-notice="notice.created"`) {
		t.Error("created notice missing")
	}
	if len(env.sender.Sent()) != 0 {
		t.Error("no message expected")
	}
}

func TestPanel_SubmitAfterDialogClosedElsewhere(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.get("/?tab=rooms")
	env.post("/panels/rooms/new", nil)
	// Another tab of the same session switches away, detaching the panel
	env.get("/?tab=courses")

	form := url.Values{"name": {"A1"}, "building": {"Main"}, "capacity": {"30"}}
	_, body := env.post("/panels/rooms/submit", form)

	if got := env.list(schema.KindRooms); len(got) != 0 {
		t.Fatalf("rooms = %d, want 0 before resubmit", len(got))
	}
	if !strings.Contains(body, `data-notice="notice.dialog_expired"`) {
		t.Error("expired-dialog notice missing")
	}
	if !strings.Contains(body, `action="/panels/rooms/submit"`) || !strings.Contains(body, `value="A1"`) {
		t.Error("dialog should be reopened with the posted values")
	}

	env.post("/panels/rooms/submit", url.Values{"name": {"A1"}, "building": {"Main"}, "capacity": {"30"}})
	rooms := env.list(schema.KindRooms)
	if len(rooms) != 1 || rooms[0].Fields.String("name") != "A1" || rooms[0].Fields.Int("capacity") != 30 {
		t.Errorf("rooms = %+v, want A1 with capacity 30", rooms)
	}
}

func TestPanel_RejectsMissingCSRFToken(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.get("/")
	resp, err := env.browser.PostForm(env.srv.URL+"/panels/rooms/new", url.Values{})
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestLogin_GatesDashboard(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("kurs2026"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	env := newTestEnv(t, Options{AdminPasswordHash: string(hash)})

	_, body := env.get("/")
	if !strings.Contains(body, `name="password"`) {
		t.Fatal("unauthenticated dashboard should redirect to the login form")
	}
	if status, _ := env.get("/api/stats"); status != http.StatusUnauthorized {
		t.Errorf("api status = %d, want 401", status)
	}

	m := csrfFieldRe.FindStringSubmatch(body)
	if m == nil {
		t.Fatal("no csrf field on login page")
	}
	login := func(password string) (int, string) {
		resp, err := env.browser.PostForm(env.srv.URL+"/login", url.Values{"password": {password}, "gorilla.csrf.Token": {m[1]}})
		if err != nil {
			t.Fatalf("POST /login: %v", err)
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(b)
	}

	if status, _ := login("wrong"); status != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", status)
	}
	status, body := login("kurs2026")
	if status != http.StatusOK || !strings.Contains(body, `data-panel="courses"`) {
		t.Errorf("after login: status %d, dashboard shown %v", status, strings.Contains(body, "data-panel"))
	}

	env.post("/logout", nil)
	if status, _ := env.get("/api/stats"); status != http.StatusUnauthorized {
		t.Errorf("after logout api status = %d, want 401", status)
	}
}

func TestLogout_DropsWorkspace(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.get("/")
	if env.registry.Len() != 1 {
		t.Fatalf("workspaces = %d, want 1", env.registry.Len())
	}
	token := env.token()
	noFollow := &http.Client{
		Jar:           env.browser.Jar,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := noFollow.PostForm(env.srv.URL+"/logout", url.Values{"gorilla.csrf.Token": {token}})
	if err != nil {
		t.Fatalf("POST /logout: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", resp.StatusCode)
	}
	if env.registry.Len() != 0 {
		t.Errorf("workspaces = %d, want 0 after logout", env.registry.Len())
	}
}

func TestAPI_StatsAndPanel(t *testing.T) {
	env := newTestEnv(t, Options{})
	inst := env.seed(schema.KindInstructors, record.Fields{"name": "Lena"})
	course := env.seed(schema.KindCourses, record.Fields{"title": "Yoga", "price": 50, "instructor": env.ref(schema.KindInstructors, inst)})
	env.seed(schema.KindRegistrations, record.Fields{"course": env.ref(schema.KindCourses, course), "paid": true})

	status, body := env.get("/api/stats")
	if status != http.StatusOK {
		t.Fatalf("stats status = %d", status)
	}
	var stats statsResponse
	if err := json.Unmarshal([]byte(body), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.ActiveCourses != 1 || stats.Instructors != 1 || stats.Revenue != 50 || stats.PaidRegistrations != 1 {
		t.Errorf("stats = %+v", stats)
	}

	status, body = env.get("/api/panels/courses")
	if status != http.StatusOK {
		t.Fatalf("panel status = %d", status)
	}
	var p panelJSON
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("decode panel: %v", err)
	}
	if len(p.Rows) != 1 || p.Rows[0].Refs["instructor"].Label != "Lena" {
		t.Errorf("panel = %+v", p)
	}
	if _, ok := p.Rows[0].Refs["room"]; ok {
		t.Error("unset reference should be omitted")
	}

	if status, _ := env.get("/api/panels/invoices"); status != http.StatusNotFound {
		t.Errorf("unknown kind status = %d, want 404", status)
	}
	if status, body := env.get("/api/perf"); status != http.StatusOK || !strings.Contains(body, "TotalRecorded") {
		t.Errorf("perf: status %d body %q", status, body)
	}
	if status, body := env.get("/healthz"); status != http.StatusOK || body != "ok" {
		t.Errorf("healthz: status %d body %q", status, body)
	}
}

func TestAPI_PanelSearchAndSort(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.seed(schema.KindRooms, record.Fields{"name": "Studio A", "building": "Haus 1", "capacity": 12})
	env.seed(schema.KindRooms, record.Fields{"name": "Hall", "building": "Annex", "capacity": 40})
	env.seed(schema.KindRooms, record.Fields{"name": "Studio B", "building": "Haus 2", "capacity": 8})

	names := func(query string) []string {
		t.Helper()
		status, body := env.get("/api/panels/rooms" + query)
		if status != http.StatusOK {
			t.Fatalf("%s: status %d", query, status)
		}
		var p panelJSON
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			t.Fatalf("%s: decode: %v", query, err)
		}
		out := make([]string, len(p.Rows))
		for i, row := range p.Rows {
			out[i] = row.Fields.String("name")
		}
		return out
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"?q=studio&sort=capacity", []string{"Studio B", "Studio A"}},
		{"?q=annex", []string{"Hall"}},
		{"?sort=capacity&dir=desc", []string{"Hall", "Studio A", "Studio B"}},
		{"?sort=name", []string{"Hall", "Studio A", "Studio B"}},
		{"?q=nothing", []string{}},
	}
	for _, tt := range tests {
		if got := names(tt.query); !slices.Equal(got, tt.want) {
			t.Errorf("%s = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestBuildInput(t *testing.T) {
	opts := []panel.Option{{ID: "a", Label: "A"}}
	tests := []struct {
		name        string
		field       schema.Field
		value       string
		wantControl string
		wantMissing bool
		wantChecked bool
	}{
		{"long text", schema.Field{Name: "d", Type: schema.LongText}, "", "textarea", false, false},
		{"decimal", schema.Field{Name: "p", Type: schema.Decimal}, "1.5", "number", false, false},
		{"bool", schema.Field{Name: "paid", Type: schema.Bool}, "true", "checkbox", false, true},
		{"known ref", schema.Field{Name: "r", Type: schema.Reference}, "a", "select", false, false},
		{"dangling ref", schema.Field{Name: "r", Type: schema.Reference}, "b", "select", true, false},
		{"empty ref", schema.Field{Name: "r", Type: schema.Reference}, "", "select", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := buildInput(tt.field, tt.value, opts)
			if in.Control != tt.wantControl || in.Missing != tt.wantMissing || in.Checked != tt.wantChecked {
				t.Errorf("buildInput = %+v", in)
			}
		})
	}
}

func TestRenderMarkdown(t *testing.T) {
	got := string(renderMarkdown("**Yoga** für alle\n<script>alert(1)</script>"))
	if !strings.Contains(got, "<strong>Yoga</strong>") {
		t.Errorf("markdown not rendered: %q", got)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("raw HTML must not pass through: %q", got)
	}
	if renderMarkdown("") != "" {
		t.Error("empty input should render empty")
	}
}
