package browser_test

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/crypto/bcrypt"

	"coursedesk/internal/adapters/devbackend"
	"coursedesk/internal/adapters/email"
	web "coursedesk/internal/adapters/http"
	"coursedesk/internal/adapters/http/perf"
	"coursedesk/internal/adapters/i18n"
	"coursedesk/internal/adapters/records"
	"coursedesk/internal/adapters/storage"
	recordStore "coursedesk/internal/adapters/storage/record"
	"coursedesk/internal/application/panel"
	"coursedesk/internal/domain/reference"
	"coursedesk/internal/domain/schema"
)

const adminPassword = "TestPass123!"

// testApp holds the running test server and Playwright handles.
type testApp struct {
	BaseURL string
	Server  *http.Server
	PW      *playwright.Playwright
	Browser playwright.Browser
	Records *records.Client
}

// newTestApp wires the dashboard against a development backend on a temp
// SQLite file and starts both servers.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "records.db"), nil, 0)
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	backend := httptest.NewServer(devbackend.NewHandler(recordStore.NewSQLiteStore(db), devbackend.Options{}))

	client := records.New(records.Options{BaseURL: backend.URL + "/rest", Timeout: 5 * time.Second})
	codec := reference.NewCodec(client.BaseURL())
	registry := panel.NewRegistry(panel.Deps{Store: client, AppIDs: schema.DefaultAppIDs, Codec: codec})

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	// Find a free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	mux := web.NewMux(web.Deps{
		Registry:   registry,
		Records:    client,
		AppIDs:     schema.DefaultAppIDs,
		Translator: i18n.NewTranslator("en"),
		Sender:     email.NewNoopSender(),
		Collector:  perf.NewCollector(1000),
		Options: web.Options{
			CSRFKey:           []byte("0123456789abcdef0123456789abcdef"),
			AdminPasswordHash: string(hash),
		},
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("test server error: %v", err)
		}
	}()

	// Wait for server to be ready
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	for i := 0; i < 50; i++ {
		resp, err := http.Get(baseURL + "/healthz")
		if err == nil {
			resp.Body.Close()
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	// Start Playwright
	pw, err := playwright.Run()
	if err != nil {
		t.Fatalf("failed to start Playwright: %v", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		t.Fatalf("failed to launch browser: %v", err)
	}

	app := &testApp{
		BaseURL: baseURL,
		Server:  srv,
		PW:      pw,
		Browser: browser,
		Records: client,
	}

	t.Cleanup(func() {
		browser.Close()
		pw.Stop()
		srv.Close()
		backend.Close()
		db.Close()
	})

	return app
}

// newPage creates a new browser page (tab) that accepts confirm dialogs.
func (a *testApp) newPage(t *testing.T) playwright.Page {
	t.Helper()
	page, err := a.Browser.NewPage()
	if err != nil {
		t.Fatalf("failed to create page: %v", err)
	}
	page.OnDialog(func(d playwright.Dialog) { _ = d.Accept() })
	t.Cleanup(func() { page.Close() })
	return page
}

// login signs in with the admin password.
func (a *testApp) login(t *testing.T, page playwright.Page) {
	t.Helper()
	if _, err := page.Goto(a.BaseURL + "/login"); err != nil {
		t.Fatalf("failed to navigate to login: %v", err)
	}
	if err := page.Locator("input[name=password]").Fill(adminPassword); err != nil {
		t.Fatalf("failed to fill password: %v", err)
	}
	if err := page.Locator("button[type=submit]").Click(); err != nil {
		t.Fatalf("failed to click login: %v", err)
	}
	if err := page.WaitForURL(a.BaseURL+"/", playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		t.Fatalf("login did not redirect to dashboard: %v", err)
	}
}
