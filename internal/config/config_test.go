package config

import (
	"strings"
	"testing"
	"time"

	"coursedesk/internal/domain/schema"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Env != "development" || cfg.Locale != "de" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.BackendURL != "https://my.living-apps.de/rest" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.BackendTimeout != 15*time.Second {
		t.Errorf("BackendTimeout = %v", cfg.BackendTimeout)
	}
	if cfg.SlowRequestMs != 200 || cfg.SlowQueryMs != 50 {
		t.Errorf("slow thresholds = %d/%d", cfg.SlowRequestMs, cfg.SlowQueryMs)
	}
	for kind, id := range schema.DefaultAppIDs {
		if cfg.AppIDs[kind] != id {
			t.Errorf("AppIDs[%s] = %q, want %q", kind, cfg.AppIDs[kind], id)
		}
	}
	if cfg.CSRFKey != nil || cfg.SeedDemo || cfg.IsProduction() {
		t.Errorf("unexpected non-default: %+v", cfg)
	}
	if cfg.Tracing.Exporter != "none" {
		t.Errorf("Tracing.Exporter = %q", cfg.Tracing.Exporter)
	}
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"COURSEDESK_ADDR":            "127.0.0.1:9000",
		"COURSEDESK_BACKEND_URL":     "http://localhost:8081/rest",
		"COURSEDESK_BACKEND_COOKIE":  "session=abc",
		"COURSEDESK_BACKEND_TIMEOUT": "3s",
		"COURSEDESK_APP_ROOMS":       "0123456789abcdef01234567",
		"COURSEDESK_CSRF_KEY":        strings.Repeat("ab", 32),
		"COURSEDESK_SEED_DEMO":       "true",
		"COURSEDESK_TRACING":         "stdout",
		"COURSEDESK_LOCALE":          "en",
	}))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" || cfg.BackendTimeout != 3*time.Second || !cfg.SeedDemo {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.AppIDs[schema.KindRooms] != "0123456789abcdef01234567" {
		t.Errorf("rooms app id = %q", cfg.AppIDs[schema.KindRooms])
	}
	if cfg.AppIDs[schema.KindCourses] != schema.DefaultAppIDs[schema.KindCourses] {
		t.Error("override leaked into other kinds")
	}
	if len(cfg.CSRFKey) != 32 {
		t.Errorf("CSRFKey length = %d", len(cfg.CSRFKey))
	}
	if cfg.Tracing.Exporter != "stdout" || cfg.Locale != "en" {
		t.Errorf("tracing %q locale %q", cfg.Tracing.Exporter, cfg.Locale)
	}
}

func TestFromLookup_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad backend url", map[string]string{"COURSEDESK_BACKEND_URL": "not a url"}, "BACKEND_URL"},
		{"bad timeout", map[string]string{"COURSEDESK_BACKEND_TIMEOUT": "soon"}, "BACKEND_TIMEOUT"},
		{"bad cookie", map[string]string{"COURSEDESK_BACKEND_COOKIE": "abc"}, "BACKEND_COOKIE"},
		{"bad app id", map[string]string{"COURSEDESK_APP_COURSES": "xyz"}, "app id for courses"},
		{"short csrf key", map[string]string{"COURSEDESK_CSRF_KEY": "abcd"}, "CSRF_KEY"},
		{"production needs csrf key", map[string]string{"COURSEDESK_ENV": "production"}, "CSRF_KEY is required"},
		{"unknown env", map[string]string{"COURSEDESK_ENV": "staging"}, "ENV must be"},
		{"unknown tracing", map[string]string{"COURSEDESK_TRACING": "jaeger"}, "TRACING"},
		{"plain password", map[string]string{"COURSEDESK_ADMIN_PASSWORD_HASH": "hunter2"}, "bcrypt"},
		{"bad seed flag", map[string]string{"COURSEDESK_SEED_DEMO": "maybe"}, "SEED_DEMO"},
		{"bad slow ms", map[string]string{"COURSEDESK_SLOW_QUERY_MS": "-1"}, "SLOW_QUERY_MS"},
		{"dev backend in production", map[string]string{
			"COURSEDESK_ENV":         "production",
			"COURSEDESK_CSRF_KEY":    strings.Repeat("ab", 32),
			"COURSEDESK_DEV_BACKEND": "dev.db",
		}, "DEV_BACKEND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromLookup(lookupFrom(tt.env))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
