// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"coursedesk/internal/adapters/tracing"
	"coursedesk/internal/domain/reference"
	"coursedesk/internal/domain/schema"
)

const envPrefix = "COURSEDESK_"

// Config holds all settings of the admin server.
type Config struct {
	Addr              string
	Env               string
	BackendURL        string
	BackendCookie     string
	BackendTimeout    time.Duration
	AppIDs            map[schema.Kind]string
	CSRFKey           []byte // nil: generate per process
	AdminPasswordHash string
	Locale            string
	ResendKey         string
	EmailFrom         string
	ReplyTo           string
	DevBackend        string
	SeedDemo          bool
	Tracing           tracing.Config
	SlowRequestMs     int
	SlowQueryMs       int
}

// IsProduction reports whether production hardening applies.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads the configuration and validates it. A missing .env file is
// not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an environment lookup function.
// PRE: lookup is non-nil
// POST: Returns a validated Config or the first validation error
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(name, fallback string) string {
		if v, ok := lookup(envPrefix + name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg := &Config{
		Addr:              get("ADDR", ":8080"),
		Env:               get("ENV", "development"),
		BackendURL:        get("BACKEND_URL", "https://my.living-apps.de/rest"),
		BackendCookie:     get("BACKEND_COOKIE", ""),
		AdminPasswordHash: get("ADMIN_PASSWORD_HASH", ""),
		Locale:            get("LOCALE", "de"),
		ResendKey:         get("RESEND_KEY", ""),
		EmailFrom:         get("EMAIL_FROM", "Kursverwaltung <noreply@example.com>"),
		ReplyTo:           get("REPLY_TO", ""),
		DevBackend:        get("DEV_BACKEND", ""),
		AppIDs:            make(map[schema.Kind]string, len(schema.DefaultAppIDs)),
	}

	var errs []error
	var err error

	if cfg.BackendTimeout, err = time.ParseDuration(get("BACKEND_TIMEOUT", "15s")); err != nil || cfg.BackendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: %sBACKEND_TIMEOUT must be a positive duration", envPrefix))
	}
	if cfg.SeedDemo, err = strconv.ParseBool(get("SEED_DEMO", "false")); err != nil {
		errs = append(errs, fmt.Errorf("config: %sSEED_DEMO must be a boolean", envPrefix))
	}
	cfg.SlowRequestMs = positiveInt(get("SLOW_REQUEST_MS", "200"), "SLOW_REQUEST_MS", &errs)
	cfg.SlowQueryMs = positiveInt(get("SLOW_QUERY_MS", "50"), "SLOW_QUERY_MS", &errs)

	for kind, def := range schema.DefaultAppIDs {
		cfg.AppIDs[kind] = get("APP_"+strings.ToUpper(string(kind)), def)
	}

	if key := get("CSRF_KEY", ""); key != "" {
		cfg.CSRFKey, err = hex.DecodeString(key)
		if err != nil || len(cfg.CSRFKey) != 32 {
			errs = append(errs, fmt.Errorf("config: %sCSRF_KEY must be 64 hex characters", envPrefix))
		}
	}

	cfg.Tracing = tracing.DefaultConfig()
	cfg.Tracing.Exporter = get("TRACING", tracing.ExporterNone)
	cfg.Tracing.OTLPEndpoint = get("OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)

	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func positiveInt(s, name string, errs *[]error) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		*errs = append(*errs, fmt.Errorf("config: %s%s must be a positive integer", envPrefix, name))
		return 0
	}
	return n
}

// validate applies the cross-field rules.
func (c *Config) validate() error {
	var errs []error

	if c.Env != "development" && c.Env != "production" && c.Env != "test" {
		errs = append(errs, fmt.Errorf("config: %sENV must be development, production or test, got %q", envPrefix, c.Env))
	}

	parsed, err := url.Parse(c.BackendURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("config: %sBACKEND_URL invalid (%q): scheme or host missing", envPrefix, c.BackendURL))
	}

	if c.BackendCookie != "" && !strings.Contains(c.BackendCookie, "=") {
		errs = append(errs, fmt.Errorf("config: %sBACKEND_COOKIE must be name=value", envPrefix))
	}

	for kind, id := range c.AppIDs {
		if !reference.IsID(id) {
			errs = append(errs, fmt.Errorf("config: app id for %s must be 24 hex characters, got %q", kind, id))
		}
	}

	if c.IsProduction() && c.CSRFKey == nil {
		errs = append(errs, fmt.Errorf("config: %sCSRF_KEY is required in production", envPrefix))
	}
	if c.IsProduction() && c.DevBackend != "" {
		errs = append(errs, fmt.Errorf("config: %sDEV_BACKEND must not be used in production", envPrefix))
	}
	if c.AdminPasswordHash != "" && !strings.HasPrefix(c.AdminPasswordHash, "$2") {
		errs = append(errs, fmt.Errorf("config: %sADMIN_PASSWORD_HASH must be a bcrypt hash", envPrefix))
	}

	switch c.Tracing.Exporter {
	case tracing.ExporterNone, tracing.ExporterStdout, tracing.ExporterOTLP:
	default:
		errs = append(errs, fmt.Errorf("config: %sTRACING must be none, stdout or otlp, got %q", envPrefix, c.Tracing.Exporter))
	}

	return errors.Join(errs...)
}
