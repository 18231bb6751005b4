package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coursedesk/internal/adapters/devbackend"
	emailPkg "coursedesk/internal/adapters/email"
	web "coursedesk/internal/adapters/http"
	"coursedesk/internal/adapters/http/middleware"
	"coursedesk/internal/adapters/http/perf"
	"coursedesk/internal/adapters/i18n"
	"coursedesk/internal/adapters/records"
	"coursedesk/internal/adapters/storage"
	recordStore "coursedesk/internal/adapters/storage/record"
	"coursedesk/internal/adapters/tracing"
	"coursedesk/internal/application/orchestrators"
	"coursedesk/internal/application/panel"
	"coursedesk/internal/config"
	"coursedesk/internal/domain/reference"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// sweepInterval is how often idle sessions, workspaces and rate-limit
// buckets are discarded.
const sweepInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if !cfg.IsProduction() {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		log.Fatalf("failed to start tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Error("tracing_shutdown_failed", "error", err)
		}
	}()

	// Performance instrumentation shared by requests, backend calls and queries
	collector := perf.NewCollector(perf.DefaultRingSize)

	backendURL := cfg.BackendURL
	if cfg.DevBackend != "" {
		url, closeBackend, err := startDevBackend(cfg.DevBackend, collector, cfg.SlowQueryMs)
		if err != nil {
			log.Fatalf("failed to start development backend: %v", err)
		}
		defer closeBackend()
		backendURL = url
		log.Printf("Development backend on %s (db=%s)", url, cfg.DevBackend)
	}

	client := records.New(records.Options{
		BaseURL:       backendURL,
		SessionCookie: cfg.BackendCookie,
		Timeout:       cfg.BackendTimeout,
		Tracer:        tp.Tracer(),
		Collector:     collector,
	})
	codec := reference.NewCodec(client.BaseURL())

	if cfg.SeedDemo {
		res, err := orchestrators.ExecuteSeedDemoData(ctx, orchestrators.SeedDemoDataDeps{
			Store:  client,
			AppIDs: cfg.AppIDs,
			Codec:  codec,
		})
		if err != nil {
			log.Fatalf("failed to seed demo data: %v", err)
		}
		if !res.Skipped {
			log.Printf("Demo data seeded: %v", res.Created)
		}
	}

	// Configure email sender
	var sender emailPkg.Sender
	if cfg.ResendKey != "" {
		sender = emailPkg.NewResendSender(cfg.ResendKey, cfg.EmailFrom, cfg.ReplyTo)
		log.Println("Email sender configured (Resend)")
	} else {
		// The noop sender marks its receipts as simulated, so new
		// registrations show a "not delivered" warning instead of a success.
		sender = emailPkg.NewNoopSender()
		if cfg.IsProduction() {
			log.Println("WARNING: COURSEDESK_RESEND_KEY is not set, registration confirmations are NOT delivered")
		} else {
			log.Println("Email sender configured (noop, set COURSEDESK_RESEND_KEY for real delivery)")
		}
	}

	registry := panel.NewRegistry(panel.Deps{
		Store:  client,
		AppIDs: cfg.AppIDs,
		Codec:  codec,
	})
	sessions := middleware.NewSessionStore()
	limiter := middleware.NewRateLimiter(web.DefaultRateLimit, time.Second)
	go sweep(ctx, sessions, registry, limiter)

	mux := web.NewMux(web.Deps{
		Registry:   registry,
		Records:    client,
		AppIDs:     cfg.AppIDs,
		Translator: i18n.NewTranslator(cfg.Locale),
		Sender:     sender,
		Collector:  collector,
		Sessions:   sessions,
		Limiter:    limiter,
		Options: web.Options{
			CSRFKey:           cfg.CSRFKey,
			Secure:            cfg.IsProduction(),
			AdminPasswordHash: cfg.AdminPasswordHash,
			SlowRequestMs:     cfg.SlowRequestMs,
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// Long enough for a joint fetch plus a save at the backend timeout
		WriteTimeout: 3*cfg.BackendTimeout + 5*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server_shutdown_failed", "error", err)
		}
	}()

	log.Printf("Coursedesk %s starting on %s (env=%s, backend=%s, login=%t)", version, cfg.Addr, cfg.Env, backendURL, cfg.AdminPasswordHash != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server stopped")
}

// startDevBackend serves the SQLite records backend on a loopback port and
// returns its API base URL.
func startDevBackend(path string, collector *perf.Collector, slowMs int) (string, func(), error) {
	db, err := storage.Open(path, collector, slowMs)
	if err != nil {
		return "", nil, err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		db.Close()
		return "", nil, err
	}
	srv := &http.Server{
		Handler:           devbackend.NewHandler(recordStore.NewSQLiteStore(db), devbackend.Options{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("dev_backend_failed", "error", err)
		}
	}()
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		db.Close()
	}
	return "http://" + ln.Addr().String() + "/rest", closeFn, nil
}

// sweep periodically drops idle sessions (and with them their workspaces),
// orphaned workspaces and stale rate-limit buckets.
func sweep(ctx context.Context, sessions *middleware.SessionStore, registry *panel.Registry, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired := sessions.Sweep()
			dropped := registry.Sweep(middleware.SessionTTL)
			buckets := limiter.Cleanup(sweepInterval)
			if expired+dropped+buckets > 0 {
				slog.Debug("sweep", "sessions", expired, "workspaces", dropped, "rate_buckets", buckets)
			}
		}
	}
}
