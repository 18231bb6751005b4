// Command recordsd serves the records REST API from a local SQLite file, for
// development and browser tests without the hosted backend.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"coursedesk/internal/adapters/devbackend"
	"coursedesk/internal/adapters/http/perf"
	"coursedesk/internal/adapters/storage"
	recordStore "coursedesk/internal/adapters/storage/record"
)

func main() {
	_ = godotenv.Load()

	addr := envOrDefault("COURSEDESK_RECORDSD_ADDR", ":8090")
	dbPath := envOrDefault("COURSEDESK_RECORDSD_DB", "records.db")
	slowMs, err := strconv.Atoi(envOrDefault("COURSEDESK_SLOW_QUERY_MS", strconv.Itoa(storage.DefaultSlowQueryMs)))
	if err != nil || slowMs <= 0 {
		log.Fatalf("COURSEDESK_SLOW_QUERY_MS must be a positive integer")
	}

	db, err := storage.Open(dbPath, perf.NewCollector(perf.DefaultRingSize), slowMs)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	srv := &http.Server{
		Addr: addr,
		Handler: devbackend.NewHandler(recordStore.NewSQLiteStore(db), devbackend.Options{
			RequiredCookie: os.Getenv("COURSEDESK_RECORDSD_COOKIE"),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server_shutdown_failed", "error", err)
		}
	}()

	log.Printf("recordsd serving %s on %s (base path /rest)", dbPath, addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
