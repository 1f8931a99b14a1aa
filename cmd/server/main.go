/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the clinic settlement engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Wire calendar client, sync orchestrator and settlement engine
  4. Configure HTTP router
  5. Start the periodic sync runner
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080, env PORT)
  -db      SQLite database path (default: clinic.db, env DB_PATH)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  PORT                      HTTP port
  DB_PATH                   SQLite path
  CALENDAR_URL              Calendar collaborator base URL
  CALENDAR_TIMEOUT          HTTP timeout for the collaborator (e.g. "30s")
  SYNC_INTERVAL             Periodic sync interval ("0" disables)
  SYNC_WINDOW_DAYS          Trailing sync window in days
  DEFAULT_COMMISSION_RATE   Clinic-wide commission rate (e.g. "0.30")
  DEFAULT_WITHHOLDING_RATE  Clinic-wide withholding rate (e.g. "0.15")

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sync runner (waits for an in-flight run)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/clinic.db"

  # Run with in-memory database, no calendar
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - ingest/runner.go: Periodic sync
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/praxia/clinic-engine/api"
	"github.com/praxia/clinic-engine/billing"
	"github.com/praxia/clinic-engine/calendar"
	"github.com/praxia/clinic-engine/ingest"
	"github.com/praxia/clinic-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments use actual environment variables.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	// Flags (env vars provide the defaults)
	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "clinic.db"), "SQLite database path")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Settlement engine
	engine := billing.NewEngine(store, store, billing.LogNotifier{})

	rates := billing.RateConfig{
		DefaultCommissionRate:  envDecimal("DEFAULT_COMMISSION_RATE", "0.30"),
		DefaultWithholdingRate: envDecimal("DEFAULT_WITHHOLDING_RATE", "0.15"),
	}

	// Calendar sync
	calendarURL := envStr("CALENDAR_URL", "")
	orchestrator := &ingest.Orchestrator{
		Sessions:      store,
		Practitioners: store,
		Runs:          store,
	}
	var runner *ingest.Runner
	if calendarURL != "" {
		orchestrator.Source = calendar.NewClient(calendarURL, envDuration("CALENDAR_TIMEOUT", 30*time.Second))
		runner = ingest.NewRunner(orchestrator,
			envDuration("SYNC_INTERVAL", time.Hour),
			envInt("SYNC_WINDOW_DAYS", 62))
		runner.Start()
		defer runner.Stop()
	} else {
		log.Println("CALENDAR_URL not set; calendar sync disabled")
	}

	// Create router
	handler := api.NewHandler(store, engine, orchestrator, rates)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// =============================================================================
// ENV HELPERS
// =============================================================================

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("Warning: invalid %s=%q, using %d", key, v, fallback)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("Warning: invalid %s=%q, using %s", key, v, fallback)
	}
	return fallback
}

func envDecimal(key, fallback string) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		log.Fatalf("Invalid %s=%q: %v", key, v, err)
	}
	return d
}
