/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Initialize SQLite store
  3. Create the engine and restore persisted state
  4. Create API handler and router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: PAYROLL_PORT or 8080)
  -db      SQLite database path (default: PAYROLL_DB or payroll.db)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  PAYROLL_PORT             HTTP port
  PAYROLL_DB               SQLite database path
  PAYROLL_CURRENCIES       Default account currencies, primary first (ILS,USD)
  PAYROLL_NOTES_SEPARATOR  Separator for merged notes (" | ")
  LOG_LEVEL                debug | info | warn | error

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/payroll.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - engine/engine.go: Command surface and persistence
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/payroll-ledger/api"
	"github.com/warp/payroll-ledger/config"
	"github.com/warp/payroll-ledger/engine"
	"github.com/warp/payroll-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Error("failed to initialize database", slog.String("path", *dbPath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	e := engine.New(engine.Options{
		Persister:         store,
		Logger:            logger,
		NotesSeparator:    cfg.NotesSeparator,
		DefaultCurrencies: cfg.Currencies,
	})
	if err := e.Restore(context.Background()); err != nil {
		logger.Error("failed to restore state", slog.String("error", err.Error()))
		os.Exit(1)
	}

	router := api.NewRouter(api.NewHandler(e, logger))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", slog.Int("port", *port), slog.String("db", *dbPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", slog.String("error", err.Error()))
		return
	}

	logger.Info("server stopped")
}
