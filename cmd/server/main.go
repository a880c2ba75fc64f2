/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the commission engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and parse command-line flags
  2. Initialize SQLite store
  3. Create API handler with dependencies
  4. Start the overdue installment scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: commission.db)
           Use ":memory:" for an in-memory database
  -sweep   Overdue check interval (default: 1h)

ENVIRONMENT (flags win over environment):
  PORT        HTTP server port
  DB_PATH     SQLite database path
  LOG_LEVEL   logrus level (debug, info, warn, error)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and close the database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/commission.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/warp/commission-engine/api"
	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/notify"
	"github.com/warp/commission-engine/store/sqlite"
)

func main() {
	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	// Flags (defaults pick up the environment)
	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "commission.db"), "SQLite database path")
	sweepInterval := flag.Duration("sweep", time.Hour, "overdue check interval")
	flag.Parse()

	logger := newLogger()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler
	cfg := engine.DefaultConfig()
	notifier := notify.NewLogNotifier(logger)
	handler := api.NewHandler(store, notifier, cfg, logger)

	// Background overdue detection
	scheduler := api.NewOverdueScheduler(handler.Installments, logger)
	scheduler.CheckInterval = *sweepInterval
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
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
		logger.Infof("Server starting on http://localhost:%d", *port)
		logger.Infof("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(envStr("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

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
	}
	return fallback
}
