/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fee engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), then apply flags
  2. Configure the global zerolog logger
  3. Initialize SQLite store (runs embedded migrations)
  4. Create API handler and optionally load SEED_FILE
  5. Start the compliance monitor (unless the interval is 0)
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override environment):
  -port    HTTP server port
  -db      SQLite database path. Use ":memory:" for an in-memory database
  -seed    YAML seed file loaded at startup
  -env     Path of the optional .env file (default: .env)

ENVIRONMENT:
  PORT, DB_PATH, SEED_FILE, LOG_LEVEL, LOG_FORMAT, COMPLIANCE_INTERVAL,
  CORS_ORIGINS. See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the compliance monitor
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Demo data in memory
  ./server -db=":memory:" -seed=factory/testdata/demo.yaml

  # JSON logs for production
  LOG_FORMAT=json DB_PATH=/var/lib/fees/fees.db ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Compliance monitor
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
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/warp/fee-engine/api"
	"github.com/warp/fee-engine/config"
	"github.com/warp/fee-engine/store/sqlite"
)

func main() {
	// Flags
	envFile := flag.String("env", ".env", "Path of the optional .env file")
	port := flag.Int("port", 0, "HTTP server port (overrides PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DB_PATH)")
	seedFile := flag.String("seed", "", "YAML seed file (overrides SEED_FILE)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *seedFile != "" {
		cfg.SeedFile = *seedFile
	}

	// Logging
	zerolog.SetGlobalLevel(cfg.Level())
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.DBPath).Msg("failed to initialize database")
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, log.Logger)

	if cfg.SeedFile != "" {
		res, err := handler.LoadSeedFile(context.Background(), cfg.SeedFile)
		if err != nil {
			log.Warn().Err(err).Str("file", cfg.SeedFile).Msg("failed to load seed")
		} else {
			log.Info().Int("payments", res.Payments).Str("file", cfg.SeedFile).Msg("seed applied")
		}
	}

	// Compliance monitor
	if cfg.ComplianceInterval > 0 {
		monitor := api.NewComplianceMonitor(store, handler.Service, log.Logger)
		monitor.CheckInterval = cfg.ComplianceInterval
		handler.Monitor = monitor
		monitor.Start()
		defer monitor.Stop()
	}

	// Create router
	router := api.NewRouter(handler, cfg.CORSOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Port).Str("db", cfg.DBPath).Msgf("API available at http://localhost:%d/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	if handler.Monitor != nil {
		handler.Monitor.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
