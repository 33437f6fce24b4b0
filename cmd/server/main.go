/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the settings override service. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment, apply flag overrides
  2. Initialize SQLite store
  3. Build the cascade engine and the effect relay
  4. Configure HTTP router with authz middleware
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for an in-memory database

ENVIRONMENT:
  See config.Config for the full list: PORT, DB_PATH, LOG_LEVEL,
  AUTHZ_MODE, RELAY_INTERVAL, RELAY_BATCH, RELAY_MAX_BACKOFF,
  RELAY_MAX_ATTEMPTS.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the effect relay
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/policy.db"

  # Run with in-memory database and open authz
  AUTHZ_MODE=disabled ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - dispatch/relay.go: Effect delivery loop
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

	"github.com/sirupsen/logrus"

	"github.com/engagekit/policy-engine/api"
	"github.com/engagekit/policy-engine/authz"
	"github.com/engagekit/policy-engine/config"
	"github.com/engagekit/policy-engine/dispatch"
	"github.com/engagekit/policy-engine/leadscore"
	"github.com/engagekit/policy-engine/policy"
	"github.com/engagekit/policy-engine/store/sqlite"
	"github.com/engagekit/policy-engine/task"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags override the environment for local runs.
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// Store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	// Engine
	engine := policy.NewEngine(store, log)

	// Effect relay with per-domain handlers. The recompute jobs live in
	// other services; this deployment logs what they would receive.
	relay := dispatch.NewRelay(store, log, dispatch.Config{
		Interval:    cfg.RelayInterval,
		BatchSize:   cfg.RelayBatchSize,
		MaxBackoff:  cfg.RelayMaxBackoff,
		MaxAttempts: cfg.RelayMaxAttempts,
	})
	relay.Register(policy.DomainTask, &task.Handler{Recalc: &logQuotaRecalculator{log: log}, Log: log})
	relay.Register(policy.DomainLeadScore, &leadscore.Handler{Resetter: &logScoreResetter{log: log}, Log: log})

	relayCtx, cancelRelay := context.WithCancel(context.Background())
	defer cancelRelay()
	go relay.Start(relayCtx)

	// Authz
	mode, err := authz.ParseMode(cfg.AuthzMode)
	if err != nil {
		log.WithError(err).Fatal("invalid authz mode")
	}
	auth, err := authz.New(mode, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize authz")
	}

	// Router and server
	handler := api.NewHandler(engine, log)
	router := api.NewRouter(handler, auth)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", *port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	cancelRelay()
	relay.Stop()

	log.Info("server stopped")
}
