/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the enrollment engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (YAML file, .env, ENROLL_* environment)
  2. Apply command-line overrides
  3. Initialize SQLite store and its KV table
  4. Start the notification dispatcher and reconciliation scheduler
  5. Create API handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML config file
  -port    HTTP server port (overrides server.port)
  -db      SQLite database path (overrides database.path)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and drain queued notifications
  4. Close database connection

EXAMPLES:
  ./server -config=./enrollment.yaml
  ./server -db=":memory:" -port=3000
  ENROLL_GATEWAY_SECRET_KEY=sk_test_... ./server

SEE ALSO:
  - config/config.go: Settings and defaults
  - api/server.go: Router configuration
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
	"syscall"
	"time"

	"github.com/warp/enrollment-engine/api"
	"github.com/warp/enrollment-engine/config"
	"github.com/warp/enrollment-engine/gateway"
	"github.com/warp/enrollment-engine/notify"
	"github.com/warp/enrollment-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	platformCut, err := cfg.PlatformCut()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	kv := store.KV()

	// Notifications are persisted and logged off the request path
	dispatcher := notify.NewDispatcher(notify.Multi{
		notify.StoreSink{Store: store},
		notify.LogSink{Logger: logger},
	}, cfg.Notify.QueueSize, logger)
	dispatcher.Start()
	defer dispatcher.Stop()

	var gw gateway.Gateway
	if cfg.StubGateway() {
		logger.Println("[Checkout] No gateway secret configured, using the in-process stub")
		gw = gateway.NewStub()
	} else {
		gw = gateway.NewClient(gateway.ClientConfig{
			BaseURL:   cfg.Gateway.BaseURL,
			SecretKey: cfg.Gateway.SecretKey,
			Timeout:   cfg.Gateway.Timeout,
		})
	}

	scheduler := api.NewReconciliationScheduler(store, kv, cfg.Scheduler.ReconcileSpec, logger)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Initialize handler
	handler := api.NewHandler(api.Deps{
		Store:       store,
		KV:          kv,
		Gateway:     gw,
		Notifier:    dispatcher,
		Scheduler:   scheduler,
		CacheTTL:    cfg.Cache.TTL,
		LockTTL:     cfg.Cache.LockTTL,
		PlatformCut: platformCut,
		Logger:      logger,
	})

	// Create router
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", cfg.Server.Port)
		log.Printf("📊 API available at http://localhost:%d/api", cfg.Server.Port)
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
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
