package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/areuok/server/internal/config"
	"github.com/areuok/server/internal/db"
	"github.com/areuok/server/internal/device"
	"github.com/areuok/server/internal/event"
	httphandler "github.com/areuok/server/internal/http"
	"github.com/areuok/server/internal/http/handlers"
	"github.com/areuok/server/internal/repo"
	"github.com/areuok/server/internal/streak"
	"github.com/areuok/server/internal/supervision"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

func main() {
	// Load .env from CWD so it works from repo root (env vars override)
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create context for startup operations
	ctx := context.Background()

	// Open database connection
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	deviceRepo := repo.NewDeviceRepo(database)
	signinRepo := repo.NewSigninRepo(database)
	supervisionRepo := repo.NewSupervisionRepo(database)

	// One process-wide event bus; closed on shutdown so open streams exit
	bus := event.NewBus(cfg.EventBuffer)

	// Initialize services
	deviceService := device.NewService(deviceRepo)
	engine := streak.NewEngine(deviceRepo, signinRepo, bus)
	supervisionService := supervision.NewService(supervisionRepo)
	directory := supervision.NewDirectory(supervisionRepo)

	// Initialize handlers
	deviceHandler := handlers.NewDeviceHandler(deviceService)
	signinHandler := handlers.NewSigninHandler(engine)
	supervisionHandler := handlers.NewSupervisionHandler(supervisionService)
	eventsHandler := handlers.NewEventsHandler(bus, directory, cfg.SSEKeepalive)

	// Create router
	router := httphandler.NewRouter(deviceHandler, signinHandler, supervisionHandler, eventsHandler)

	// Create HTTP server with timeouts. WriteTimeout stays 0 because the
	// event stream endpoint holds its connection open indefinitely.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Closing the bus ends every open event stream, which lets Shutdown
	// finish instead of waiting out the timeout on idle SSE connections.
	bus.Close()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}

	absDir, _ := filepath.Abs(migrationDir)
	log.Printf("Running migrations from %s", absDir)

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
