package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/amglabs/companion/api"
	"github.com/amglabs/companion/authgate"
	"github.com/amglabs/companion/config"
	"github.com/amglabs/companion/conversation"
	"github.com/amglabs/companion/domain"
	"github.com/amglabs/companion/entitlement"
	"github.com/amglabs/companion/policy"
	"github.com/amglabs/companion/replyclient"
	"github.com/amglabs/companion/session"
	"github.com/amglabs/companion/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting companion orchestrator...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Reply service: %s", cfg.ReplyServiceURL)

	// Initialize storage: PostgREST collaborator when configured, local
	// SQLite otherwise.
	var st store.Store
	if cfg.StorageURL != "" {
		log.Printf("Storage: %s", cfg.StorageURL)
		st = store.NewPostgrestStore(cfg.StorageURL, cfg.StorageAPIKey, 15*time.Second)
	} else {
		log.Printf("Storage: %s", cfg.DatabaseURL)
		sqlite, err := store.NewSQLiteStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize store: %v", err)
		}
		st = sqlite
	}
	defer st.Close()

	// Initialize reply service client
	reply := replyclient.NewClient(cfg.ReplyServiceURL, cfg.ReplyTimeout)

	// Initialize policy engine
	ctx := context.Background()
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize session components
	gate := authgate.NewGate(cfg.AuthURL, cfg.AuthAnonKey)
	hints := authgate.NewHintCache(cfg.HintPath)
	tracker := entitlement.NewTracker(st)
	conv := conversation.NewManager(st, reply, tracker, engine)
	conv.TTSTimeout = cfg.TTSTimeout
	coord := session.NewCoordinator(tracker, conv, engine, hints)

	// Subscribe to pushed session changes when a realtime endpoint is
	// configured; socket failures log and retry.
	if cfg.RealtimeURL != "" {
		go func() {
			for {
				err := gate.Listen(ctx, cfg.RealtimeURL, func(identity *domain.Identity) {
					coord.HandleAuthChange(ctx, identity)
				})
				if err != nil {
					log.Printf("WARN: realtime listener stopped: %v", err)
				}
				time.Sleep(5 * time.Second)
			}
		}()
	}

	// Initialize handlers
	h := api.NewHandler(coord, gate, reply)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Register routes
	h.RegisterRoutes(e)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Orchestrator stopped")
}
