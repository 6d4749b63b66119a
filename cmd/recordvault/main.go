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

	"github.com/savegress/recordvault/internal/api"
	"github.com/savegress/recordvault/internal/audit"
	"github.com/savegress/recordvault/internal/config"
	"github.com/savegress/recordvault/internal/extraction"
	"github.com/savegress/recordvault/internal/grants"
	"github.com/savegress/recordvault/internal/reports"
	"github.com/savegress/recordvault/internal/viewer"
)

func main() {
	log.Println("Starting RecordVault...")

	// Load configuration
	cfg := loadConfig()

	// Open stores
	reportStore, grantStore, err := openStores(cfg)
	if err != nil {
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer reportStore.Close()
	defer grantStore.Close()

	// Initialize audit logger
	auditLogger := audit.NewLogger(&cfg.Audit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := auditLogger.Start(ctx); err != nil {
		log.Fatalf("Failed to start audit logger: %v", err)
	}

	// External document-understanding client
	extractor := extraction.NewClient(&extraction.ClientConfig{
		BaseURL: cfg.Extraction.BaseURL,
		APIKey:  cfg.Extraction.APIKey,
		Timeout: cfg.Extraction.Timeout,
	})

	// Core components
	normalizer := extraction.NewNormalizer()
	registry := grants.NewRegistry(&cfg.Grants, grantStore, reportStore)
	reader := viewer.NewReader(registry, reportStore)

	// Create API server
	handlers := api.NewHandlers(extractor, normalizer, reportStore, registry, reader, auditLogger)
	server := api.NewServer(cfg, handlers)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("RecordVault API listening on port %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down RecordVault...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	auditLogger.Stop()

	log.Println("RecordVault stopped")
}

func openStores(cfg *config.Config) (reports.Store, grants.Store, error) {
	if cfg.Database.Driver == "memory" {
		return reports.NewMemoryStore(), grants.NewMemoryStore(), nil
	}

	reportStore, err := reports.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	grantStore, err := grants.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		reportStore.Close()
		return nil, nil, err
	}
	return reportStore, grantStore, nil
}

func loadConfig() *config.Config {
	configPath := os.Getenv("RECORDVAULT_CONFIG")
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Printf("Failed to load config from %s: %v, using defaults", configPath, err)
			return config.LoadFromEnv()
		}
		return cfg
	}
	return config.LoadFromEnv()
}
