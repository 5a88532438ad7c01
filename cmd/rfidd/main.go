package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"rental-rfid-backend/config"
	"rental-rfid-backend/internal/api"
	"rental-rfid-backend/internal/db"
	"rental-rfid-backend/internal/enrollment"
	"rental-rfid-backend/internal/ingest"
	"rental-rfid-backend/internal/logger"
	"rental-rfid-backend/internal/mqttsub"
	"rental-rfid-backend/internal/notification"
	"rental-rfid-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	appLog, err := logger.New(cfg.Log.Mode)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer appLog.Sync()
	appLog.Info("configuration loaded", "path", configPath)

	if cfg.RFID.APIKey == "" {
		appLog.Fatal("rfid.api_key must be configured (or set RFID_API_KEY)")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		appLog.Fatal("failed to initialize database", "error", err)
	}
	appLog.Info("database initialized", "driver", cfg.Database.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.New(gormDB)

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	var alerts ingest.Alerter
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, &webpushOptions, appLog)
		pool.Start(ctx)
		alerts = pool
	} else {
		appLog.Warn("VAPID keys are not configured; operator push alerts are disabled")
	}

	pipeline := ingest.NewPipeline(appStore, ingest.Options{
		APIKey:           cfg.RFID.APIKey,
		SystemActor:      cfg.RFID.SystemActorID,
		AlertUnknownTags: cfg.RFID.AlertUnknownTags,
		AlertMovements:   cfg.RFID.AlertMovements,
	}, alerts, appLog)
	manager := enrollment.NewManager(appStore, appLog)

	// Batches from either transport invalidate cached query responses.
	responses := api.NewResponseCache(cfg.Server.CacheTTL)

	var subscriber *mqttsub.Subscriber
	if cfg.MQTT.Enabled {
		subscriber = mqttsub.New(cfg.MQTT, pipeline, responses, appLog)
		if err := subscriber.Start(ctx); err != nil {
			appLog.Fatal("failed to start mqtt subscriber", "error", err)
		}
	}

	// Initialize router
	handler := api.NewHandler(appStore, pipeline, manager, &webpushOptions, cfg.Server.OperatorIDHeader, appLog)
	router := api.NewRouter(&cfg.Server, handler, responses, appLog)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLog.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("HTTP server ListenAndServe", "error", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	appLog.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if subscriber != nil {
		subscriber.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server Shutdown", "error", err)
	}
	cancel()

	appLog.Info("server gracefully stopped")
}
