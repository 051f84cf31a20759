package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/chris/invoice-settlement/pkg/api"
	"github.com/chris/invoice-settlement/pkg/bootstrap"
	"github.com/chris/invoice-settlement/pkg/config"
	"github.com/chris/invoice-settlement/pkg/consolidation"
	"github.com/chris/invoice-settlement/pkg/handlers"
	wshandler "github.com/chris/invoice-settlement/pkg/handlers/websockets"
	"github.com/chris/invoice-settlement/pkg/logger"
	"github.com/chris/invoice-settlement/pkg/middleware"
	"github.com/chris/invoice-settlement/pkg/scheduler"
	"github.com/chris/invoice-settlement/pkg/websockets"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zl := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	defer func() { _ = zl.Sync() }()

	ctx := context.Background()

	// AWS Session
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		zl.Fatal("Unable to load SDK config", zap.Error(err))
	}

	stores, err := bootstrap.OpenStores(ctx, cfg.Store, awsCfg, zl)
	if err != nil {
		zl.Fatal("Failed to open stores", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stores.Close(closeCtx); err != nil {
			zl.Error("Failed to close stores", zap.Error(err))
		}
	}()

	engine := consolidation.NewEngine(stores.Invoices, bootstrap.EngineConfig(cfg.Engine), zl.Named("engine"))

	var sched scheduler.Scheduler
	if cfg.Queue.URL != "" {
		sched = scheduler.NewSQSScheduler(sqs.NewFromConfig(awsCfg), cfg.Queue.URL)
	} else {
		zl.Info("No queue configured, scheduled settlements are disabled")
	}

	// Progress goes through API Gateway when deployed and straight to local sockets otherwise.
	hub := websockets.NewHub(zl.Named("hub"))
	var publisher websockets.Publisher = hub
	if cfg.WebSocket.Endpoint != "" {
		publisher = websockets.NewPublisher(awsCfg, stores.Connections, stores.Connections, cfg.WebSocket.Endpoint, zl.Named("publisher"))
	}

	handler := handlers.NewApiHandler(stores.Invoices, engine, sched, publisher, zl.Named("http"))

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.NewStructuredLogger(zl.Named("access")))
	router.Handle("/ws", wshandler.NewHandler(stores.Connections, hub, zl.Named("ws")))
	api.HandlerFromMux(handler, router)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("Starting server", zap.String("port", cfg.App.Port), zap.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server forced to shutdown", zap.Error(err))
	}
	zl.Info("Server exited gracefully")
}
