package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"messenger/internal/auth"
	"messenger/internal/config"
	"messenger/internal/database"
	"messenger/internal/handlers"
	"messenger/internal/relay"
	"messenger/internal/services"
	"messenger/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewPostgresDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to create schema: %v", err)
	}

	sinks := []relay.MessageSink{db}
	if cfg.Redis.URL != "" {
		publisher, err := database.NewRedisPublisher(ctx, cfg.Redis.URL, cfg.Redis.HistoryLimit)
		if err != nil {
			logger.Fatal("Failed to connect to redis: %v", err)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
		logger.Info("Publishing messages to redis channel %s", database.MessagesChannel)
	}

	// Initialize the relay hub
	hub := relay.NewHub(
		relay.WithSink(relay.MultiSink(sinks...)),
		relay.WithPersistTimeout(cfg.Relay.PersistTimeout),
		relay.WithExclusiveUsernames(cfg.Relay.ExclusiveUsernames),
	)

	// Initialize services
	authService := auth.NewService(db, cfg.JWT)
	directory := services.NewDirectory(db, hub)

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(authService)
	presenceHandlers := handlers.NewPresenceHandlers(directory, hub)
	wsHandlers := handlers.NewWebSocketHandlers(authService, hub, cfg.Relay.SendBuffer)

	// Setup routes
	mux := http.NewServeMux()
	handlers.SetupRoutes(mux, authHandlers, presenceHandlers, wsHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	printAPIEndpoints()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("Server error: %v", err)
	}
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown: %v", err)
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Error("Hub shutdown: %v", err)
	}
	logger.Info("Server stopped")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   POST /register")
	logger.Info("   POST /login")
	logger.Info("   GET  /online_users")
	logger.Info("   GET  /rooms")
	logger.Info("   GET  /health")
}
