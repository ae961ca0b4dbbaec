package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plainchat/internal/auth"
	"plainchat/internal/cache"
	"plainchat/internal/config"
	"plainchat/internal/database"
	"plainchat/internal/handlers"
	"plainchat/internal/mw"
	"plainchat/internal/services"
	"plainchat/internal/websocket"
	"plainchat/pkg/logger"

	"golang.org/x/time/rate"
)

func main() {
	seed := flag.Bool("seed", false, "insert demo users, groups and messages after migrating")
	flag.Parse()
	if flag.Arg(0) == "SEED_DB" {
		*seed = true
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration: %v", err)
	}
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	keys, err := auth.NewKeys(cfg.JWT.Secret)
	if err != nil {
		logger.Fatal("Invalid JWT secret: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewPostgresDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to run migrations: %v", err)
	}
	if *seed {
		if err := database.Seed(ctx, db, auth.HashPassword); err != nil {
			logger.Fatal("Failed to seed database: %v", err)
		}
	}

	redisCache, err := cache.NewRedisCache(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Failed to connect to redis: %v", err)
	}
	defer redisCache.Close()

	// Initialize services
	authenticator := auth.NewAuthenticator(keys, redisCache)
	authService := auth.NewService(db, authenticator)
	presence := services.NewPresence(redisCache)
	messages := services.NewMessageStore(db, redisCache)
	roomService := services.NewRoomService(db, messages, presence)

	// Initialize WebSocket hub manager
	hubManager := websocket.NewManager(db, messages, presence, cfg.Server.HubIdleTimeout)
	go hubManager.Run(ctx)

	limiter := mw.NewRateLimiter(rate.Limit(cfg.Limits.AuthPerSecond), cfg.Limits.AuthBurst, 10*time.Minute)
	defer limiter.Stop()

	router := handlers.NewRouter(handlers.Deps{
		Accounts:      authService,
		Authenticator: authenticator,
		Rooms:         roomService,
		Presence:      presence,
		Users:         db,
		Hubs:          hubManager,
		AuthLimiter:   limiter,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server started on http://localhost%s", cfg.Server.Port)
		logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
		printAPIEndpoints()
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}

func printAPIEndpoints() {
	logger.Info("API endpoints:")
	logger.Info("   POST   /api/user")
	logger.Info("   POST   /api/user/auth")
	logger.Info("   GET    /api/user")
	logger.Info("   PUT    /api/user")
	logger.Info("   DELETE /api/user")
	logger.Info("   GET    /api/group")
	logger.Info("   POST   /api/group")
	logger.Info("   DELETE /api/group/{id}")
	logger.Info("   GET    /api/group/{id}/members")
	logger.Info("   GET    /api/group/{id}/messages")
	logger.Info("   GET    /ws")
	logger.Info("   GET    /metrics")
}
