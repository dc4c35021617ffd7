package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentclash/arena/arena"
	"github.com/agentclash/arena/cache"
	"github.com/agentclash/arena/config"
	"github.com/agentclash/arena/db"
	"github.com/agentclash/arena/engine"
	"github.com/agentclash/arena/handlers"
	"github.com/agentclash/arena/matchmaking"
	"github.com/agentclash/arena/realtime"
	"github.com/agentclash/arena/repositories"
	api "github.com/agentclash/arena/routes"
	"github.com/agentclash/arena/services"
	"github.com/agentclash/arena/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	cancelPing()
	defer redisClient.Close()
	logger.Info("redis connection established", slog.String("addr", cfg.RedisAddr))

	var uploader storage.FileUploader
	if cfg.R2Configured() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize object storage", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("object storage initialized")
	} else {
		logger.Warn("object storage not configured, avatar uploads disabled")
	}

	wsHub := realtime.NewHub(logger)
	go wsHub.Run()
	logger.Info("websocket hub started")

	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	resultRepo := repositories.NewPostgresResultRepository(dbConn)

	leaderboardCache := cache.NewLeaderboardCache(redisClient)

	participantService := services.NewParticipantService(participantRepo, uploader, logger)
	leaderboardService := services.NewLeaderboardService(participantRepo, leaderboardCache, logger)
	resultService := services.NewResultService(dbConn, resultRepo, participantRepo, leaderboardCache, logger)
	logger.Info("services initialized")

	registry := engine.NewRegistry(logger)
	gameDescriptors := []engine.GameDescriptor{
		engine.NewPriceGuessDescriptor(engine.PriceGuessSettings{
			Items: []engine.PriceItem{
				{Name: "vintage synthesizer", TrueValue: 1450},
				{Name: "signed first edition", TrueValue: 820},
				{Name: "antique pocket watch", TrueValue: 2300},
				{Name: "carbon racing frame", TrueValue: 3900},
				{Name: "studio condenser mic", TrueValue: 610},
				{Name: "mechanical keyboard", TrueValue: 240},
				{Name: "espresso lever machine", TrueValue: 1780},
			},
			EliminatePerRound: 1,
		}),
		engine.NewThrowdownDescriptor(engine.ThrowdownSettings{}),
		engine.NewGridSurvivalDescriptor(engine.GridSurvivalSettings{}),
	}
	for _, desc := range gameDescriptors {
		if err := registry.Register(desc); err != nil {
			logger.Error("failed to register game type",
				slog.String("game_type", desc.ID), slog.Any("error", err))
			os.Exit(1)
		}
	}

	queues := matchmaking.NewManager(logger)
	thresholds := map[string]int{
		engine.GameTypePriceGuess:   cfg.PriceGuessThreshold,
		engine.GameTypeThrowdown:    cfg.ThrowdownThreshold,
		engine.GameTypeGridSurvival: cfg.GridSurvivalThreshold,
	}
	for gameTypeID, threshold := range thresholds {
		if err := queues.Configure(gameTypeID, threshold); err != nil {
			logger.Error("failed to configure queue",
				slog.String("game_type", gameTypeID), slog.Any("error", err))
			os.Exit(1)
		}
	}

	orchestrator := arena.NewOrchestrator(
		registry,
		queues,
		participantService,
		realtime.NewSink(wsHub),
		resultService,
		nil, // connectivity enforced by the gateway
		arena.Config{PreMatchDelay: cfg.PreMatchDelay},
		logger,
	)
	logger.Info("orchestrator initialized")

	arenaHandler := handlers.NewArenaHandler(orchestrator, registry)
	participantHandler := handlers.NewParticipantHandler(participantService)
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService, resultService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, logger)

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		cfg.JWTSecretKey,
		arenaHandler,
		participantHandler,
		leaderboardHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
