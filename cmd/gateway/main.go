package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DanielPopoola/marketplace-escrow/internal/adapters/handler"
	"github.com/DanielPopoola/marketplace-escrow/internal/adapters/postgres"
	"github.com/DanielPopoola/marketplace-escrow/internal/adapters/provider"
	"github.com/DanielPopoola/marketplace-escrow/internal/adapters/ratelimit"
	"github.com/DanielPopoola/marketplace-escrow/internal/config"
	"github.com/DanielPopoola/marketplace-escrow/internal/core/service"
	"github.com/DanielPopoola/marketplace-escrow/internal/worker"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting escrow service",
		"env", cfg.Primary.Env,
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := redis.NewClient(cfg.Redis.RedisOptions())
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable at startup, rate limited calls will fail until it is", "addr", cfg.Redis.Addr, "error", err)
	}

	repo := postgres.NewRepository(db)
	directory := postgres.NewDirectory(db)
	limiter := ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit, logger)
	gate := service.NewFeatureGate(directory, cfg.Features, logger)
	providers := provider.NewResolver(cfg.Providers, cfg.Retry, cfg.Payments.ProviderTimeout, logger)

	escrowService := service.NewEscrowService(repo, logger)
	intentService := service.NewPaymentIntentService(
		repo,
		directory,
		providers,
		limiter,
		gate,
		escrowService,
		cfg.Payments,
		logger,
	)
	refundService := service.NewRefundService(escrowService, directory, logger)

	doc, err := handler.LoadOpenAPI()
	if err != nil {
		logger.Error("failed to load openapi document", "error", err)
		os.Exit(1)
	}
	validateRequests, err := handler.ValidateRequests(doc, logger)
	if err != nil {
		logger.Error("failed to build request validator", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	handler.NewRPCHandler(intentService, refundService, gate, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr: "0.0.0.0:" + cfg.Server.Port,
		Handler: handler.Chain(mux,
			handler.Correlation(),
			handler.Logging(logger),
			handler.Recovery(logger),
			handler.Timeout(cfg.Server.WriteTimeout),
			handler.Authenticate(handler.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer), logger),
			validateRequests,
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	reconciler := worker.NewReconciler(repo, intentService, cfg.Worker, logger)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go reconciler.Start(workerCtx)

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
