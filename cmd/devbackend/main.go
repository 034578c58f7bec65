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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"gas-auth/internal/config"
	"gas-auth/internal/devbackend"
	"gas-auth/internal/telemetry"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	shutdownTelemetry := telemetry.Setup(ctx, "gas-auth-devbackend", cfg.OTelEndpoint, cfg.OTelInsecure, logger)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(sctx)
	}()

	var (
		revoked devbackend.RevocationStore
		limiter devbackend.LoginLimiter
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			revoked = devbackend.NewRedisRevocationStore(redisClient)
			limiter = devbackend.NewRedisLoginLimiter(redisClient, cfg.DevLoginWindow, cfg.DevLoginMaxAttempts)
		}
		cancel()
	}

	users, err := devbackend.NewUserDirectory(devbackend.DefaultSeed)
	if err != nil {
		logger.Fatal("seed users", zap.Error(err))
	}
	if cfg.DevJWTSecret == "dev-secret" {
		logger.Warn("using default dev jwt secret")
	}
	if limiter == nil {
		limiter = devbackend.NewMemoryLoginLimiter(cfg.DevLoginWindow, cfg.DevLoginMaxAttempts)
	}
	tokens := devbackend.NewTokenService(cfg.DevJWTSecret, cfg.DevTokenTTL, revoked)
	backend := devbackend.NewBackend(logger, users, tokens, devbackend.Options{
		RejectPost: cfg.DevRejectPost,
		Limiter:    limiter,
	})
	router := devbackend.NewRouter(logger, backend)

	server := &http.Server{
		Addr:              ":" + cfg.DevBackendPort,
		Handler:           otelhttp.NewHandler(router, "gas-auth-devbackend"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting dev backend", zap.String("port", cfg.DevBackendPort), zap.Bool("reject_post", cfg.DevRejectPost))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
