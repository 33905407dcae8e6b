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

	"go.uber.org/zap"

	"kasbon/backend/internal/cache"
	"kasbon/backend/internal/config"
	"kasbon/backend/internal/httpapi"
	"kasbon/backend/internal/logging"
	"kasbon/backend/internal/service"
	"kasbon/backend/internal/store"
	"kasbon/backend/internal/store/memory"
	pgstore "kasbon/backend/internal/store/postgres"
	"kasbon/backend/internal/xid"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	if err := xid.SetNode(cfg.NodeID); err != nil {
		logger.Fatal("invalid NODE_ID", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	repo, balances, closers, err := openBackends(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}

	svc := service.New(repo, cfg.DefaultBranchID,
		service.WithLogger(logger),
		service.WithBalanceCache(balances, time.Duration(cfg.BalanceCacheTTLSeconds)*time.Second),
		service.WithCashDrawer(service.NewLogCashDrawer(logger)),
	)
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("kasbon backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// openBackends picks postgres when DATABASE_URL is set and the seeded
// in-memory store otherwise, plus redis for balances when REDIS_ADDR is set.
// An unreachable redis degrades to no caching; an unreachable database is
// fatal.
func openBackends(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, cache.BalanceCache, []func() error, error) {
	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, pgstore.WithMaxAttempts(cfg.TxMaxAttempts))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, nil, fmt.Errorf("migrate schema: %w", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository selected", zap.String("backend", "postgres"))
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository selected", zap.String("backend", "memory"))
	}

	var balances cache.BalanceCache = cache.NoopBalanceCache{}
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisBalanceCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, balance cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = redisCache.Close()
		} else {
			balances = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("balance cache selected", zap.String("backend", "redis"))
		}
	} else {
		logger.Info("balance cache selected", zap.String("backend", "noop"))
	}

	return repo, balances, closers, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AllowedOrigin == "*" && cfg.DatabaseURL != "" {
		return fmt.Errorf("ALLOWED_ORIGIN must name an origin when a database is configured")
	}
	return nil
}
