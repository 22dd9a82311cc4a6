package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/lolplq101/valcomps/internal/app/migrate"
	"github.com/lolplq101/valcomps/internal/catalog"
	httpx "github.com/lolplq101/valcomps/internal/http"
	"github.com/lolplq101/valcomps/internal/repository/postgres"
	"github.com/lolplq101/valcomps/internal/service/auth"
	"github.com/lolplq101/valcomps/internal/service/comp"
	"github.com/lolplq101/valcomps/internal/service/roster"
	"github.com/lolplq101/valcomps/internal/service/team"
	"github.com/lolplq101/valcomps/internal/ws"
	"github.com/lolplq101/valcomps/pkg/config"
	"github.com/lolplq101/valcomps/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub()
	cat := catalog.Default()

	limiter := httpx.NewMemoryRateLimiter()
	var previewCache comp.PreviewCache
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
		cacheClient := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := cacheClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis preview cache unavailable", "error", err)
			_ = cacheClient.Close()
		} else {
			previewCache = comp.NewRedisPreviewCache(cacheClient, cfg.SharedCacheTTL)
			defer cacheClient.Close()
		}
	}

	authSvc := auth.New(repo, log, cfg)
	teamSvc := team.New(repo, hub, log, cfg.MemberCap, cfg.CodeAttempts)
	rosterSvc := roster.New(repo, log)
	compSvc := comp.New(repo, repo, cat, previewCache, log, cfg.CodeAttempts)

	router := httpx.NewRouter(log, authSvc, teamSvc, rosterSvc, compSvc, hub, limiter, cfg.JoinRateLimit, cfg.LookupRateLimit, cfg.RateLimitWindow, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
