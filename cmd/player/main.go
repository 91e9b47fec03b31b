package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"chapterly/internal/app"
	"chapterly/internal/config"
	"chapterly/internal/identity"
	"chapterly/internal/ratelimit"
	"chapterly/internal/server"
	"chapterly/internal/util"
	"chapterly/pkg/catalog"
	"chapterly/pkg/events"
	"chapterly/pkg/progress"
	"chapterly/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalogStore, err := catalog.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init catalog store: %v", err)
	}
	progressStore := progress.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, time.Duration(cfg.ProgressTTLDays)*24*time.Hour)
	audioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init audio store: %v", err)
	}
	publisher, err := events.NewAMQPPublisher(cfg.AMQPURL)
	if err != nil {
		log.Fatalf("failed to init event publisher: %v", err)
	}
	defer publisher.Close()
	limiter, err := ratelimit.NewFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.StreamRateLimitPerMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}
	tokenVerifier, err := identity.NewVerifier(identity.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	appCore := app.New(ctx, app.Deps{
		Catalog:      catalogStore,
		Progress:     progressStore,
		Audio:        audioStore,
		Publisher:    publisher,
		Limiter:      limiter,
		TickInterval: time.Duration(cfg.TickIntervalMs) * time.Millisecond,
		StreamURLTTL: time.Duration(cfg.StreamURLTTLSeconds) * time.Second,
	})

	httpServer := server.New(server.Config{
		App:           appCore,
		TokenVerifier: tokenVerifier,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("player server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
