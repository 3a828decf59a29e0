package main // Entry point package for the development BaaS

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4" // Echo web framework
	"go.uber.org/zap"

	"github.com/iliyamo/lawncare-booking/internal/config"
	"github.com/iliyamo/lawncare-booking/internal/database"
	"github.com/iliyamo/lawncare-booking/internal/handler"
	"github.com/iliyamo/lawncare-booking/internal/logger"
	"github.com/iliyamo/lawncare-booking/internal/middleware"
	"github.com/iliyamo/lawncare-booking/internal/queue"
	"github.com/iliyamo/lawncare-booking/internal/repository"
	"github.com/iliyamo/lawncare-booking/internal/resolver"
	"github.com/iliyamo/lawncare-booking/internal/router"
	queuepub "github.com/iliyamo/lawncare-booking/internal/service"
)

func main() {
	config.LoadDotEnv("")
	cfg := config.Load() // Load environment config

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		zl.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		zl.Fatal("migrate", zap.Error(err))
	}

	rdb := config.NewRedisClient(zl) // nil when redis is down
	if rdb != nil {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	profiles := repository.NewCachedProfiles(repository.NewProfileRepo(db), rdb, config.LoadProfileCacheConfig(), zl)
	bookings := repository.NewBookingRepo(db)
	events := queuepub.New(cfg.AMQPURL, zl)

	// Server-side gating resolves roles exactly like the app but never
	// triggers a convergence refresh.
	roles := resolver.New(resolver.DefaultStrategies(profiles), resolver.WithLogger(zl))

	consumers := []*queue.Consumer{
		{URL: cfg.AMQPURL, Queue: queue.RoleChangedQueue, Handle: queue.RoleChangedHandler(profiles, zl), Log: zl},
		{URL: cfg.AMQPURL, Queue: queue.BookingCreatedQueue, Handle: queue.BookingLogHandler("logs"), Log: zl},
	}
	for _, c := range consumers {
		go func(c *queue.Consumer) {
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("consumer stopped", zap.String("queue", c.Queue), zap.Error(err))
			}
		}(c)
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	deps := router.Deps{
		JWTSecret: cfg.JWTSecret,
		AnonKey:   cfg.AnonKey,
		Resolver:  roles,
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, zl),
	}
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, profiles, zl), deps)
	router.RegisterRest(e,
		handler.NewProfileHandler(profiles, events, zl),
		handler.NewBookingHandler(bookings, profiles, events, zl),
		deps)

	addr := ":" + cfg.Port
	zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Warn("shutdown", zap.Error(err))
	}
}
