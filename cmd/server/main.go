package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matchroom/backend/internal/api/handler"
	"matchroom/backend/internal/chathub"
	"matchroom/backend/internal/chatroom"
	"matchroom/backend/internal/config"
	"matchroom/backend/internal/countdown"
	"matchroom/backend/internal/event"
	"matchroom/backend/internal/ledger"
	"matchroom/backend/internal/localization"
	"matchroom/backend/internal/logger"
	"matchroom/backend/internal/storage"
	"matchroom/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(ctx context.Context, cfg *config.Config) (*gorm.DB, *redis.Client) {
	// 1. PostgreSQL
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect PostgreSQL", err)
	}

	// 2. Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect Redis", err)
	}

	logger.Info("Database and Redis connections established")
	return db, rdb
}

// setupEmitter publishes lifecycle events to RabbitMQ when AMQP_URL is set.
func setupEmitter(cfg *config.Config) (event.Emitter, func()) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP_URL not set, lifecycle events disabled")
		return event.Nop{}, func() {}
	}
	rabbit, err := event.Dial(cfg.AMQPURL, event.ExchangeMatchroomEvents)
	if err != nil {
		logger.Fatal("Failed to connect RabbitMQ", err)
	}
	return rabbit, func() {
		if err := rabbit.Close(); err != nil {
			logger.Warn("Failed to close RabbitMQ connection", "error", err)
		}
	}
}

func main() {
	logger.Init("info", false)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", err)
	}
	logger.Init(cfg.LogLevel, cfg.AppEnv != "production")
	defer logger.Sync()
	logger.Info("Starting Matchroom backend", "env", cfg.AppEnv, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Stores
	db, rdb := setupDependencies(ctx, cfg)
	s := storage.NewStorageService(db, rdb)
	if err := s.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}
	remote := s.Remote()

	emitter, closeEmitter := setupEmitter(cfg)
	defer closeEmitter()

	// 2. Optional Telegram notifications
	var (
		pairNotifier ledger.Notifier
		roomNotifier chatroom.Notifier
	)
	if cfg.TelegramBotToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramBotToken)
		if err != nil {
			logger.Fatal("Failed to start Telegram bot", err)
		}
		localizer, err := localization.Default()
		if err != nil {
			logger.Fatal("Failed to load locales", err)
		}
		n := telegram.NewNotifier(bot, s, localizer, cfg.NotifyLanguage)
		pairNotifier, roomNotifier = n, n
	} else {
		logger.Info("TELEGRAM_BOT_TOKEN not set, notifications disabled")
	}

	// 3. Services
	l := ledger.New(remote, emitter, pairNotifier)
	rooms := chatroom.NewRegistry(remote, chatroom.Options{
		Archive:    s,
		Users:      s,
		Ledger:     l,
		Emitter:    emitter,
		Notifier:   roomNotifier,
		DurationMs: cfg.RoomDurationMs,
	})
	timers := countdown.NewService(remote, rooms, clockwork.NewRealClock(), cfg.TickInterval)
	matcher := chathub.NewMatcherService(s, s.Local())
	hub := chathub.NewManagerService(l, rooms, timers, matcher)

	if closed, err := rooms.SweepArchive(ctx); err != nil {
		logger.Warn("Archive sweep failed", "error", err)
	} else if len(closed) > 0 {
		logger.Info("Closed stale archived rooms", "rooms", closed)
	}

	hubCtx, cancelHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	// 4. HTTP
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	handler.NewHandler(hub, s, []byte(cfg.JWTSecret)).RegisterRoutes(r)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	cancelHub()
	timers.Shutdown()
	_ = rdb.Close()
}
