package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/rusikfsk/unichat/internal/cache"
	"github.com/rusikfsk/unichat/internal/config"
	"github.com/rusikfsk/unichat/internal/handler"
	"github.com/rusikfsk/unichat/internal/hub"
	"github.com/rusikfsk/unichat/internal/kafka"
	"github.com/rusikfsk/unichat/internal/membership"
	"github.com/rusikfsk/unichat/internal/natsx"
	"github.com/rusikfsk/unichat/internal/presence"
	"github.com/rusikfsk/unichat/internal/repository"
	"github.com/rusikfsk/unichat/internal/router"
	"github.com/rusikfsk/unichat/internal/service"
	"github.com/rusikfsk/unichat/internal/sweeper"
	"github.com/rusikfsk/unichat/pkg/database"
	"github.com/rusikfsk/unichat/pkg/jwt"
	pkglog "github.com/rusikfsk/unichat/pkg/log"
	"github.com/rusikfsk/unichat/pkg/middleware"
	"github.com/rusikfsk/unichat/pkg/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "chat-server",
	})
	logger := pkglog.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database using GORM
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	repo := repository.NewGormRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize attachment storage")
	}
	logger.Info().Str("driver", cfg.Storage.Driver).Msg("attachment storage ready")

	// Redis backs the user cache and the last-seen store when either asks for it
	var redisClient *redis.Client
	if cfg.Cache.Enabled || cfg.Presence.Store == "redis" {
		redisClient, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	var users cache.UserCache = cache.NewPassthrough(repo)
	if cfg.Cache.Enabled {
		users = cache.NewRedisUserCache(redisClient, repo, cfg.Cache.Prefix, cfg.Cache.TTL)
	}

	var lastSeen presence.LastSeenStore = presence.NewMemoryLastSeenStore()
	if cfg.Presence.Store == "redis" {
		lastSeen = presence.NewRedisLastSeenStore(redisClient, cfg.Presence.KeyPrefix)
	}
	defer lastSeen.Close()

	// Initialize the committed-event producer
	var producer kafka.EventProducer = kafka.NewNoopProducer()
	switch {
	case cfg.Kafka.Enabled:
		cp, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize kafka producer")
		}
		producer = cp
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka producer connected")
	case cfg.Nats.Enabled:
		np, err := natsx.NewProducer(natsx.Config{
			Servers:       strings.Split(cfg.Nats.Servers, ","),
			Name:          "chat-server",
			SubjectPrefix: cfg.Nats.SubjectPrefix,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize nats producer")
		}
		producer = np
		logger.Info().Str("servers", cfg.Nats.Servers).Str("subject_prefix", cfg.Nats.SubjectPrefix).Msg("nats producer connected")
	}
	defer producer.Close()

	// Initialize Hub
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run(ctx)

	tracker := presence.NewTracker(wsHub, lastSeen)
	wsHub.OnEvict(tracker.Evict)

	authority := membership.NewAuthority(repo)
	rt := router.NewRouter(wsHub, authority)

	chatSvc := service.NewChatService(service.Dependencies{
		Repo:        repo,
		Authority:   authority,
		Events:      rt,
		Users:       users,
		Storage:     blobs,
		Producer:    producer,
		Message:     cfg.Message,
		Attachments: cfg.Attachments,
	})

	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}

	sw := sweeper.New(repo, blobs, cfg.Attachments)
	sw.Start(ctx)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	r.MaxMultipartMemory = 8 << 20

	// Health check
	r.GET("/health", func(c *gin.Context) {
		if err := database.Ping(c.Request.Context(), db); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler.NewHandler(chatSvc, tracker, middleware.NewAuthMiddleware(tokens)).
		WithDownloadRedirect(cfg.Attachments.RedirectDownloads).
		RegisterRoutes(r)

	// WebSocket endpoint on a plain mux; gin serves everything else
	mux := http.NewServeMux()
	wsHandler := handler.NewWSHandler(wsHub, tracker, rt, chatSvc, tokens, cfg.WebSocket, cfg.Message.OperationTimeout)
	wsHandler.RegisterRoutes(mux)
	mux.Handle("/", r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           wsOnly(mux, pkglog.HTTPMiddleware(logger)),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", addr).Msg("chat-server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat-server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	sw.Stop()
	select {
	case <-sw.Done():
	case <-shutdownCtx.Done():
	}

	wsHub.Shutdown()
	cancel()

	logger.Info().Msg("chat-server stopped")
}

// wsOnly applies mw to the websocket path. Gin requests are already logged
// by its own middleware.
func wsOnly(next *http.ServeMux, mw func(http.Handler) http.Handler) http.Handler {
	logged := mw(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			logged.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
