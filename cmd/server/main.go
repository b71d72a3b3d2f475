package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/listening-room-server/internal/auth"
	"github.com/listening-room-server/internal/config"
	"github.com/listening-room-server/internal/room"
	"github.com/listening-room-server/internal/scheduler"
	"github.com/listening-room-server/internal/search"
	"github.com/listening-room-server/internal/spotify"
	"github.com/listening-room-server/internal/ws"
	"github.com/listening-room-server/pkg/database"
	"github.com/listening-room-server/pkg/events"
	"github.com/listening-room-server/pkg/jwt"
	"github.com/listening-room-server/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	setupLogger(cfg)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	clk := clock.New()
	registry := room.NewRegistry(clk)

	publisher := newPublisher(cfg)
	defer publisher.Close()

	history := newHistory(cfg)
	defer history.Close()

	roomService := room.NewService(registry, nil, publisher, history)
	hub := ws.NewHub(registry)
	roomService.SetGateway(hub)

	sched := scheduler.New(registry, roomService, clk, scheduler.Config{
		ProgressInterval: cfg.PlaybackCheckInterval,
		SyncInterval:     cfg.SyncInterval,
	})

	if cfg.SpotifyClientID == "" {
		logrus.Warn("SPOTIFY_CLIENT_ID not set, catalog search will fail")
	}
	spotifyClient := spotify.NewClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	searchService := search.NewService(spotifyClient, newSearchCache(cfg, clk))

	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		logrus.Warn("JWT_SECRET not set, admin tokens will not survive a restart")
	}
	tokens := jwt.NewManager(secret, cfg.AdminTokenTTL)

	authHandler := auth.NewHandler(tokens, cfg.AdminAPIKey)
	roomHandler := room.NewHandler(roomService, hub)
	searchHandler := search.NewHandler(searchService)
	wsHandler := ws.NewHandler(hub, ws.NewDispatcher(roomService), cfg.AllowedOrigins)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	v1 := router.Group("/api/v1")

	// Public routes
	authHandler.RegisterRoutes(v1)
	roomHandler.RegisterRoutes(v1)
	searchHandler.RegisterRoutes(v1)
	wsHandler.RegisterRoutes(v1)

	// Operator routes
	admin := v1.Group("/admin")
	admin.Use(auth.AuthMiddleware(tokens))
	roomHandler.RegisterAdminRoutes(admin)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	go func() {
		logrus.WithField("port", cfg.Port).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Shutdown error")
	}
}

func setupLogger(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Production() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

func newPublisher(cfg *config.Config) events.Publisher {
	if !cfg.KafkaEnabled() {
		logrus.Info("Kafka not configured, room events are discarded")
		return events.Discard{}
	}
	logrus.WithFields(logrus.Fields{
		"brokers": cfg.KafkaBrokers,
		"topic":   cfg.KafkaTopic,
	}).Info("Publishing room events to Kafka")
	return events.NewKafkaClient(cfg.KafkaBrokers, cfg.KafkaTopic)
}

func newHistory(cfg *config.Config) room.History {
	if !cfg.MySQLEnabled() {
		logrus.Info("MySQL not configured, play history is disabled")
		return room.NoHistory{}
	}

	db, err := database.NewMySQLDB(
		cfg.MySQLHost,
		cfg.MySQLPort,
		cfg.MySQLUser,
		cfg.MySQLPassword,
		cfg.MySQLDatabase,
	)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	return &closingHistory{HistoryRecorder: room.NewHistoryRecorder(db), db: db}
}

// closingHistory closes the database once the recorder has drained.
type closingHistory struct {
	*room.HistoryRecorder
	db *database.MySQLDB
}

func (h *closingHistory) Close() error {
	if err := h.HistoryRecorder.Close(); err != nil {
		return err
	}
	return h.db.Close()
}

func newSearchCache(cfg *config.Config, clk clock.Clock) search.Cache {
	if !cfg.RedisEnabled() {
		logrus.Info("Redis not configured, using in-memory search cache")
		return search.NewMemoryCache(clk, cfg.SearchCacheTTL)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Warn("Redis unreachable, using in-memory search cache")
		client.Close()
		return search.NewMemoryCache(clk, cfg.SearchCacheTTL)
	}
	return redis.NewSearchCache(client, cfg.SearchCacheTTL)
}
