package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/jukebox-rooms/internal/auth"
	"github.com/jukebox-rooms/internal/config"
	"github.com/jukebox-rooms/internal/credentials"
	"github.com/jukebox-rooms/internal/playback"
	"github.com/jukebox-rooms/internal/queue"
	"github.com/jukebox-rooms/internal/registry"
	"github.com/jukebox-rooms/internal/room"
	"github.com/jukebox-rooms/internal/scheduler"
	"github.com/jukebox-rooms/internal/spotify"
	"github.com/jukebox-rooms/internal/sweeper"
	"github.com/jukebox-rooms/internal/votes"
	"github.com/jukebox-rooms/internal/ws"
	"github.com/jukebox-rooms/pkg/database"
	"github.com/jukebox-rooms/pkg/events"
	"github.com/jukebox-rooms/pkg/jwt"
	"github.com/jukebox-rooms/pkg/redis"
)

const (
	sessionTTL      = 7 * 24 * time.Hour
	relayRetryDelay = 5 * time.Second
)

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if !cfg.Production() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET must be set")
	}

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Redis client
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	roomFeed := redis.NewRoomFeed(redisClient)
	tokenStore := redis.NewTokenStore(redisClient)

	// Initialize MySQL database; writes to rooms are announced on the feed
	db, err := database.NewMySQLDB(cfg.MySQLHost, cfg.MySQLPort, cfg.MySQLUser, cfg.MySQLPassword, cfg.MySQLDatabase, roomFeed)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Initialize Kafka client
	kafkaClient := events.NewKafkaClient(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	defer func() {
		if err := kafkaClient.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka client")
		}
	}()

	spotifyClient := spotify.NewClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyRedirectURI)
	sessions := jwt.NewManager(cfg.JWTSecret, sessionTTL)

	// Reconciliation core
	rooms := registry.New(db)
	if err := rooms.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial registry load failed")
	}
	aggregator := votes.NewAggregator(db)
	synchronizer := playback.NewSynchronizer(rooms, spotifyClient, db, aggregator, kafkaClient, cfg.DriftThreshold)
	engine := queue.NewEngine(rooms, db, synchronizer, kafkaClient, cfg.NoSyncMargin)
	refresher := credentials.NewRefresher(rooms, spotifyClient, spotifyClient, db, tokenStore)
	roomSweeper := sweeper.New(db, cfg.RoomMaxLifetime())
	hub := ws.NewHub(kafkaClient, cfg.AllowedOrigins)

	var loops conc.WaitGroup
	loops.Go(func() { scheduler.Run(ctx, "registry", cfg.RegistryResyncInterval, rooms.Refresh) })
	loops.Go(func() { rooms.Watch(ctx, roomFeed.Subscribe(ctx)) })
	loops.Go(func() { scheduler.Run(ctx, "playback", cfg.SyncInterval, synchronizer.Tick) })
	loops.Go(func() { scheduler.Run(ctx, "queue", cfg.ReorderInterval, engine.Tick) })
	loops.Go(func() { scheduler.Run(ctx, "credentials", cfg.CredentialRefreshInterval, refresher.Tick) })
	loops.Go(func() { scheduler.Run(ctx, "sweeper", cfg.SweepInterval, roomSweeper.Tick) })
	loops.Go(func() { scheduler.Run(ctx, "ws-relay", relayRetryDelay, hub.Run) })

	// Initialize handlers
	roomService := room.NewService(db, spotifyClient, kafkaClient)
	authHandler := auth.NewHandler(spotifyClient, spotifyClient, spotifyClient, tokenStore, db, sessions, auth.Config{
		FrontendURL:  cfg.FrontendURL,
		SecureCookie: cfg.Production(),
	})
	roomHandler := room.NewHandler(roomService)

	router := newRouter(cfg, authHandler, roomHandler, hub)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	loops.Wait()
	if sqlDB, err := db.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server exited gracefully")
}

func newRouter(cfg *config.Config, authHandler *auth.Handler, roomHandler *room.Handler, hub *ws.Hub) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Redirect legacy Spotify OAuth callback to the API route
	router.GET("/auth/callback", func(c *gin.Context) {
		dest := "/api/v1/auth/callback"
		if raw := c.Request.URL.RawQuery; raw != "" {
			dest += "?" + raw
		}
		c.Redirect(http.StatusTemporaryRedirect, dest)
	})

	v1 := router.Group("/api/v1")

	// Public routes
	authHandler.RegisterRoutes(v1)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(authHandler.Middleware())
	{
		roomHandler.RegisterRoutes(protected)

		// WebSocket endpoint
		protected.GET("/ws/:pin", hub.HandleWebSocket)
	}

	return router
}
