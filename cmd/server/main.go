package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"socialfi-engine/pkg/api"
	"socialfi-engine/pkg/auth"
	"socialfi-engine/pkg/cache"
	"socialfi-engine/pkg/config"
	"socialfi-engine/pkg/connectors"
	"socialfi-engine/pkg/database"
	"socialfi-engine/pkg/engine"
	"socialfi-engine/pkg/ledger"
	"socialfi-engine/pkg/middleware"
	"socialfi-engine/pkg/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg)

	logrus.Info("Starting SocialFi engine...")

	db, err := database.Initialize(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		logrus.Fatalf("Failed to run database migrations: %v", err)
	}

	if cfg.IsDevelopment() && cfg.Market.SeedOnStart {
		if err := database.Seed(db, cfg); err != nil {
			logrus.Fatalf("Failed to seed database: %v", err)
		}
	}

	redisCache, err := cache.Initialize(cfg)
	if err != nil {
		logrus.Warnf("Redis unavailable, caching and rate limit fast path disabled: %v", err)
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	// Core trading stack: ledger store, executor, connectors, websocket hub.
	store := ledger.NewGormStore(db)
	executor := engine.NewExecutor(store, engine.WithMaxAttempts(cfg.Market.TradeMaxRetries))
	registry := connectors.NewRegistry()
	hub := websocket.NewHub()

	jwtService := auth.NewJWTService(cfg.JWT.SecretKey, cfg.JWT.ExpiresIn)
	var verifier auth.SignatureVerifier = auth.DevVerifier{}
	if cfg.IsProduction() && !cfg.JWT.DevVerifier {
		logrus.Fatal("Refusing to start in production without a signature verifier; set AUTH_DEV_VERIFIER=true to override")
	}
	if cfg.IsProduction() && cfg.JWT.DevVerifier {
		logrus.Warn("Dev signature verifier enabled in production, signatures are not cryptographically checked")
	}
	challenges := auth.NewChallengeService(db, verifier, cfg.Server.Host, cfg.JWT.ChallengeTTL)

	authMW := middleware.NewAuthMiddleware(jwtService, db)
	rateMW := middleware.NewRateLimitMiddleware(redisCache, db)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.IsDevelopment() {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{
			"https://yourdomain.com", // Replace with your actual domain
		}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
		"X-Idempotency-Key",
	}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	handlers := api.NewHandlers(db, store, executor, redisCache, hub, registry, jwtService, challenges, cfg)
	api.SetupRoutes(router, handlers, authMW, rateMW)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logrus.Infof("Server listening on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server stopped")
}

func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	if cfg.IsDevelopment() {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}
