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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/doodlemind/doodle.ai/db"
	"github.com/doodlemind/doodle.ai/internal/api"
	"github.com/doodlemind/doodle.ai/internal/auth"
	"github.com/doodlemind/doodle.ai/internal/mind"
	"github.com/doodlemind/doodle.ai/internal/models"
	"github.com/doodlemind/doodle.ai/internal/session"
	"github.com/doodlemind/doodle.ai/internal/utils"
	"github.com/doodlemind/doodle.ai/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: failed to initialise: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	ctx := context.Background()

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres.BuildDSN())
	if err != nil {
		sugar.Fatalf("postgres: failed to connect: %v", err)
	}
	defer pool.Close()

	roster := loadRoster(ctx, db.NewPersonaRepository(pool), sugar)

	mongoClient, err := db.NewMongoClient(ctx, cfg.Mongo.URI)
	if err != nil {
		sugar.Fatalf("mongo: failed to connect: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			sugar.Warnf("mongo: close error: %v", err)
		}
	}()

	database := mongoClient.Database(cfg.Mongo.Database)
	if err := db.EnsureHistoryIndexes(ctx, database); err != nil {
		sugar.Fatalf("mongo: ensure indexes: %v", err)
	}

	redisClient, err := db.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		sugar.Fatalf("redis: failed to connect: %v", err)
	}
	defer func() { _ = redisClient.Close() }()

	authService, err := auth.NewService(cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		sugar.Fatalf("failed to initialise auth service: %v", err)
	}

	generation := services.NewGenerationService(cfg, sugar)

	manager := session.NewManager(
		roster,
		generation,
		generation,
		db.NewSnapshotStore(redisClient),
		db.NewHistoryStore(database),
		cfg.Engine,
		sugar,
	)

	router := setupRouter(authService, manager, sugar)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infof("server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("server crashed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("graceful shutdown failed: %v", err)
	}

	sugar.Info("server stopped cleanly")
}

// loadRoster serves the catalog from Postgres, falling back to the built-in
// roster until the seed script has run.
func loadRoster(ctx context.Context, repo *db.PersonaRepository, sugar *zap.SugaredLogger) []models.Persona {
	roster, err := repo.LoadRoster(ctx)
	if errors.Is(err, db.ErrRosterTableMissing) {
		sugar.Warn("personas table missing, using built-in roster")
		return mind.DefaultRoster()
	}
	if err != nil {
		sugar.Fatalf("postgres: load roster: %v", err)
	}
	if len(roster) == 0 {
		sugar.Warn("personas table empty, using built-in roster")
		return mind.DefaultRoster()
	}
	return roster
}

func setupRouter(authService *auth.Service, manager *session.Manager, sugar *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api.NewHandler(authService, manager, sugar).RegisterRoutes(router)

	return router
}
