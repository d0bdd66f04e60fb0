package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/duelqueue/backend/internal/api"
	"github.com/duelqueue/backend/internal/config"
	"github.com/duelqueue/backend/internal/database"
	"github.com/duelqueue/backend/internal/matchmaking"
	"github.com/duelqueue/backend/internal/migrations"
	"github.com/duelqueue/backend/internal/redisconn"
	"github.com/duelqueue/backend/internal/session"
	"github.com/duelqueue/backend/internal/store"
)

func main() {
	cfg := config.Load()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	rdb, err := redisconn.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	st := store.New(db, rdb)
	engine := matchmaking.NewEngine(st, matchmaking.EngineConfig{
		Timeout:          cfg.MatchmakingTimeout,
		PollInterval:     cfg.PollInterval,
		InitialThreshold: cfg.InitialCompatThreshold,
		MinThreshold:     cfg.MinimumCompatThreshold,
		DecayRate:        cfg.DecayRatePerSecond,
		BaseTolerance:    cfg.BaseSkillTolerance,
		SkillRelaxRate:   cfg.SkillRelaxRate,
	})
	facade := session.New(st, engine, cfg)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.SetupRoutes(router, facade, cfg)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("Starting matchmaking server on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}
