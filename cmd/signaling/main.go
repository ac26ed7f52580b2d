package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/mossy-p/peerlobby/config"
	"github.com/mossy-p/peerlobby/internal/handlers"
	"github.com/mossy-p/peerlobby/internal/memstore"
	"github.com/mossy-p/peerlobby/internal/redis"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	// Pick the mailbox backend
	var store handlers.MessageStore
	switch cfg.Store {
	case config.StoreMemory:
		store = memstore.New(cfg.RoomTTL)
		logger.Warn("Using in-memory mailbox; rooms are lost on restart")
	case config.StoreRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := redis.Connect(ctx, cfg.Redis, cfg.RoomTTL)
		cancel()
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer rdb.Close()
		store = rdb
		logger.WithField("addr", cfg.Redis.Host+":"+cfg.Redis.Port).Info("Redis connection established")
	default:
		logger.WithField("store", cfg.Store).Fatal("STORE must be redis or memory")
	}

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(cfg, store, logger)

	// Start server
	logger.WithField("port", cfg.Port).Info("Starting signaling relay")
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.WithError(err).Fatal("Failed to start server")
	}
}
