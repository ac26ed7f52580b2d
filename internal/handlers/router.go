package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/peerlobby/config"
	"github.com/mossy-p/peerlobby/internal/middleware"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the relay's gin engine
func NewRouter(cfg *config.Config, store MessageStore, logger logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	relay := NewRelay(store, cfg.JWTSecret, cfg.RoomTTL, logger)

	rooms := router.Group("/rooms/:roomId")
	{
		// Room info (public)
		rooms.GET("", relay.GetRoom)

		// Claim a room code (host, at room creation)
		rooms.POST("/claim", relay.ClaimRoom)

		// Mailbox
		rooms.POST("/messages", relay.PostMessage)
		rooms.GET("/messages", relay.GetMessages)

		// Cleanup (requires the room token)
		rooms.DELETE("/messages", middleware.JWTAuth(cfg.JWTSecret), relay.DeleteMessages)
	}

	return router
}
