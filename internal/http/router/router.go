package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mailroom.app/engine/internal/http/handler"
)

type RouterConfig struct {
	AdminAPIKey string
	// Ready reports whether the settings cache has completed its first
	// refresh.
	Ready func() bool
}

type Handlers struct {
	Sessions      *handler.SessionHandler
	Blocks        *handler.BlockHandler
	Notifications *handler.NotifyHandler
	Config        *handler.ConfigHandler
	Logs          *handler.LogsHandler
}

func SetupRoutes(router *gin.Engine, h Handlers, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if cfg.Ready != nil && !cfg.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(handler.RequireAdminAPIKey(cfg.AdminAPIKey))
	{
		SessionRouter(v1.Group("/sessions"), h.Sessions, h.Notifications)
		BlockRouter(v1.Group("/blocks"), h.Blocks)
		ConfigRouter(v1.Group("/config"), h.Config)
		LogsRouter(v1.Group("/logs"), h.Logs)
	}
}
