package router

import (
	"github.com/gin-gonic/gin"

	"mailroom.app/engine/internal/http/handler"
)

func ConfigRouter(rg *gin.RouterGroup, h *handler.ConfigHandler) {
	rg.GET("", h.List)
	rg.GET("/schema", h.Schema)
	rg.POST("/refresh", h.Refresh)
	rg.PUT("/:key", h.Set)
}
