package router

import (
	"github.com/gin-gonic/gin"

	"mailroom.app/engine/internal/http/handler"
)

func LogsRouter(rg *gin.RouterGroup, h *handler.LogsHandler) {
	rg.GET("", h.Search)
	rg.GET("/user/:recipient_id", h.UserLogs)
}
