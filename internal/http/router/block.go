package router

import (
	"github.com/gin-gonic/gin"

	"mailroom.app/engine/internal/http/handler"
)

func BlockRouter(rg *gin.RouterGroup, h *handler.BlockHandler) {
	rg.GET("", h.List)
	rg.GET("/:user_id", h.GetOne)
	rg.PUT("/:user_id", h.Put)
	rg.DELETE("/:user_id", h.Delete)
}
