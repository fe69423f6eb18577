package router

import (
	"github.com/gin-gonic/gin"

	"mailroom.app/engine/internal/http/handler"
)

func SessionRouter(rg *gin.RouterGroup, h *handler.SessionHandler, n *handler.NotifyHandler) {
	rg.GET("", h.List)
	rg.POST("", h.Open)
	rg.GET("/:recipient_id", h.GetOne)
	rg.POST("/:recipient_id/close", h.Close)
	rg.POST("/:recipient_id/cancel-close", h.CancelClose)
	rg.POST("/:recipient_id/reply", h.Reply)
	rg.POST("/:recipient_id/note", h.Note)
	rg.POST("/:recipient_id/message/edit", h.EditMessage)
	rg.POST("/:recipient_id/message/delete", h.DeleteMessage)
	rg.GET("/:recipient_id/loglink", h.LogLink)

	rg.GET("/:recipient_id/subscribers", n.Subscribers)
	rg.POST("/:recipient_id/notify", n.AddOneShot)
	rg.POST("/:recipient_id/subscribe", n.Subscribe)
	rg.POST("/:recipient_id/unsubscribe", n.Unsubscribe)
}
