package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"mailroom.app/engine/internal/http/dto"
	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/notify"
)

// Notifications is the slice of the notification registry the handler
// needs.
type Notifications interface {
	AddOneShot(ctx context.Context, session model.UserID, target string) error
	AddSubscription(ctx context.Context, session model.UserID, target string) error
	RemoveSubscription(ctx context.Context, session model.UserID, target string) error
	Subscribers(session model.UserID) []string
}

type NotifyHandler struct {
	notifications Notifications
}

func NewNotifyHandler(notifications Notifications) *NotifyHandler {
	return &NotifyHandler{notifications: notifications}
}

func (h *NotifyHandler) AddOneShot(c *gin.Context) {
	h.add(c, h.notifications.AddOneShot)
}

func (h *NotifyHandler) Subscribe(c *gin.Context) {
	h.add(c, h.notifications.AddSubscription)
}

func (h *NotifyHandler) add(c *gin.Context, fn func(ctx context.Context, session model.UserID, target string) error) {
	ctx := c.Request.Context()
	session := model.UserID(c.Param("recipient_id"))

	var req dto.NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := fn(ctx, session, req.Target); err != nil {
		if errors.Is(err, notify.ErrAlreadyPresent) {
			c.JSON(http.StatusConflict, gin.H{"error": "target already registered"})
			return
		}
		slog.ErrorContext(ctx, "failed to register notification", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register notification"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"registered": true})
}

func (h *NotifyHandler) Unsubscribe(c *gin.Context) {
	ctx := c.Request.Context()
	session := model.UserID(c.Param("recipient_id"))

	var req dto.NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.notifications.RemoveSubscription(ctx, session, req.Target); err != nil {
		if errors.Is(err, notify.ErrNotSubscribed) {
			c.JSON(http.StatusNotFound, gin.H{"error": "target is not subscribed"})
			return
		}
		slog.ErrorContext(ctx, "failed to unsubscribe", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unsubscribe"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": true})
}

func (h *NotifyHandler) Subscribers(c *gin.Context) {
	session := model.UserID(c.Param("recipient_id"))
	c.JSON(http.StatusOK, dto.SubscribersResponse{
		SessionID: string(session),
		Targets:   h.notifications.Subscribers(session),
	})
}
