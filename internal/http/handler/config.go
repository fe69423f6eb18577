package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"mailroom.app/engine/internal/http/dto"
	"mailroom.app/engine/internal/settings"
)

// Config is the slice of the settings cache the handler needs.
type Config interface {
	UserVisible() map[string]string
	Set(ctx context.Context, key, value string) (string, error)
	Refresh(ctx context.Context) error
}

type ConfigHandler struct {
	config Config
}

func NewConfigHandler(config Config) *ConfigHandler {
	return &ConfigHandler{config: config}
}

func (h *ConfigHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"config": h.config.UserVisible()})
}

func (h *ConfigHandler) Set(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")

	var req dto.SetConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	display, err := h.config.Set(ctx, key, req.Value)
	if err != nil {
		switch {
		case errors.Is(err, settings.ErrUnknownKey):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown config key"})
		case errors.Is(err, settings.ErrNotEditable):
			c.JSON(http.StatusForbidden, gin.H{"error": "key is not user-editable"})
		case errors.Is(err, settings.ErrInvalidConfig):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			slog.ErrorContext(ctx, "failed to set config", "error", err, "key", key)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set config"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.SetConfigResponse{Key: key, Value: display})
}

func (h *ConfigHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.config.Refresh(ctx); err != nil {
		slog.ErrorContext(ctx, "config refresh failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "config refresh failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"refreshed": true})
}

func (h *ConfigHandler) Schema(c *gin.Context) {
	c.JSON(http.StatusOK, settings.Schema())
}
