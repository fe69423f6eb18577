package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mailroom.app/engine/internal/http/dto"
	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/store"
)

// Logs is the slice of the persistence API the handler needs.
type Logs interface {
	GetUserLogs(ctx context.Context, recipient model.UserID) ([]model.LogRecord, error)
	FindLogs(ctx context.Context, f store.LogFilter) ([]model.LogRecord, error)
}

type LogsHandler struct {
	logs Logs
}

func NewLogsHandler(logs Logs) *LogsHandler {
	return &LogsHandler{logs: logs}
}

func (h *LogsHandler) UserLogs(c *gin.Context) {
	ctx := c.Request.Context()
	recipient := model.UserID(c.Param("recipient_id"))

	records, err := h.logs.GetUserLogs(ctx, recipient)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load user logs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load logs"})
		return
	}

	out := make([]dto.LogRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, dto.FromLogRecord(r))
	}
	c.JSON(http.StatusOK, gin.H{"logs": out})
}

func (h *LogsHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()

	var filter store.LogFilter
	if recipient := c.Query("recipient_id"); recipient != "" {
		r := model.UserID(recipient)
		filter.Recipient = &r
	}
	if open := c.Query("open"); open != "" {
		v, err := strconv.ParseBool(open)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid open filter"})
			return
		}
		filter.Open = &v
	}
	if limit := c.Query("limit"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = int32(v)
	}
	filter.WithMessages = c.Query("with_messages") == "true"

	records, err := h.logs.FindLogs(ctx, filter)
	if err != nil {
		slog.ErrorContext(ctx, "log search failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "log search failed"})
		return
	}

	out := make([]dto.LogRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, dto.FromLogRecord(r))
	}
	c.JSON(http.StatusOK, gin.H{"logs": out})
}
