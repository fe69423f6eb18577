package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mailroom.app/engine/common/timefmt"
	"mailroom.app/engine/internal/blocklist"
	"mailroom.app/engine/internal/http/dto"
	"mailroom.app/engine/internal/model"
)

// Blocks is the slice of the block registry the handler needs.
type Blocks interface {
	List() map[model.UserID]model.BlockEntry
	IsBlocked(ctx context.Context, user model.UserID) (model.BlockEntry, bool)
	Block(ctx context.Context, user model.UserID, reason string, expiresAt *time.Time) error
	Unblock(ctx context.Context, user model.UserID) (model.BlockEntry, error)
}

type BlockHandler struct {
	blocks Blocks
}

func NewBlockHandler(blocks Blocks) *BlockHandler {
	return &BlockHandler{blocks: blocks}
}

func (h *BlockHandler) List(c *gin.Context) {
	entries := h.blocks.List()
	out := make([]dto.BlockEntryResponse, 0, len(entries))
	for user, entry := range entries {
		out = append(out, dto.FromBlockEntry(user, entry))
	}
	c.JSON(http.StatusOK, gin.H{"blocks": out})
}

func (h *BlockHandler) GetOne(c *gin.Context) {
	ctx := c.Request.Context()
	user := model.UserID(c.Param("user_id"))

	entry, blocked := h.blocks.IsBlocked(ctx, user)
	if !blocked {
		c.JSON(http.StatusNotFound, gin.H{"error": "user is not blocked"})
		return
	}
	c.JSON(http.StatusOK, dto.FromBlockEntry(user, entry))
}

func (h *BlockHandler) Put(c *gin.Context) {
	ctx := c.Request.Context()
	user := model.UserID(c.Param("user_id"))

	var req dto.BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var expiresAt *time.Time
	if req.Until != "" {
		t, err := timefmt.ParseFuture(req.Until, time.Now())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unrecognized expiry"})
			return
		}
		expiresAt = &t
	}

	if err := h.blocks.Block(ctx, user, req.Reason, expiresAt); err != nil {
		switch {
		case errors.Is(err, blocklist.ErrReservedReason):
			c.JSON(http.StatusBadRequest, gin.H{"error": "reason uses a reserved marker"})
		case errors.Is(err, blocklist.ErrAlreadyBlocked):
			c.JSON(http.StatusConflict, gin.H{"error": "user is already blocked"})
		default:
			slog.ErrorContext(ctx, "failed to block user", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to block user"})
		}
		return
	}

	entry, _ := h.blocks.IsBlocked(ctx, user)
	c.JSON(http.StatusCreated, dto.FromBlockEntry(user, entry))
}

func (h *BlockHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	user := model.UserID(c.Param("user_id"))

	entry, err := h.blocks.Unblock(ctx, user)
	if err != nil {
		if errors.Is(err, blocklist.ErrNotBlocked) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user is not blocked"})
			return
		}
		slog.ErrorContext(ctx, "failed to unblock user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unblock user"})
		return
	}

	c.JSON(http.StatusOK, dto.UnblockResponse{
		UserID:      string(user),
		WasInternal: entry.Internal,
		Reason:      entry.Reason,
	})
}
