package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mailroom.app/engine/common/timefmt"
	"mailroom.app/engine/internal/http/dto"
	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/thread"
	"mailroom.app/engine/internal/transport"
)

// Sessions is the slice of the thread manager the handler needs.
type Sessions interface {
	List() []model.Session
	Get(recipient model.UserID) (*thread.Session, error)
	Open(ctx context.Context, recipient model.UserID, recipientName string, creator model.UserID) (*thread.Session, error)
	Close(ctx context.Context, recipient, closer model.UserID, delay time.Duration, silent bool, message string) error
	CancelClose(ctx context.Context, recipient, canceller model.UserID) error
	Relay(ctx context.Context, recipient model.UserID, in thread.RelayInput) error
	Note(ctx context.Context, recipient, author model.UserID, logicalID, body string) error
	EditMessage(ctx context.Context, recipient model.UserID, logicalID, newBody string) error
	DeleteMessage(ctx context.Context, recipient model.UserID, logicalID string) error
	LogLink(ctx context.Context, recipient model.UserID) (string, error)
}

type SessionHandler struct {
	sessions Sessions
}

func NewSessionHandler(sessions Sessions) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) List(c *gin.Context) {
	sessions := h.sessions.List()
	out := make([]dto.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, dto.FromSession(s))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (h *SessionHandler) GetOne(c *gin.Context) {
	s, err := h.sessions.Get(model.UserID(c.Param("recipient_id")))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open session"})
		return
	}
	c.JSON(http.StatusOK, dto.FromSession(s.Snapshot()))
}

func (h *SessionHandler) Open(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.sessions.Open(ctx, model.UserID(req.RecipientID), req.RecipientName, model.UserID(req.CreatorID))
	if err != nil {
		if errors.Is(err, thread.ErrDuplicateSession) {
			c.JSON(http.StatusConflict, gin.H{"error": "session already open"})
			return
		}
		if errors.Is(err, transport.ErrTransient) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "gateway unavailable"})
			return
		}
		slog.ErrorContext(ctx, "failed to open session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open session"})
		return
	}

	c.JSON(http.StatusCreated, dto.FromSession(s.Snapshot()))
}

func (h *SessionHandler) Close(c *gin.Context) {
	ctx := c.Request.Context()
	recipient := model.UserID(c.Param("recipient_id"))

	var req dto.CloseSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var delay time.Duration
	if req.Delay != "" {
		d, err := timefmt.ParseDelay(req.Delay, time.Now())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unrecognized delay"})
			return
		}
		delay = d
	}

	if err := h.sessions.Close(ctx, recipient, model.UserID(req.CloserID), delay, req.Silent, req.Message); err != nil {
		h.respondSessionError(c, err, "failed to close session")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"scheduled": delay > 0})
}

func (h *SessionHandler) CancelClose(c *gin.Context) {
	ctx := c.Request.Context()
	recipient := model.UserID(c.Param("recipient_id"))

	var req dto.CancelCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.sessions.CancelClose(ctx, recipient, model.UserID(req.CancellerID)); err != nil {
		if errors.Is(err, thread.ErrNotScheduled) {
			c.JSON(http.StatusConflict, gin.H{"error": "no close scheduled"})
			return
		}
		h.respondSessionError(c, err, "failed to cancel close")
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (h *SessionHandler) Reply(c *gin.Context) {
	ctx := c.Request.Context()
	recipient := model.UserID(c.Param("recipient_id"))

	var req dto.ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := model.RoleStaff
	if req.Anonymous {
		role = model.RoleAnonymousStaff
	}

	if err := h.sessions.Relay(ctx, recipient, thread.RelayInput{
		Author:     model.UserID(req.AuthorID),
		AuthorName: req.AuthorName,
		Role:       role,
		LogicalID:  req.LogicalID,
		Body:       req.Body,
	}); err != nil {
		h.respondSessionError(c, err, "failed to relay reply")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"relayed": true})
}

func (h *SessionHandler) Note(c *gin.Context) {
	ctx := c.Request.Context()
	recipient := model.UserID(c.Param("recipient_id"))

	var req dto.NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.sessions.Note(ctx, recipient, model.UserID(req.AuthorID), req.LogicalID, req.Body); err != nil {
		h.respondSessionError(c, err, "failed to post note")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"posted": true})
}

func (h *SessionHandler) EditMessage(c *gin.Context) {
	ctx := c.Request.Context()
	recipient := model.UserID(c.Param("recipient_id"))

	var req dto.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.sessions.EditMessage(ctx, recipient, req.LogicalID, req.Body); err != nil {
		if errors.Is(err, thread.ErrNoEditableMessage) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no editable message"})
			return
		}
		h.respondSessionError(c, err, "failed to edit message")
		return
	}

	c.JSON(http.StatusOK, gin.H{"edited": true})
}

func (h *SessionHandler) DeleteMessage(c *gin.Context) {
	ctx := c.Request.Context()
	recipient := model.UserID(c.Param("recipient_id"))

	var req dto.DeleteMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, http.ErrBodyNotAllowed) {
		// An empty body means "delete the newest staff reply".
		req = dto.DeleteMessageRequest{}
	}

	if err := h.sessions.DeleteMessage(ctx, recipient, req.LogicalID); err != nil {
		if errors.Is(err, thread.ErrNoEditableMessage) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no editable message"})
			return
		}
		h.respondSessionError(c, err, "failed to delete message")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *SessionHandler) LogLink(c *gin.Context) {
	ctx := c.Request.Context()
	recipient := model.UserID(c.Param("recipient_id"))

	url, err := h.sessions.LogLink(ctx, recipient)
	if err != nil {
		h.respondSessionError(c, err, "failed to build log link")
		return
	}

	c.JSON(http.StatusOK, dto.LogLinkResponse{URL: url})
}

func (h *SessionHandler) respondSessionError(c *gin.Context, err error, msg string) {
	ctx := c.Request.Context()

	switch {
	case errors.Is(err, thread.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no open session"})
	case errors.Is(err, transport.ErrTransient):
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway unavailable"})
	default:
		slog.ErrorContext(ctx, msg, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
