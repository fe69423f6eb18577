package dto

import (
	"time"

	"mailroom.app/engine/internal/model"
)

type LogMessageResponse struct {
	LogicalID string    `json:"logical_id"`
	AuthorID  string    `json:"author_id"`
	Role      string    `json:"role"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type LogRecordResponse struct {
	Key          string               `json:"key"`
	ChannelID    string               `json:"channel_id"`
	Recipient    string               `json:"recipient_id"`
	Creator      string               `json:"creator_id"`
	Open         bool                 `json:"open"`
	CreatedAt    time.Time            `json:"created_at"`
	ClosedAt     *time.Time           `json:"closed_at,omitempty"`
	CloserID     *string              `json:"closer_id,omitempty"`
	CloseMessage *string              `json:"close_message,omitempty"`
	Messages     []LogMessageResponse `json:"messages,omitempty"`
}

func FromLogRecord(r model.LogRecord) LogRecordResponse {
	out := LogRecordResponse{
		Key:          r.Key,
		ChannelID:    string(r.ChannelID),
		Recipient:    string(r.Recipient),
		Creator:      string(r.Creator),
		Open:         r.Open,
		CreatedAt:    r.CreatedAt,
		ClosedAt:     r.ClosedAt,
		CloseMessage: r.CloseMessage,
	}
	if r.CloserID != nil {
		closer := string(*r.CloserID)
		out.CloserID = &closer
	}
	for _, m := range r.Messages {
		out.Messages = append(out.Messages, LogMessageResponse{
			LogicalID: m.LogicalID,
			AuthorID:  string(m.AuthorID),
			Role:      string(m.Role),
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}
