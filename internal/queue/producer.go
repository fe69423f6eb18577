package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"mailroom.app/engine/internal/model"
)

// InboundMessage is what the gateway process publishes when a recipient
// writes in.
type InboundMessage struct {
	RecipientID      model.UserID
	RecipientName    string
	AccountCreatedAt *time.Time
	LogicalID        string
	Body             string
	TraceID          *string
	Attempt          int
}

type Producer interface {
	Enqueue(ctx context.Context, msg InboundMessage) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, msg InboundMessage) error {
	attempt := msg.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := map[string]any{
		"task_type":    string(TaskTypeInboundMessage),
		"recipient_id": string(msg.RecipientID),
		"logical_id":   msg.LogicalID,
		"attempt":      attempt,
	}

	if msg.Body != "" {
		fields["body"] = msg.Body
	}
	if msg.RecipientName != "" {
		fields["recipient_name"] = msg.RecipientName
	}
	if msg.AccountCreatedAt != nil {
		fields["account_created_at"] = msg.AccountCreatedAt.Format(time.RFC3339)
	}
	if msg.TraceID != nil && *msg.TraceID != "" {
		fields["trace_id"] = *msg.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue inbound message: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued inbound message", "recipient_id", string(msg.RecipientID), "logical_id", msg.LogicalID, "attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
