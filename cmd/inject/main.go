// Dev tool: publishes a synthetic inbound message onto the stream so the
// pipeline can be exercised without a live gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"mailroom.app/engine/common/id"
	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/queue"
)

func main() {
	_ = godotenv.Load()

	var (
		recipientID   = flag.String("recipient", "", "recipient user id (required)")
		recipientName = flag.String("name", "", "recipient display name")
		body          = flag.String("body", "hello from inject", "message body")
		accountAge    = flag.Duration("account-age", 0, "simulated account age, e.g. 1h (0 = omit)")
		redisURL      = flag.String("redis", getEnv("REDIS_URL", "redis://localhost:6379/0"), "redis url")
		stream        = flag.String("stream", getEnv("REDIS_STREAM", "mailroom_inbound"), "inbound stream")
	)
	flag.Parse()

	if *recipientID == "" {
		fmt.Fprintln(os.Stderr, "usage: inject -recipient <user_id> [-body ...] [-name ...] [-account-age 1h]")
		os.Exit(2)
	}

	if err := id.Init(3); err != nil {
		fmt.Fprintln(os.Stderr, "id init:", err)
		os.Exit(1)
	}

	opts, err := redis.ParseURL(*redisURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse redis url:", err)
		os.Exit(1)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := queue.InboundMessage{
		RecipientID:   model.UserID(*recipientID),
		RecipientName: *recipientName,
		LogicalID:     id.NewKey(),
		Body:          *body,
	}
	if *accountAge > 0 {
		created := time.Now().Add(-*accountAge)
		msg.AccountCreatedAt = &created
	}

	producer := queue.NewRedisProducer(client, *stream, nil)
	defer producer.Close()

	if err := producer.Enqueue(ctx, msg); err != nil {
		fmt.Fprintln(os.Stderr, "enqueue:", err)
		os.Exit(1)
	}
	fmt.Printf("enqueued %s for %s on %s\n", msg.LogicalID, msg.RecipientID, *stream)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
