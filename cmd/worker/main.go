package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"mailroom.app/engine/common/id"
	"mailroom.app/engine/common/logger"
	"mailroom.app/engine/core/config"
	"mailroom.app/engine/core/db"
	"mailroom.app/engine/internal/blocklist"
	"mailroom.app/engine/internal/events"
	"mailroom.app/engine/internal/history"
	"mailroom.app/engine/internal/notify"
	"mailroom.app/engine/internal/queue"
	"mailroom.app/engine/internal/scheduler"
	"mailroom.app/engine/internal/settings"
	"mailroom.app/engine/internal/store"
	"mailroom.app/engine/internal/thread"
	"mailroom.app/engine/internal/transport"
	"mailroom.app/engine/internal/worker"
)

// Headless deployment of the relay pipeline: consumes the inbound stream
// and runs the full session engine without the operator API. Run either
// this or the server against a given stream, never both — the engine
// owns its session state in memory.
func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)
	logger.Setup(cfg)

	slog.InfoContext(ctx, "mailroom worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Queue.RedisGroup,
		"consumer_name", cfg.Queue.RedisConsumer)

	// Different node ID than the server so snowflakes never collide
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	st := store.New(database, cfg.LogURL)
	if err := st.EnsureSchema(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure schema", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Queue.RedisStream)

	settingsCache := settings.New(st)
	refreshBackoff := backoff.NewExponentialBackOff()
	refreshBackoff.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(func() error {
		return settingsCache.Refresh(ctx)
	}, backoff.WithContext(refreshBackoff, ctx)); err != nil {
		slog.ErrorContext(ctx, "failed to load settings", "error", err)
		os.Exit(1)
	}

	blockRegistry := blocklist.New(settingsCache)
	if err := blockRegistry.Load(); err != nil {
		slog.ErrorContext(ctx, "failed to load blocklist", "error", err)
		os.Exit(1)
	}

	notifyRegistry := notify.New(settingsCache)
	if err := notifyRegistry.Load(); err != nil {
		slog.ErrorContext(ctx, "failed to load notification registry", "error", err)
		os.Exit(1)
	}

	gateway := transport.NewGateway(transport.GatewayConfig{
		BaseURL:  cfg.Gateway.BaseURL,
		Token:    cfg.Gateway.Token,
		Identity: cfg.Gateway.Identity,
	})

	sched := scheduler.New()
	defer sched.Close()

	index := history.New(gateway, func() int {
		return settingsCache.GetInt("history_scan_limit", history.DefaultScanLimit)
	})

	manager := thread.NewManager(thread.Deps{
		Transport: gateway,
		Presenter: events.NewPlainPresenter(settingsCache),
		Scheduler: sched,
		Notify:    notifyRegistry,
		Index:     index,
		Logs:      st,
		State:     settingsCache,
		Config:    settingsCache,
		Category:  cfg.Gateway.Category,
	})

	if err := manager.Recover(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to recover sessions", "error", err)
		os.Exit(1)
	}
	if err := manager.RecoverClosures(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to recover scheduled closures", "error", err)
		os.Exit(1)
	}

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Queue.RedisStream,
		Group:        cfg.Queue.RedisGroup,
		Consumer:     cfg.Queue.RedisConsumer,
		DLQStream:    cfg.Queue.RedisDLQ,
		BatchSize:    1,
		Block:        5 * time.Second,
		MaxAttempts:  3,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	processor := worker.NewInboundProcessor(manager, blockRegistry, settingsCache)
	w := worker.New(consumer, processor, worker.Config{MaxAttempts: 3})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Queue.RedisStream,
		Group:     cfg.Queue.RedisGroup,
		Consumer:  cfg.Queue.RedisConsumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  1 * time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop reclaimer first (quick), then the worker which may be mid-message
	reclaimer.Stop()
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
███╗   ███╗ █████╗ ██╗██╗     ██████╗  ██████╗  ██████╗ ███╗   ███╗
████╗ ████║██╔══██╗██║██║     ██╔══██╗██╔═══██╗██╔═══██╗████╗ ████║
██╔████╔██║███████║██║██║     ██████╔╝██║   ██║██║   ██║██╔████╔██║
██║╚██╔╝██║██╔══██║██║██║     ██╔══██╗██║   ██║██║   ██║██║╚██╔╝██║
██║ ╚═╝ ██║██║  ██║██║███████╗██║  ██║╚██████╔╝╚██████╔╝██║ ╚═╝ ██║
╚═╝     ╚═╝╚═╝  ╚═╝╚═╝╚══════╝╚═╝  ╚═╝ ╚═════╝  ╚═════╝ ╚═╝     ╚═╝
                                                       worker
`
