package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"mailroom.app/engine/common/id"
	"mailroom.app/engine/common/logger"
	"mailroom.app/engine/common/otel"
	"mailroom.app/engine/core/config"
	"mailroom.app/engine/core/db"
	"mailroom.app/engine/internal/blocklist"
	"mailroom.app/engine/internal/events"
	"mailroom.app/engine/internal/history"
	"mailroom.app/engine/internal/http/handler"
	"mailroom.app/engine/internal/http/middleware"
	httprouter "mailroom.app/engine/internal/http/router"
	"mailroom.app/engine/internal/notify"
	"mailroom.app/engine/internal/queue"
	"mailroom.app/engine/internal/scheduler"
	"mailroom.app/engine/internal/settings"
	"mailroom.app/engine/internal/store"
	"mailroom.app/engine/internal/thread"
	"mailroom.app/engine/internal/transport"
	"mailroom.app/engine/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "mailroom engine starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
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

	// Settings must be hydrated before sessions or blocks can load; retry
	// the initial pull since the database may still be warming up.
	settingsCache := settings.New(st)
	refreshBackoff := backoff.NewExponentialBackOff()
	refreshBackoff.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(func() error {
		return settingsCache.Refresh(ctx)
	}, backoff.WithContext(refreshBackoff, ctx)); err != nil {
		slog.ErrorContext(ctx, "failed to load settings", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "settings loaded")

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
		BatchSize:    1, // Relay one inbound message at a time, in order
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

	workerErrCh := make(chan error, 2)
	go func() {
		workerErrCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		workerErrCh <- nil
	}()
	slog.InfoContext(ctx, "inbound worker running", "consumer_group", cfg.Queue.RedisGroup)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, manager, blockRegistry, notifyRegistry, settingsCache, st)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	reclaimer.Stop()
	w.Stop()
	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(shutdownCtx, "worker shutdown timeout exceeded")
	case err := <-workerErrCh:
		if err != nil {
			slog.ErrorContext(shutdownCtx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(
	cfg config.Config,
	manager *thread.Manager,
	blocks *blocklist.Registry,
	notifications *notify.Registry,
	settingsCache *settings.Cache,
	st *store.Store,
) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, httprouter.Handlers{
		Sessions:      handler.NewSessionHandler(manager),
		Blocks:        handler.NewBlockHandler(blocks),
		Notifications: handler.NewNotifyHandler(notifications),
		Config:        handler.NewConfigHandler(settingsCache),
		Logs:          handler.NewLogsHandler(st),
	}, httprouter.RouterConfig{
		AdminAPIKey: cfg.AdminAPIKey,
		Ready:       settingsCache.Ready,
	})

	return router
}

const banner = `
███╗   ███╗ █████╗ ██╗██╗     ██████╗  ██████╗  ██████╗ ███╗   ███╗
████╗ ████║██╔══██╗██║██║     ██╔══██╗██╔═══██╗██╔═══██╗████╗ ████║
██╔████╔██║███████║██║██║     ██████╔╝██║   ██║██║   ██║██╔████╔██║
██║╚██╔╝██║██╔══██║██║██║     ██╔══██╗██║   ██║██║   ██║██║╚██╔╝██║
██║ ╚═╝ ██║██║  ██║██║███████╗██║  ██║╚██████╔╝╚██████╔╝██║ ╚═╝ ██║
╚═╝     ╚═╝╚═╝  ╚═╝╚═╝╚══════╝╚═╝  ╚═╝ ╚═════╝  ╚═════╝ ╚═╝     ╚═╝
`
