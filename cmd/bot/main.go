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

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"

	"github.com/Proton-105/himera-shop/internal/bot"
	"github.com/Proton-105/himera-shop/internal/catalogcache"
	"github.com/Proton-105/himera-shop/internal/commerce"
	apperrors "github.com/Proton-105/himera-shop/internal/errors"
	"github.com/Proton-105/himera-shop/internal/health"
	"github.com/Proton-105/himera-shop/internal/idempotency"
	"github.com/Proton-105/himera-shop/internal/jobs"
	jobhandlers "github.com/Proton-105/himera-shop/internal/jobs/handlers"
	"github.com/Proton-105/himera-shop/internal/lifecycle"
	"github.com/Proton-105/himera-shop/internal/middleware"
	"github.com/Proton-105/himera-shop/internal/presenter"
	"github.com/Proton-105/himera-shop/internal/ratelimit"
	"github.com/Proton-105/himera-shop/internal/session"
	"github.com/Proton-105/himera-shop/internal/shop"
	"github.com/Proton-105/himera-shop/pkg/config"
	"github.com/Proton-105/himera-shop/pkg/graceful"
	"github.com/Proton-105/himera-shop/pkg/logger"
	"github.com/Proton-105/himera-shop/pkg/metrics"
	appredis "github.com/Proton-105/himera-shop/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "himera-shop: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	level := new(slog.LevelVar)
	log, logCloser := logger.New(cfg.Logger, cfg.Sentry.Enabled, level)
	defer logCloser.Close()
	slog.SetDefault(log)
	config.WatchLogLevel(v, level, log)

	log.Info("starting himera shop bot",
		slog.String("env", cfg.AppEnv),
		slog.String("mode", cfg.Bot.Mode),
		slog.String("http_port", cfg.Server.Port),
	)

	rdb, err := appredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	kv := appredis.NewMetricsClient(rdb)

	sessions := session.NewSessions(session.NewRedisStore(kv, cfg.Session.StateTTL, log), log)
	locker := session.NewRedisLocker(kv, cfg.Session.LockTTL, cfg.Session.LockWait, log)

	backend := commerce.NewClient(commerce.Config{
		BaseURL:      cfg.Commerce.BaseURL,
		AuthURL:      cfg.Commerce.AuthURL,
		ClientID:     cfg.Commerce.ClientID,
		ClientSecret: cfg.Commerce.ClientSecret,
		Timeout:      cfg.Commerce.Timeout,
		RetryReads:   cfg.Commerce.RetryReads,
	}, log)

	var catalog commerce.Catalog = backend
	var cache *catalogcache.Cache
	if cfg.Catalog.CacheEnabled {
		cache = catalogcache.New(backend, kv, cfg.Catalog.CacheTTL, cfg.Catalog.ProductTTL, log)
		catalog = cache
	}

	tb, err := bot.NewTelebot(cfg.Bot, log)
	if err != nil {
		return err
	}

	tg := presenter.NewTelegram(tb, sessions, log)

	engine := shop.NewEngine(shop.Deps{
		Sessions:  sessions,
		Catalog:   catalog,
		Carts:     backend,
		Customers: backend,
		Presenter: tg,
		Log:       log,
	})

	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)
	errHandler.OnError(func(code string, severity apperrors.Severity) {
		metrics.RecordError(code, string(severity))
	})

	idempotencyManager := idempotency.NewManager(idempotency.NewRedisStore(rdb.Client, log), log)

	memoryLimiter := ratelimit.NewMemoryLimiter(log)
	limiter := ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rdb.Client, log), memoryLimiter, cfg.RateLimit.FallbackRatio, log)

	b := bot.New(tb, engine.Handle, bot.Options{
		ErrHandler:     errHandler,
		Notifier:       tg,
		Locker:         locker,
		Idempotency:    idempotencyManager,
		IdempotencyTTL: cfg.Idempotency.TTL,
		RateLimit:      middleware.NewRateLimitMiddleware(limiter, ratelimit.NewRules(cfg.RateLimit), log),
		HandlerTimeout: cfg.Session.HandlerTimeout,
	}, log)

	checker := health.NewChecker(log, 3*time.Second)
	checker.AddCheck("redis", health.NewRedisChecker(kv))
	checker.AddCheck("telegram", health.NewTelegramChecker(tb))
	checker.AddCheck("commerce", health.NewCommerceChecker(backend))
	status := lifecycle.NewStatus(checker, log)

	httpServer := graceful.NewServer(log, &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           lifecycle.NewOpsRouter(log, checker.Handler(), status),
		ReadHeaderTimeout: 5 * time.Second,
	}, cfg.Server.ShutdownTimeout)

	shutdown := lifecycle.NewShutdown(log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go ratelimit.NewCleaner(rdb.Client, memoryLimiter, log, cfg.RateLimit.CleanupInterval).Run(runCtx)
	go idempotency.NewCleaner(rdb.Client, log, cfg.Idempotency.CleanupInterval, cfg.Idempotency.TTL+time.Hour).Run(runCtx)

	if cache != nil {
		stopJobs, err := startJobs(runCtx, cfg, cache, log)
		if err != nil {
			return err
		}
		shutdown.Register("jobs", func(context.Context) error {
			stopJobs()
			return nil
		})
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- httpServer.ListenAndServe(runCtx) }()

	go b.Start(runCtx)
	log.Info("bot started")

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			log.Error("http server stopped", slog.Any("error", err))
		}
	}

	status.Drain()
	log.Info("himera shop bot shutting down")

	shutdown.Register("bot", func(context.Context) error {
		b.Stop()
		return nil
	})
	shutdown.Register("http", httpServer.Shutdown)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	cancel()
	shutdownErr := shutdown.Execute(shutdownCtx)

	// Redis goes last: the bot and jobs release locks through it.
	if err := kv.Close(); err != nil {
		log.Warn("redis close failed", slog.Any("error", err))
	}

	return shutdownErr
}

// startJobs runs the catalog refresh worker and scheduler and queues a first
// refresh. The returned function stops them.
func startJobs(ctx context.Context, cfg *config.Config, cache *catalogcache.Cache, log *slog.Logger) (func(), error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	worker := jobs.NewWorker(redisOpt, jobs.Queues, log)
	worker.RegisterHandler(jobs.TaskTypeCatalogRefresh, jobhandlers.NewCatalogRefreshHandler(cache, log))

	scheduler := jobs.NewScheduler(redisOpt, cfg.Catalog.RefreshCron, log)
	if err := scheduler.RegisterTasks(); err != nil {
		return nil, fmt.Errorf("register scheduled tasks: %w", err)
	}

	manager := jobs.NewManager(redisOpt, log)

	go func() {
		if err := worker.Run(); err != nil {
			log.Error("jobs worker stopped", slog.Any("error", err))
		}
	}()
	go scheduler.Run()

	if err := jobs.EnqueueCatalogRefresh(ctx, manager, "startup"); err != nil {
		log.Warn("initial catalog refresh not queued", slog.Any("error", err))
	}

	return func() {
		scheduler.Shutdown()
		worker.Shutdown()
		if err := manager.Close(); err != nil {
			log.Warn("jobs client close failed", slog.Any("error", err))
		}
	}, nil
}
