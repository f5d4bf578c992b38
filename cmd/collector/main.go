package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"rss_collector/internal/api"
	"rss_collector/internal/config"
	"rss_collector/internal/notifier"
	"rss_collector/internal/publisher"
	"rss_collector/internal/registry"
	"rss_collector/internal/scheduler"
	"rss_collector/internal/service"
	"rss_collector/internal/source/rss"
	"rss_collector/internal/storage/postgres"
	"rss_collector/internal/storage/redis"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single collection, send the notification and exit")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		logger.Error("failed to load timezone", "timezone", cfg.Schedule.Timezone, "error", err)
		os.Exit(1)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	itemStore := postgres.NewItemStore(db)
	sourceStore := postgres.NewSourceStore(db)
	keywordStore := postgres.NewKeywordStore(db)
	txManager := postgres.NewTransactionManager(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed, registry cache and run lock degrade", "addr", cfg.Redis.Addr, "error", err)
	}
	pingCancel()

	registryCache := redis.NewRegistryCache(rdb, sourceStore, keywordStore, cfg.Registry.CacheTTL, logger)
	runLock := redis.NewRunLock(rdb, cfg.Lock.Key)

	if cfg.Registry.SeedFile != "" {
		seed, err := registry.LoadSeed(cfg.Registry.SeedFile)
		if err != nil {
			logger.Error("failed to load registry seed", "path", cfg.Registry.SeedFile, "error", err)
			os.Exit(1)
		}
		importer := registry.NewImporter(txManager, sourceStore, keywordStore, registryCache, logger)
		if err := importer.Import(ctx, seed); err != nil {
			logger.Error("failed to import registry seed", "error", err)
			os.Exit(1)
		}
	}

	var itemPublisher service.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		itemPublisher = rabbitMQ
	}

	fetcher := rss.New(rss.Config{
		Timeout:        cfg.Collection.FetchTimeout,
		UserAgent:      cfg.Collection.UserAgent,
		MaxAttempts:    cfg.Collection.Retry.MaxAttempts,
		InitialBackoff: cfg.Collection.Retry.InitialBackoff,
		MaxBackoff:     cfg.Collection.Retry.MaxBackoff,
	}, logger)

	collectService := service.NewCollectService(
		fetcher,
		itemStore,
		registryCache,
		registryCache,
		itemPublisher,
		logger,
		cfg.Collection,
	)

	slackNotifier := notifier.NewSlack(notifier.Config{
		WebhookURL: cfg.Notifier.WebhookURL,
		Timeout:    cfg.Notifier.Timeout,
		Location:   loc,
	}, logger)

	sched, err := scheduler.New(scheduler.Config{
		Cron:         cfg.Schedule.Cron,
		CacheRefresh: cfg.Registry.CacheRefresh,
		Location:     loc,
		LockTTL:      cfg.Lock.TTL(cfg.Collection.RunBudget),
	}, collectService, slackNotifier, runLock, registryCache, logger)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	if *once {
		report, err := sched.Trigger(ctx)
		if err != nil {
			logger.Error("collection failed", "error", err)
			os.Exit(1)
		}
		logger.Info("collection finished", "message", report.Message)
		return
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(api.NewServer(sched, itemStore, registryCache, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sched.Start()
	logger.Info("starting rss collector",
		"addr", cfg.HTTP.Addr,
		"cron", cfg.Schedule.Cron,
		"timezone", cfg.Schedule.Timezone,
		"next_run", sched.Next(),
		"run_budget", cfg.Collection.RunBudget,
		"filter_mode", cfg.Collection.FilterMode,
	)

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("http server error", "error", err)
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler did not stop in time", "error", err)
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
