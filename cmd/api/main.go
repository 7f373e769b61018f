package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"example.com/hobbytracker/internal/api"
	"example.com/hobbytracker/internal/config"
	"example.com/hobbytracker/internal/domain"
	"example.com/hobbytracker/internal/logger"
	"example.com/hobbytracker/internal/observability"
	"example.com/hobbytracker/internal/persistence"
	"example.com/hobbytracker/internal/persistence/postgres"
	"example.com/hobbytracker/internal/persistence/sqlite"
	"example.com/hobbytracker/internal/strava"
	httptransport "example.com/hobbytracker/internal/transport/http"
	"example.com/hobbytracker/internal/webhook"
)

type store interface {
	domain.RunRepository
	domain.RecordRepository
	persistence.Migrator
}

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reporter, err := observability.NewReporter(observability.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
	}, zl)
	if err != nil {
		zl.Warn("sentry disabled", zap.Error(err))
		reporter = observability.NoopReporter{}
	}
	defer reporter.Flush(2 * time.Second)

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		zl.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	initializer := persistence.NewInitializer(repo)
	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	err = initializer.Ensure(initCtx)
	initCancel()
	if err != nil {
		zl.Fatal("failed to initialize schema", zap.Error(err))
	}

	upstream := &http.Client{Timeout: cfg.UpstreamTimeout}
	var source domain.ActivitySource
	if readiness := cfg.SyncReadiness(); readiness != nil {
		zl.Error("activity sync disabled", zap.Error(readiness))
		source = domain.UnavailableSource{Err: readiness}
	} else {
		tokens := strava.NewTokenProvider(strava.Credentials{
			ClientID:     cfg.Strava.ClientID,
			ClientSecret: cfg.Strava.ClientSecret,
			RefreshToken: cfg.Strava.RefreshToken,
			TokenURL:     cfg.Strava.TokenURL,
		}, upstream, zl)
		source = strava.NewClient(cfg.Strava.APIBaseURL, tokens, upstream)
	}
	if readiness := cfg.WebhookReadiness(); readiness != nil {
		zl.Warn("webhook verification incomplete", zap.Error(readiness))
	}
	zl.Info("strava credentials",
		zap.String("refresh_token", logger.Redact(cfg.Strava.RefreshToken)),
		zap.String("verify_token", logger.Redact(cfg.Strava.VerifyToken)),
		zap.String("signing_secret", logger.Redact(cfg.Strava.SigningSecret)))

	syncService := domain.NewService(source, repo, domain.WithLogger(zl.Named("sync")))
	records := domain.NewRecordService(repo)

	processorOpts := []webhook.Option{
		webhook.WithLogger(zl.Named("webhook")),
		webhook.WithReporter(reporter),
		webhook.WithTimeout(cfg.WebhookProcessTimeout),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zl.Warn("redis unreachable, deliveries rely on the store constraint", zap.Error(err))
		}
		processorOpts = append(processorOpts, webhook.WithDeduper(webhook.NewRedisDeduper(rdb, webhook.DefaultDedupeTTL)))
	}
	processor := webhook.NewProcessor(syncService, cfg.Strava.SigningSecret, processorOpts...)

	router := api.NewRouter(zl.Named("http"))
	api.NewHandler(syncService, records, processor, cfg.Strava.VerifyToken, zl.Named("api")).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())
	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		router.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	server := httptransport.NewServer(serverCfg, router)
	if err := httptransport.Run(ctx, server, serverCfg.ShutdownTimeout, zl); err != nil {
		zl.Error("http server stopped", zap.Error(err))
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.WebhookProcessTimeout)
	defer drainCancel()
	if err := processor.Wait(drainCtx); err != nil {
		zl.Warn("webhook deliveries still running at exit", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg config.Config) (store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		pool, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStore(pool), pool.Close, nil
	}
}
