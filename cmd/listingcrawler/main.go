// Package main wires together the listing crawler service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/api"
	"github.com/JakeFAU/listing-crawler/internal/clock/system"
	"github.com/JakeFAU/listing-crawler/internal/config"
	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/extract/keejob"
	"github.com/JakeFAU/listing-crawler/internal/extract/mosaique"
	collyfetcher "github.com/JakeFAU/listing-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/listing-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/listing-crawler/internal/id/uuid"
	"github.com/JakeFAU/listing-crawler/internal/logging"
	"github.com/JakeFAU/listing-crawler/internal/metrics"
	"github.com/JakeFAU/listing-crawler/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/listing-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/listing-crawler/internal/publisher/pubsub"
	gcsarchive "github.com/JakeFAU/listing-crawler/internal/storage/gcs"
	localarchive "github.com/JakeFAU/listing-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/listing-crawler/internal/storage/memory"
	"github.com/JakeFAU/listing-crawler/internal/storage/postgres"
	"github.com/JakeFAU/listing-crawler/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("listing crawler exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	handlerWrap := func(h http.Handler) http.Handler { return h }
	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName, logger.Named("telemetry"))
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tracer provider shutdown failed", zap.Error(err))
			}
		}()
		handlerWrap = func(h http.Handler) http.Handler {
			return otelhttp.NewHandler(h, "listing-crawler")
		}
		logger.Info("tracing enabled", zap.String("service_name", cfg.Tracing.ServiceName))
	}

	store, ready, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	archive, closeArchive, err := buildArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeArchive()

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	clock := system.New()
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.RequestsPerSecond,
		DefaultBurst: cfg.Crawler.Burst,
	})
	staticFetcher := ratelimit.NewFetcher(collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		Timeout:       cfg.FetchTimeout(),
		RespectRobots: cfg.Crawler.RespectRobots,
	}), limiter)

	driverOpts := []crawler.DriverOption{crawler.WithDriverClock(clock)}
	if archive != nil {
		driverOpts = append(driverOpts, crawler.WithArchive(archive))
	}
	jobsDriver := crawler.NewDriver(
		cfg.JobsSource(),
		staticFetcher,
		keejob.New(cfg.Jobs.Origin, logger.Named("keejob")),
		logger.Named("driver"),
		driverOpts...,
	)

	var news crawler.NewsScraper
	if cfg.News.Enabled {
		var renderer crawler.Fetcher = headlessfetcher.NewNoop()
		if cfg.Headless.Enabled {
			chrome, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
				UserAgent:         cfg.Crawler.UserAgent,
				WaitTimeout:       time.Duration(cfg.Headless.WaitTimeoutSeconds) * time.Second,
				SettleDelay:       time.Duration(cfg.Headless.SettleMillis) * time.Millisecond,
				NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSeconds) * time.Second,
			})
			if err != nil {
				logger.Warn("headless fetcher init failed", zap.Error(err))
			} else {
				defer chrome.Close()
				renderer = ratelimit.NewFetcher(chrome, limiter)
			}
		} else {
			logger.Warn("news enabled without headless rendering; news scrapes will find nothing")
		}
		news = mosaique.NewScraper(
			cfg.NewsSource(),
			renderer,
			mosaique.New(cfg.News.Origin, clock, logger.Named("mosaique")),
			logger.Named("news"),
		)
	}

	writerOpts := []crawler.WriterOption{crawler.WithClock(clock)}
	if publisher != nil {
		writerOpts = append(writerOpts, crawler.WithPublisher(publisher, cfg.PubSub.TopicName))
	}
	writer := crawler.NewWriter(store, logger.Named("writer"), writerOpts...)
	service := crawler.NewService(jobsDriver, news, store, writer, uuid.New(), logger.Named("service"))

	apiServer := api.NewServer(service, store, api.Options{
		RequestTimeout:  cfg.RequestTimeout(),
		DefaultMaxPages: cfg.Jobs.MaxPages,
		Ready:           ready,
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handlerWrap(apiServer.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.RecordStore, func(context.Context) error, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Info("using in-memory record store")
		return memorystorage.NewRecordStore(), nil, func() {}, nil
	}
	store, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open postgres store: %w", err)
	}
	if cfg.DB.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	logger.Info("using postgres record store", zap.String("table", cfg.DB.Table))
	return store, store.Ping, store.Close, nil
}

func buildArchive(ctx context.Context, cfg config.Config) (crawler.Archive, func(), error) {
	switch cfg.Archive.Backend {
	case "memory":
		return memorystorage.NewArchive(), func() {}, nil
	case "local":
		archive, err := localarchive.New(localarchive.Config{BaseDir: cfg.Archive.BaseDir})
		if err != nil {
			return nil, nil, fmt.Errorf("open local archive: %w", err)
		}
		return archive, func() {}, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		archive, err := gcsarchive.New(client, gcsarchive.Config{Bucket: cfg.Archive.Bucket, Prefix: cfg.Archive.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("open gcs archive: %w", err)
		}
		return archive, func() { _ = client.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (crawler.Publisher, func(), error) {
	switch cfg.PubSub.Backend {
	case "memory":
		return memorypublisher.New(), func() {}, nil
	case "gcp":
		client, err := pubsubpublisher.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("create pubsub client: %w", err)
		}
		publisher := pubsubpublisher.New(client)
		return publisher, func() { _ = publisher.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}
