package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/t3/lake/pipeline/pkg/config"
	"github.com/t3/lake/pipeline/pkg/load"
	"github.com/t3/lake/pipeline/pkg/metrics"
	"github.com/t3/lake/pipeline/pkg/pipeline"
	"github.com/t3/lake/pipeline/pkg/source"
	"github.com/t3/lake/pipeline/pkg/watermark"
	"github.com/t3/lake/utils/pkg/logger"
	"github.com/t3/lake/warehouse/pkg/clickhouse"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const metricsJob = "t3_pipeline"

func main() {
	if err := run(); err != nil {
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(cfg.Verbose)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Release:     version,
			Environment: cfg.Environment,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Migrate != "" {
		return clickhouse.Migrate(ctx, log, migrationConfig(cfg), cfg.Migrate)
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	extractor, err := source.NewExtractor(source.ExtractorConfig{
		Logger: log,
		Source: cfg.Source,
	})
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}

	chClient, reader, err := newWatermarkReader(log, cfg.ClickHouse)
	if err != nil {
		return err
	}
	defer chClient.Close()

	pcfg := pipeline.Config{
		Logger:    log,
		Extractor: extractor,
		Watermark: reader,
		Rules:     cfg.Rules,
		DryRun:    cfg.DryRun,
	}
	if !cfg.DryRun {
		store, err := load.NewS3Store(ctx, cfg.S3)
		if err != nil {
			return err
		}
		loader, err := load.NewLoader(load.Config{
			Logger:      log,
			Store:       store,
			Prefix:      cfg.Prefix,
			Concurrency: cfg.UploadConcurrency,
		})
		if err != nil {
			return fmt.Errorf("failed to create loader: %w", err)
		}
		pcfg.Loader = loader
	}

	p, err := pipeline.New(pcfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	log.Info("pipeline: starting",
		"version", version,
		"commit", commit,
		"dry_run", cfg.DryRun,
		"interval", cfg.Interval,
		"rules", cfg.Rules.String(),
	)

	if cfg.Interval > 0 {
		return p.RunEvery(ctx, cfg.Interval)
	}

	_, runErr := p.Run(ctx)
	pushMetrics(log, cfg.PushgatewayURL)
	return runErr
}

func pushMetrics(log *slog.Logger, url string) {
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Push(ctx, url, metricsJob); err != nil {
		log.Warn("pipeline: failed to push metrics", "error", err)
	}
}

func migrationConfig(cfg *config.Config) clickhouse.MigrationConfig {
	mcfg := clickhouse.MigrationConfig{
		Addr:     cfg.ClickHouse.Addr,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
		Secure:   cfg.ClickHouse.Secure,
	}
	if cfg.LakeURL != "" {
		mcfg.Storage = &clickhouse.LakeStorage{
			BaseURL:         cfg.LakeURL,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		}
	}
	return mcfg
}

// newWatermarkReader does not dial ClickHouse. An unreachable warehouse makes the lookup fail,
// which falls back to a full extract instead of aborting the run.
func newWatermarkReader(log *slog.Logger, cfg clickhouse.ClientConfig) (clickhouse.Client, *watermark.Reader, error) {
	chClient, err := clickhouse.OpenClient(log, cfg)
	if err != nil {
		return nil, nil, err
	}
	reader, err := watermark.NewReader(watermark.ReaderConfig{
		Logger: log,
		Client: chClient,
	})
	if err != nil {
		chClient.Close()
		return nil, nil, fmt.Errorf("failed to create watermark reader: %w", err)
	}
	return chClient, reader, nil
}
