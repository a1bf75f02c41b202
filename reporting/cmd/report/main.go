package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/t3/lake/reporting/pkg/insights"
	"github.com/t3/lake/reporting/pkg/metrics"
	"github.com/t3/lake/reporting/pkg/report"
	"github.com/t3/lake/utils/pkg/logger"
	"github.com/t3/lake/warehouse/pkg/clickhouse"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	dateFlag := flag.String("date", "", "report date (YYYY-MM-DD, default yesterday)")
	outDirFlag := flag.String("out-dir", ".", "directory to write report_data_<date>.html to")

	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", clickhouse.DefaultDatabase, "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse (or set CLICKHOUSE_SECURE=true env var)")

	slackChannelFlag := flag.String("slack-channel", "", "Slack channel to post the summary to (or set SLACK_CHANNEL env var)")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if envClickhouseAddr := os.Getenv("CLICKHOUSE_ADDR_TCP"); envClickhouseAddr != "" {
		*clickhouseAddrFlag = envClickhouseAddr
	}
	if envClickhouseDatabase := os.Getenv("CLICKHOUSE_DATABASE"); envClickhouseDatabase != "" {
		*clickhouseDatabaseFlag = envClickhouseDatabase
	}
	if envClickhouseUsername := os.Getenv("CLICKHOUSE_USERNAME"); envClickhouseUsername != "" {
		*clickhouseUsernameFlag = envClickhouseUsername
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	if envSlackChannel := os.Getenv("SLACK_CHANNEL"); envSlackChannel != "" {
		*slackChannelFlag = envSlackChannel
	}
	if *clickhouseAddrFlag == "" {
		return errors.New("--clickhouse-addr is required (or set CLICKHOUSE_ADDR_TCP)")
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := clickhouse.NewClient(ctx, log, clickhouse.ClientConfig{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		Secure:   *clickhouseSecureFlag,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	store, err := insights.NewStore(insights.Config{Logger: log, Client: client})
	if err != nil {
		return err
	}

	hcfg := report.HandlerConfig{Logger: log, Source: store}
	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" && *slackChannelFlag != "" {
		notifier, err := report.NewSlackNotifier(report.SlackConfig{Token: token, Channel: *slackChannelFlag})
		if err != nil {
			return err
		}
		hcfg.Notifier = notifier
	}
	handler, err := report.NewHandler(hcfg)
	if err != nil {
		return err
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		log.Info("report: starting lambda handler", "version", version)
		lambda.StartWithOptions(handler.Handle, lambda.WithContext(ctx))
		return nil
	}

	day := handler.Yesterday()
	if *dateFlag != "" {
		day, err = time.Parse(time.DateOnly, *dateFlag)
		if err != nil {
			return fmt.Errorf("invalid --date (use YYYY-MM-DD): %w", err)
		}
	}

	r, html, err := handler.Generate(ctx, day)
	if err != nil {
		return err
	}
	path := filepath.Join(*outDirFlag, fmt.Sprintf("report_data_%s.html", r.Date.Format(time.DateOnly)))
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	log.Info("report: written", "path", path)
	return nil
}
