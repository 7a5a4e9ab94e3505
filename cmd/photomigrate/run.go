package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/fr0stylo/photomigrate/internal/adapters/httpfetch"
	"github.com/fr0stylo/photomigrate/internal/adapters/objectstore"
	"github.com/fr0stylo/photomigrate/internal/adapters/salesforce"
	"github.com/fr0stylo/photomigrate/internal/adapters/sqlite"
	"github.com/fr0stylo/photomigrate/internal/app/ports"
	"github.com/fr0stylo/photomigrate/internal/app/services"
	"github.com/fr0stylo/photomigrate/internal/config"
	"github.com/fr0stylo/photomigrate/internal/ledger"
	"github.com/fr0stylo/photomigrate/internal/notify"
	"github.com/fr0stylo/photomigrate/internal/observability"
)

const telemetryFlushTimeout = 5 * time.Second

func run(ctx context.Context, flags *pflag.FlagSet, out io.Writer) error {
	envErr := godotenv.Load()

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}

	log := observability.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)
	if envErr != nil {
		log.Debug("No .env file loaded", "error", envErr)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	ctx = observability.WithRunID(ctx, runID)

	shutdown, err := observability.SetupOpenTelemetry(ctx, log, otelConfig(cfg.Observability, runID))
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryFlushTimeout)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Warn("Failed to flush telemetry", "error", err)
		}
	}()

	store, err := objectstore.New(ctx, objectstore.Config{
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		AccessKeyID:     cfg.Storage.AccessKey,
		SecretAccessKey: cfg.Storage.SecretKey,
		Endpoint:        cfg.Storage.Endpoint,
		ForcePathStyle:  cfg.Storage.ForcePathStyle,
	})
	if err != nil {
		return err
	}
	if err := store.Verify(ctx); err != nil {
		log.WarnContext(ctx, "Bucket check failed, uploads will be recorded as failures", "bucket", cfg.Storage.Bucket, "error", err)
	}

	querier := salesforce.New(salesforce.Config{
		Username:      cfg.Salesforce.Username,
		Password:      cfg.Salesforce.Password,
		SecurityToken: cfg.Salesforce.SecurityToken,
		Domain:        cfg.Salesforce.Domain,
		APIVersion:    cfg.Salesforce.APIVersion,
	})
	processor := services.NewRowProcessor(httpfetch.New(cfg.Run.FetchTimeout), store, log)

	csvLedgers := ledger.Factory{Dir: cfg.Run.OutputDir}
	var ledgers ports.LedgerFactory = csvLedgers
	var audit *sqlite.AuditLedgerFactory
	if cfg.Run.AuditDBPath != "" {
		audit = sqlite.NewAuditLedgerFactory(cfg.Run.AuditDBPath, sqlite.RunInfo{
			RunID:     runID,
			InputPath: cfg.Run.InputPath,
			Bucket:    cfg.Storage.Bucket,
		}, sqlite.WithLogger(log))
		ledgers = services.CombineLedgers(csvLedgers, audit)
	}

	metrics, err := observability.NewRunMetrics()
	if err != nil {
		log.Warn("Run metrics disabled", "error", err)
	}

	input, err := os.Open(cfg.Run.InputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer input.Close()

	source, err := ledger.NewRowReader(input)
	if err != nil {
		return fmt.Errorf("read %s: %w", cfg.Run.InputPath, err)
	}

	driver := services.NewBatchDriver(querier, services.IndexQuery{
		Object:          cfg.Salesforce.Object,
		IdentifierField: cfg.Salesforce.IdentifierField,
		Limit:           cfg.Salesforce.QueryLimit,
	}, processor, ledgers,
		services.WithWorkers(cfg.Run.Workers),
		services.WithMetrics(metrics),
		services.WithLogger(log),
	)

	log.InfoContext(ctx, "Starting migration",
		"input", cfg.Run.InputPath,
		"output_dir", cfg.Run.OutputDir,
		"bucket", cfg.Storage.Bucket,
		"workers", cfg.Run.Workers,
	)
	summary, runErr := driver.Run(ctx, runID, source)

	if audit != nil {
		if err := audit.Finalize(context.WithoutCancel(ctx), summary, runErr); err != nil {
			log.ErrorContext(ctx, "Failed to finalize audit run", "path", cfg.Run.AuditDBPath, "error", err)
		}
	}

	files := csvLedgers.Files()
	if cfg.Run.AuditDBPath != "" {
		files = append(files, cfg.Run.AuditDBPath)
	}
	printSummary(out, summary, files, runErr)
	if runErr != nil {
		return runErr
	}

	if cfg.Notify.Enabled() {
		notifier := notify.Client{
			Endpoint: cfg.Notify.Endpoint,
			Token:    cfg.Notify.Token,
			Secret:   cfg.Notify.Secret,
		}
		if err := notifier.NotifyRunCompleted(ctx, summary); err != nil {
			log.WarnContext(ctx, "Run notification failed", "endpoint", cfg.Notify.Endpoint, "error", err)
		}
	}
	return nil
}

func otelConfig(c config.ObservabilityConfig, runID string) observability.OpenTelemetryConfig {
	return observability.OpenTelemetryConfig{
		Enabled:           c.Enabled,
		OTLPEndpoint:      c.OTLPEndpoint,
		OTLPTraceHeaders:  c.OTLPTraceHeaders,
		OTLPMetricHeaders: c.OTLPMetricHeaders,
		ServiceName:       c.ServiceName,
		ServiceVer:        c.ServiceVer,
		RunID:             runID,
		SamplingRatio:     c.SamplingRatio,
		MetricsConsole:    c.MetricsConsole,
		MetricInterval:    c.MetricInterval,
		ConsoleWriter:     os.Stderr,
	}
}
