package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/marinova/oceanmeter/pkg/async"
	"github.com/marinova/oceanmeter/pkg/config"
	"github.com/marinova/oceanmeter/pkg/ledger"
	"github.com/marinova/oceanmeter/pkg/reports"
)

const exportTimeout = 10 * time.Minute

var (
	envFile = flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	runOnce = flag.Bool("run-once", false, "Export one month and exit")
	month   = flag.String("month", "", "Month to export (YYYY-MM). Defaults to the previous month. Only used with --run-once")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithError(err).Warnf("Failed to load %s", *envFile)
	}

	cfg := config.Load()
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel.String()); err == nil {
		logger.SetLevel(level)
	}
	if err := cfg.ValidateReports(); err != nil {
		logger.WithError(err).Fatal("Invalid report configuration")
	}

	ctx := context.Background()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer store.DB().Close()

	sink, err := reports.NewS3Sink(ctx, reports.S3Config{
		Bucket:       cfg.Reports.S3Bucket,
		Region:       cfg.Reports.S3Region,
		Endpoint:     cfg.Reports.S3Endpoint,
		AccessKey:    cfg.Reports.S3AccessKey,
		SecretKey:    cfg.Reports.S3SecretKey,
		UsePathStyle: cfg.Reports.S3UsePathStyle,
		Prefix:       cfg.Reports.Prefix,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create S3 sink")
	}

	exporter := reports.NewExporter(reports.NewStoreAggregator(store), sink)

	if *runOnce {
		target := reports.PreviousMonth(time.Now())
		if *month != "" {
			target, err = reports.ParseMonth(*month)
			if err != nil {
				logger.WithError(err).Fatal("Invalid month")
			}
		}
		if err := export(ctx, exporter, logger, target); err != nil {
			logger.WithError(err).Fatal("Export failed")
		}
		return
	}

	c := cron.New(cron.WithLocation(time.UTC))
	_, err = c.AddFunc(cfg.Reports.Schedule, func() {
		target := reports.PreviousMonth(time.Now())
		<-async.SafeGo(ctx, exportTimeout, "usage report "+target.Format(reports.MonthLayout), logger,
			func(ctx context.Context) error {
				return export(ctx, exporter, logger, target)
			})
	})
	if err != nil {
		logger.WithError(err).WithField("schedule", cfg.Reports.Schedule).Fatal("Failed to schedule usage report")
	}

	c.Start()
	logger.WithField("schedule", cfg.Reports.Schedule).Info("Usage report exporter started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	stopped := c.Stop()
	<-stopped.Done()
	logger.Info("Usage report exporter stopped")
}

func export(ctx context.Context, exporter *reports.Exporter, logger *logrus.Logger, target time.Time) error {
	started := time.Now()
	logger.WithField("month", target.Format(reports.MonthLayout)).Info("Starting usage report")

	report, location, err := exporter.Export(ctx, target)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"month":         report.Month,
		"report_id":     report.ID,
		"total_charges": report.TotalCharges,
		"location":      location,
		"duration_ms":   time.Since(started).Milliseconds(),
	}).Info("Usage report exported")
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (*ledger.SQLStore, error) {
	if cfg.Type == config.StoragePostgres {
		return ledger.OpenPostgres(ctx, cfg.PostgresURL, cfg.PostgresMaxConns)
	}
	return ledger.OpenSQLite(ctx, cfg.SQLitePath)
}
