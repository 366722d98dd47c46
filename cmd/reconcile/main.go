// Command reconcile runs the disaster-impact reconciliation pipeline.
//
// By default it serves health, metrics and run endpoints and runs once at
// start. With -once it runs a single reconciliation, prints the run summary as
// JSON and exits non-zero on failure.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/cyclone-impact-etl/internal/adapter/emdat"
	httpadapter "github.com/couchcryptid/cyclone-impact-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/cyclone-impact-etl/internal/adapter/kafka"
	"github.com/couchcryptid/cyclone-impact-etl/internal/adapter/report"
	"github.com/couchcryptid/cyclone-impact-etl/internal/adapter/store"
	"github.com/couchcryptid/cyclone-impact-etl/internal/config"
	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
	"github.com/couchcryptid/cyclone-impact-etl/internal/observability"
	"github.com/couchcryptid/cyclone-impact-etl/internal/pipeline"
)

func main() {
	once := flag.Bool("once", false, "run a single reconciliation, print its summary and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.SourceDriver, cfg.SourceDSN, logger)
	if err != nil {
		logger.Error("failed to open impact store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var sinks []pipeline.Sink
	if cfg.ReportPath != "" {
		sinks = append(sinks, report.NewWriter(cfg.ReportPath, logger))
		logger.Info("xlsx report enabled", "path", cfg.ReportPath)
	}
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		sinks = append(sinks, publisher)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	}

	p := pipeline.New(
		store.NewLoader(db, logger),
		emdat.NewReader(cfg.ReferencePath, cfg.ReferenceSheet, logger),
		pipeline.Options{
			EventClass:   cfg.EventClass,
			MinStartYear: cfg.MinStartYear,
			Normalizer:   domain.Normalizer{RejectAuxiliaryPrefix: cfg.RejectAuxiliaryGID},
		},
		logger,
		metrics,
		sinks...,
	)

	code := 0
	if *once {
		code = runOnce(ctx, p, logger)
	} else {
		serve(ctx, cfg, p, db, logger)
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	logger.Info("shutdown complete")
	if code != 0 {
		db.Close()
		os.Exit(code)
	}
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, logger *slog.Logger) int {
	result, err := p.Run(ctx, pipeline.RunParams{})
	if err != nil {
		logger.Error("reconciliation failed", "error", err)
		return 1
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Summary()); err != nil {
		logger.Error("write summary", "error", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, db *store.Store, logger *slog.Logger) {
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, httpadapter.ReadinessChecks{db, p}, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if cfg.RunOnStart {
		if err := p.Start(ctx, pipeline.RunParams{}); err != nil {
			logger.Error("initial run not started", "error", err)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("run still in progress at shutdown deadline")
	}
}
