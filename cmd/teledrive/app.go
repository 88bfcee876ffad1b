package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"teledrive/api"
	"teledrive/pkg/batch"
	"teledrive/pkg/config"
	"teledrive/pkg/metrics"
	"teledrive/pkg/models"
	"teledrive/pkg/progress"
	"teledrive/pkg/providers/googledrive"
	"teledrive/pkg/providers/s3store"
	"teledrive/pkg/providers/telegram"
	"teledrive/pkg/runner"
	"teledrive/pkg/state"
	"teledrive/pkg/transfer"
)

// app is the fully wired service
type app struct {
	cfg          config.Config
	log          *slog.Logger
	source       *telegram.Source
	tracker      *state.Tracker
	reporter     *progress.Reporter
	registry     *prometheus.Registry
	orchestrator *batch.Orchestrator
	controller   *runner.Controller
	credentials  api.CredentialChecker
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, models.Configuration("invalid configuration", err)
	}
	if err := cfg.ValidateSource(); err != nil {
		return nil, models.Configuration("invalid telegram configuration", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	tracker := state.NewTracker(state.NewFileStore(cfg.TrackerFile), log)
	tracker.Load()
	m.SetTracked(tracker.Len())

	sink, creds, err := newSink(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	source, err := telegram.Connect(ctx, telegram.Config{
		AppID:       cfg.TelegramAppID,
		AppHash:     cfg.TelegramAppHash,
		Phone:       cfg.TelegramPhone,
		Password:    cfg.TelegramPassword,
		SessionFile: cfg.TelegramSessionFile,
		BatchSize:   cfg.HistoryBatchSize,
		ChunkSize:   cfg.ChunkSize,
	}, log, nil)
	if err != nil {
		return nil, err
	}

	reporter := progress.NewReporter(cfg.ProgressPeriod)
	pipeline := transfer.NewPipeline(source, sink, tracker, reporter, m, log, transfer.Options{
		ChunkSize:    cfg.ChunkSize,
		MaxSizeBytes: cfg.MaxSizeBytes,
		TempDir:      cfg.TempDir,
		Retry: transfer.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			Base:        cfg.BackoffBase,
			Max:         cfg.BackoffMax,
		},
	})
	orchestrator := batch.NewOrchestrator(source, pipeline, tracker, reporter, m, log, cfg.Container(), cfg.RecentErrors)

	a := &app{
		cfg:          cfg,
		log:          log,
		source:       source,
		tracker:      tracker,
		reporter:     reporter,
		registry:     registry,
		orchestrator: orchestrator,
		controller:   runner.New(orchestrator, tracker, reporter, log, cfg.Chat),
		credentials:  creds,
	}

	limit := "unlimited"
	if cfg.MaxSizeBytes > 0 {
		limit = humanize.Bytes(uint64(cfg.MaxSizeBytes))
	}
	log.Info("Service wired",
		"chat", cfg.Chat,
		"sink", cfg.Sink,
		"container", cfg.Container(),
		"tracked", tracker.Len(),
		"chunk_size", humanize.Bytes(uint64(cfg.ChunkSize)),
		"max_size", limit)
	return a, nil
}

func (a *app) Close() error {
	return a.source.Close()
}

func newSink(ctx context.Context, cfg config.Config, log *slog.Logger) (transfer.Sink, api.CredentialChecker, error) {
	switch cfg.Sink {
	case config.SinkS3:
		resolved := cfg.S3.Resolved()
		client, err := s3store.NewClient(ctx, &cfg.S3, s3store.ClientOptions{MaxRetries: 1}, log)
		if err != nil {
			return nil, nil, models.Configuration("cannot build S3 client", err)
		}
		region := resolved.Region
		if region == "" {
			region = "us-east-1"
		}
		creds := api.CredentialFunc(func() bool {
			return resolved.AccessKeyID != "" || os.Getenv("AWS_ACCESS_KEY_ID") != "" || os.Getenv("AWS_PROFILE") != ""
		})
		return s3store.NewSink(client, cfg.S3Prefix, region, log), creds, nil

	case config.SinkDrive, "":
		creds := googledrive.NewCredentialProvider(cfg.DriveCredentialsFile, cfg.DriveTokenFile, cfg.DriveServiceAccountKey, log)
		sink, err := googledrive.NewSink(ctx, creds, cfg.ChunkSize, log)
		if err != nil {
			return nil, nil, err
		}
		return sink, creds, nil

	default:
		return nil, nil, models.Configuration(fmt.Sprintf("unknown sink %q", cfg.Sink), nil)
	}
}
