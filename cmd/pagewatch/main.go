// Package main wires together the pagewatch capture service.
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

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/watchpoint/pagewatch/internal/api"
	browserchromedp "github.com/watchpoint/pagewatch/internal/browser/chromedp"
	"github.com/watchpoint/pagewatch/internal/capture"
	"github.com/watchpoint/pagewatch/internal/clock/system"
	"github.com/watchpoint/pagewatch/internal/codec"
	"github.com/watchpoint/pagewatch/internal/config"
	"github.com/watchpoint/pagewatch/internal/diff"
	"github.com/watchpoint/pagewatch/internal/dispatcher"
	"github.com/watchpoint/pagewatch/internal/fingerprint"
	"github.com/watchpoint/pagewatch/internal/id/uuid"
	"github.com/watchpoint/pagewatch/internal/logging"
	"github.com/watchpoint/pagewatch/internal/metrics"
	"github.com/watchpoint/pagewatch/internal/ocr"
	"github.com/watchpoint/pagewatch/internal/pii"
	"github.com/watchpoint/pagewatch/internal/probe"
	"github.com/watchpoint/pagewatch/internal/queue"
	queuememory "github.com/watchpoint/pagewatch/internal/queue/memory"
	"github.com/watchpoint/pagewatch/internal/storage/gcs"
	"github.com/watchpoint/pagewatch/internal/storage/local"
	storagememory "github.com/watchpoint/pagewatch/internal/storage/memory"
	storememory "github.com/watchpoint/pagewatch/internal/store/memory"
	storepostgres "github.com/watchpoint/pagewatch/internal/store/postgres"
	"github.com/watchpoint/pagewatch/internal/tags"
	"github.com/watchpoint/pagewatch/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
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
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	browser, err := browserchromedp.New(browserchromedp.Config{
		MaxSessions: cfg.Browser.MaxSessions,
		UserAgent:   cfg.Browser.UserAgent,
		SettleDelay: cfg.SettleDelay(),
		DomainQPS:   cfg.Browser.DomainQPS,
	}, logger)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer browser.Close()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	jobQueue, startQueue, closeQueue, err := buildQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeQueue()

	var recognizer capture.TextRecognizer
	if cfg.OCR.Endpoint != "" {
		recognizer, err = ocr.New(ocr.Config{
			Endpoint: cfg.OCR.Endpoint,
			Timeout:  time.Duration(cfg.OCR.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("build ocr client: %w", err)
		}
	}

	var validatorProbe capture.ValidatorProbe
	if cfg.Probe.Enabled {
		validatorProbe = probe.New(probe.Config{
			UserAgent: cfg.Browser.UserAgent,
			Timeout:   time.Duration(cfg.Probe.TimeoutSeconds) * time.Second,
		})
	}

	clock := system.New()
	idGen := uuid.NewUUIDGenerator()

	orchestrator := capture.NewOrchestrator(
		browser,
		validatorProbe,
		codec.New(),
		recognizer,
		blobs,
		store,
		fingerprint.New(),
		diff.New(cfg.Capture.ChangeThreshold),
		pii.New(),
		tags.New(),
		nil,
		clock,
		idGen,
		capture.OrchestratorConfig{
			RenderTimeout: cfg.RenderTimeout(),
			JPEGQuality:   cfg.Capture.JPEGQuality,
			ThumbWidth:    cfg.Capture.ThumbWidth,
			ThumbHeight:   cfg.Capture.ThumbHeight,
			BlobPrefix:    cfg.Storage.Prefix,
		},
		logger,
	)

	workers := make([]*worker.Worker, 0, cfg.Capture.Workers)
	for i := 0; i < cfg.Capture.Workers; i++ {
		workers = append(workers, worker.New(jobQueue, orchestrator, clock, logger))
	}
	dsp := dispatcher.New(jobQueue, workers)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(store, dsp, idGen, clock, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", serveErr)
		}
	}()
	if startQueue != nil {
		go func() {
			if queueErr := startQueue(ctx); queueErr != nil {
				errCh <- queueErr
			}
		}()
	}
	go func() {
		dsp.Run(ctx)
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return nil
}

func buildStore(ctx context.Context, cfg config.Config) (capture.Store, func(), error) {
	if cfg.DB.DSN == "" {
		return storememory.NewStore(), func() {}, nil
	}
	store, err := storepostgres.New(ctx, storepostgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect store: %w", err)
	}
	return store, store.Close, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (capture.BlobStore, error) {
	if cfg.Storage.GCSBucket != "" {
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		blobs, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("build gcs blob store: %w", err)
		}
		return blobs, nil
	}
	if cfg.Storage.LocalDir != "" {
		blobs, err := local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("build local blob store: %w", err)
		}
		return blobs, nil
	}
	return storagememory.NewBlobStore(), nil
}

func buildQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) (capture.Queue, func(context.Context) error, func(), error) {
	if cfg.PubSub.ProjectID == "" {
		q := queuememory.NewQueue(cfg.Capture.QueueDepth)
		return q, nil, q.Close, nil
	}
	q, err := queue.NewPubSub(ctx, queue.PubSubConfig{
		ProjectID:    cfg.PubSub.ProjectID,
		TopicID:      cfg.PubSub.TopicID,
		Subscription: cfg.PubSub.Subscription,
		Buffer:       cfg.Capture.QueueDepth,
	}, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build pubsub queue: %w", err)
	}
	closeFn := func() {
		if closeErr := q.Close(); closeErr != nil {
			logger.Warn("close pubsub queue", zap.Error(closeErr))
		}
	}
	return q, q.Start, closeFn, nil
}
