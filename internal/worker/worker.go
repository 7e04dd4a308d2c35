// Package worker implements the capture pipeline execution loop.
package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/watchpoint/pagewatch/internal/capture"
	"github.com/watchpoint/pagewatch/internal/metrics"
)

// Processor runs the capture pipeline for one job. Implemented by
// capture.Orchestrator.
type Processor interface {
	Process(ctx context.Context, job capture.CaptureJob) error
}

// Worker consumes queue items and executes the capture pipeline. Each job
// runs fully sequentially; concurrency comes from running several workers.
type Worker struct {
	queue     capture.Queue
	processor Processor
	clock     capture.Clock
	logger    *zap.Logger
}

// New constructs a Worker.
func New(queue capture.Queue, processor Processor, clock capture.Clock, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		processor: processor,
		clock:     clock,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job capture.CaptureJob) {
	metrics.WorkerBusy()
	defer metrics.WorkerIdle()

	w.logger.Debug("dequeued capture job",
		zap.String("job_id", job.ID),
		zap.String("url", job.URL),
	)

	start := w.clock.Now()
	err := w.processor.Process(ctx, job)
	elapsed := w.clock.Now().Sub(start)

	if err != nil {
		metrics.ObserveCapture("failed", elapsed)
		w.logger.Error("capture job failed",
			zap.String("job_id", job.ID),
			zap.String("url", job.URL),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveCapture("captured", elapsed)
	w.logger.Debug("capture job complete",
		zap.String("job_id", job.ID),
		zap.Duration("elapsed", elapsed),
	)
}
