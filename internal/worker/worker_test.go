package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchpoint/pagewatch/internal/capture"
	queuemem "github.com/watchpoint/pagewatch/internal/queue/memory"
)

type countingProcessor struct {
	mu   sync.Mutex
	jobs []string
	err  error
	done chan struct{}
}

func (p *countingProcessor) Process(_ context.Context, job capture.CaptureJob) error {
	p.mu.Lock()
	p.jobs = append(p.jobs, job.ID)
	p.mu.Unlock()
	if p.done != nil {
		p.done <- struct{}{}
	}
	return p.err
}

func (p *countingProcessor) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.jobs))
	copy(out, p.jobs)
	return out
}

type stubClock struct{}

func (stubClock) Now() time.Time { return time.Unix(0, 0) }

func TestWorkerProcessesJobs(t *testing.T) {
	t.Parallel()

	q := queuemem.NewQueue(4)
	proc := &countingProcessor{done: make(chan struct{}, 4)}
	w := New(q, proc, stubClock{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()

	require.NoError(t, q.Enqueue(ctx, capture.CaptureJob{ID: "job-1"}))
	require.NoError(t, q.Enqueue(ctx, capture.CaptureJob{ID: "job-2"}))

	for i := 0; i < 2; i++ {
		select {
		case <-proc.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for job")
		}
	}
	cancel()
	wg.Wait()

	require.Equal(t, []string{"job-1", "job-2"}, proc.processed())
}

func TestWorkerContinuesAfterProcessorFailure(t *testing.T) {
	t.Parallel()

	q := queuemem.NewQueue(4)
	proc := &countingProcessor{err: errors.New("render crashed"), done: make(chan struct{}, 4)}
	w := New(q, proc, stubClock{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()

	require.NoError(t, q.Enqueue(ctx, capture.CaptureJob{ID: "job-1"}))
	require.NoError(t, q.Enqueue(ctx, capture.CaptureJob{ID: "job-2"}))

	for i := 0; i < 2; i++ {
		select {
		case <-proc.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for job")
		}
	}
	cancel()
	wg.Wait()

	// A failed job never stops the loop.
	require.Len(t, proc.processed(), 2)
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	q := queuemem.NewQueue(1)
	w := New(q, &countingProcessor{}, stubClock{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
