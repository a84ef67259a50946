package pipeline

import (
	"context"
	"sync"
	"time"
)

// Worker runs a Scheduler cycle on a fixed interval, the same
// Start/Stop/runWorker shape as internal/feedback and internal/promotion.
type Worker struct {
	scheduler *Scheduler
	interval  time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWorker constructs a Worker over scheduler. A zero or negative
// interval falls back to 1 second, the documented default cycle interval.
func NewWorker(scheduler *Scheduler, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{scheduler: scheduler, interval: interval}
}

// Start launches the periodic cycle loop; a second Start before Stop is a
// no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx)
}

// Stop halts the loop and waits for the in-flight cycle, if any, to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()

	<-doneCh
}

// Running reports whether the loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.scheduler.RunCycle(ctx); err != nil {
				w.scheduler.log.Warn().Err(err).Msg("pipeline cycle failed")
			}
		}
	}
}
