package messaging

import (
	"context"
	"time"

	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"
)

// Worker runs the due-message dispatch sweep on a fixed interval
type Worker struct {
	dispatcher *Dispatcher
	logger     *observability.Logger
	stopChan   chan bool
	interval   time.Duration
	batchLimit int
}

// NewWorker creates a new dispatch worker
func NewWorker(dispatcher *Dispatcher, logger *observability.Logger, interval time.Duration, batchLimit int) *Worker {
	return &Worker{
		dispatcher: dispatcher,
		logger:     logger,
		stopChan:   make(chan bool),
		interval:   interval,
		batchLimit: batchLimit,
	}
}

// Start begins the background worker
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info(ctx, "Starting message dispatch worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Sweep immediately on start
	w.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)
		case <-w.stopChan:
			w.logger.Info(ctx, "Stopping message dispatch worker")
			return
		case <-ctx.Done():
			w.logger.Info(ctx, "Context cancelled, stopping message dispatch worker")
			return
		}
	}
}

// Stop stops the background worker
func (w *Worker) Stop() {
	close(w.stopChan)
}

func (w *Worker) sweep(ctx context.Context) {
	if _, err := w.dispatcher.ProcessDue(ctx, w.batchLimit); err != nil {
		w.logger.Error(ctx, "failed to process due messages", err)
	}
}
