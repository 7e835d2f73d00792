package queue

import (
	"context"
	"sync"

	"github.com/slackmgr/types"
	"golang.org/x/sync/semaphore"
)

// worker is one poller bound to a resolved queue handle. It receives a batch,
// runs every message of the batch through the pipeline concurrently, waits for
// the whole batch to finish and only then receives again. Stop requests are
// observed between batches, never while a batch is in flight.
type worker struct {
	id       int
	queue    string
	handle   Handle
	opts     PollOptions
	pipeline *pipeline
	engine   *Engine
	logger   types.Logger
}

func (w *worker) run(ctx context.Context) {
	defer w.engine.workerEnded()

	w.logger.Debug("Worker started")
	defer w.logger.Debug("Worker ended")

	b := newBackoff(w.opts.MaxErrors, w.opts.Wait)
	params := w.opts.receiveParams()

	for {
		if w.engine.isStopping() || ctx.Err() != nil {
			return
		}

		w.logger.WithField("wait_time", w.opts.WaitTimeSeconds).Debug("Receiving messages")

		messages, err := w.engine.service.ReceiveMessages(ctx, w.handle, params)

		switch b.record(err) {
		case decisionReset:
		case decisionRetry:
			if ctx.Err() != nil {
				return
			}

			w.engine.metrics.receiveErrors.WithLabelValues(w.queue).Inc()
			w.logger.WithField("attempt", b.attempts()).Warnf("Failed to receive messages, retrying in %s: %v", w.opts.Wait, err)

			w.wait(ctx)

			continue
		case decisionEscalate:
			if ctx.Err() != nil {
				return
			}

			w.engine.metrics.receiveErrors.WithLabelValues(w.queue).Inc()
			w.engine.escalate(&EscalationError{Op: OpReceive, Queue: w.queue, Attempts: b.attempts(), Err: err})

			return
		}

		w.dispatch(ctx, messages)

		if w.engine.isStopping() {
			return
		}

		w.wait(ctx)
	}
}

// dispatch processes a batch and returns once every message has completed
// its pipeline.
func (w *worker) dispatch(ctx context.Context, messages []Message) {
	if len(messages) == 0 {
		return
	}

	w.engine.metrics.received.WithLabelValues(w.queue).Add(float64(len(messages)))
	w.logger.WithField("count", len(messages)).Debug("Messages received")

	var sem *semaphore.Weighted
	if w.opts.MaxInFlight > 0 {
		sem = semaphore.NewWeighted(int64(w.opts.MaxInFlight))
	}

	wg := sync.WaitGroup{}

	for _, msg := range messages {
		if sem != nil {
			// Undispatched messages become visible again after their timeout.
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
		}

		wg.Go(func() {
			if sem != nil {
				defer sem.Release(1)
			}

			w.pipeline.process(ctx, msg)
		})
	}

	wg.Wait()
}

// wait sleeps for the configured delay between receive calls. A stop request
// cuts the sleep short.
func (w *worker) wait(ctx context.Context) {
	sleep(ctx, w.opts.Wait, w.engine.stopCh)
}
