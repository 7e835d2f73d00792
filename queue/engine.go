package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/slackmgr/types"
)

// Engine consumes from and publishes to a remote queue [Service].
//
// Create an Engine with [New]. All methods are safe for concurrent use.
type Engine struct {
	service    Service
	opts       *Options
	logger     types.Logger
	resolver   *resolver
	metrics    *metrics
	extender   *messageExtender
	extenderCh chan *extendableMessage

	// ctx scopes the engine's background goroutines. It is cancelled once
	// every worker has ended after a stop.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopping bool
	stopped  bool
	active   int
	stopCh   chan struct{}

	done    chan struct{}
	doneErr error

	listenersMu         sync.RWMutex
	errorListeners      []func(error)
	processingListeners []func(*ProcessingError)
}

// New creates an Engine that talks to service.
//
// Functional options may be passed to override defaults (see With* functions).
// The logger is enriched with a "component" field.
func New(service Service, logger types.Logger, opts ...Option) (*Engine, error) {
	if service == nil {
		return nil, errors.New("queue service cannot be nil")
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	if err := options.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine options: %w", err)
	}

	if options.maxMessageExtension > 0 {
		if _, ok := service.(VisibilityExtender); !ok {
			return nil, errors.New("visibility extension requires a service that implements VisibilityExtender")
		}
	}

	m, err := newMetrics(options.registerer)
	if err != nil {
		return nil, err
	}

	logger = logger.WithField("component", "queue-engine")

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		service:  service,
		opts:     options,
		logger:   logger,
		resolver: newResolver(service, options, logger),
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	if options.maxMessageExtension > 0 {
		e.extender = newMessageExtender(options, logger)
		e.extenderCh = make(chan *extendableMessage, 1000)

		go e.extender.run(ctx, e.extenderCh)
	}

	return e, nil
}

// OnError registers f to be called with every fatal error: a queue name that
// could not be resolved, a worker whose receive calls kept failing, or a
// [Engine.PushAsync] that could not be delivered.
func (e *Engine) OnError(f func(error)) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()

	e.errorListeners = append(e.errorListeners, f)
}

// OnProcessingError registers f to be called whenever a single message fails
// to decode, is rejected by its handler or cannot be deleted.
func (e *Engine) OnProcessingError(f func(*ProcessingError)) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()

	e.processingListeners = append(e.processingListeners, f)
}

// Push JSON-encodes payload and sends it to the named queue. A failed send is
// retried after a fixed delay until it succeeds or fails the configured
// number of consecutive times, in which case an *EscalationError is returned.
//
// A queue name that cannot be resolved is also raised as a fatal engine error.
func (e *Engine) Push(ctx context.Context, queueName string, payload any) error {
	if queueName == "" {
		return ErrMissingQueueName
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	return e.send(ctx, queueName, string(body))
}

// PushAsync is the fire-and-forget variant of [Engine.Push]. It returns once
// the payload has been encoded; a send that exhausts its retries is raised as
// a fatal engine error instead of being returned.
func (e *Engine) PushAsync(ctx context.Context, queueName string, payload any) error {
	if queueName == "" {
		return ErrMissingQueueName
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	go func() {
		err := e.send(ctx, queueName, string(body))

		var escalation *EscalationError
		if errors.As(err, &escalation) && escalation.Op == OpSend {
			e.escalate(err)
		}
	}()

	return nil
}

func (e *Engine) send(ctx context.Context, queueName, body string) error {
	handle, err := e.resolve(ctx, queueName)
	if err != nil {
		return err
	}

	logger := e.logger.WithField("queue_name", queueName)

	onRetry := func(attempt int, err error) {
		logger.WithField("attempt", attempt).Warnf("Failed to send message, retrying in %s: %v", e.opts.retryDelay, err)
	}

	b := newBackoff(e.opts.maxErrors, e.opts.retryDelay)

	_, err = retry(ctx, b, onRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.service.SendMessage(ctx, handle, body)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return &EscalationError{Op: OpSend, Queue: queueName, Attempts: b.attempts(), Err: err}
	}

	logger.Debug("Message sent")

	return nil
}

// resolve resolves queueName and raises resolution escalations as fatal
// engine errors.
func (e *Engine) resolve(ctx context.Context, queueName string) (Handle, error) {
	handle, err := e.resolver.resolve(ctx, queueName)
	if err != nil {
		var escalation *EscalationError
		if errors.As(err, &escalation) {
			e.escalate(err)
		}

		return "", err
	}

	return handle, nil
}

// Pull starts a polling session on the named queue: the queue handle is
// resolved once, then the configured number of workers poll the queue and
// pass every message to handler until [Engine.Stop] is called or ctx is
// cancelled.
//
// Pull validates its arguments and returns immediately; it never waits for
// messages. Cancelling ctx aborts in-flight remote calls and handlers, while
// [Engine.Stop] lets them finish.
func (e *Engine) Pull(ctx context.Context, queueName string, handler Handler, opts ...PollOption) error {
	if queueName == "" {
		return ErrMissingQueueName
	}

	if handler == nil {
		return ErrMissingHandler
	}

	pollOpts, err := resolvePollOptions(opts)
	if err != nil {
		return fmt.Errorf("invalid poll options: %w", err)
	}

	e.mu.Lock()
	if e.stopping {
		e.mu.Unlock()
		return ErrStopping
	}
	e.active += pollOpts.Workers
	e.mu.Unlock()

	e.metrics.activeWorkers.Add(float64(pollOpts.Workers))

	go e.startSession(ctx, queueName, handler, pollOpts)

	return nil
}

func (e *Engine) startSession(ctx context.Context, queueName string, handler Handler, opts PollOptions) {
	logger := e.logger.WithField("queue_name", queueName)

	handle, err := e.resolve(ctx, queueName)
	if err != nil {
		logger.Errorf("Failed to start polling session: %v", err)

		for range opts.Workers {
			e.workerEnded()
		}

		return
	}

	p := &pipeline{
		queue:             queueName,
		handle:            handle,
		handler:           handler,
		raw:               opts.Raw,
		visibilityTimeout: opts.VisibilityTimeout,
		engine:            e,
		logger:            logger,
	}

	logger.WithField("workers", opts.Workers).Info("Polling session started")

	for i := range opts.Workers {
		w := &worker{
			id:       i,
			queue:    queueName,
			handle:   handle,
			opts:     opts,
			pipeline: p,
			engine:   e,
			logger:   logger.WithField("worker", i),
		}

		go w.run(ctx)
	}
}

// Stop asks every worker of every polling session to end once its current
// batch has drained, and waits for the outcome: nil once all workers have
// ended, or the first fatal error raised while the stop is pending. Fatal
// errors raised before Stop was called are only reported to [Engine.OnError]
// listeners. Stop may be called any number of times; every call observes the
// same outcome. If ctx is done first ctx.Err() is returned and the stop stays
// in effect.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()

	if !e.stopping {
		e.stopping = true
		close(e.stopCh)
		e.logger.Info("Stopping")
	}

	finished := e.active == 0 && !e.stopped
	if finished {
		e.stopped = true
	}

	e.mu.Unlock()

	if finished {
		e.finish()
	}

	select {
	case <-e.done:
		return e.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that is closed once the outcome of [Engine.Stop] is
// known: all workers ended, or a fatal error was raised while stopping.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Err returns the fatal error that completed a pending stop, or nil if the
// engine has not completed or completed by a clean stop.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.doneErr
}

// Stopped reports whether every worker has ended after [Engine.Stop].
func (e *Engine) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.stopped
}

func (e *Engine) isStopping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.stopping
}

func (e *Engine) workerEnded() {
	e.mu.Lock()

	e.active--

	finished := e.active == 0 && e.stopping && !e.stopped
	if finished {
		e.stopped = true
	}

	e.mu.Unlock()

	e.metrics.activeWorkers.Dec()

	if finished {
		e.finish()
	}
}

func (e *Engine) finish() {
	e.logger.Info("All workers ended")
	e.cancel()
	e.complete(nil)
}

// complete resolves the engine's outcome. Only the first call has an effect.
func (e *Engine) complete(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case <-e.done:
		return
	default:
	}

	e.doneErr = err
	close(e.done)
}

func (e *Engine) escalate(err error) {
	var escalation *EscalationError
	if errors.As(err, &escalation) {
		e.metrics.escalations.WithLabelValues(escalation.Op).Inc()
	}

	e.logger.Errorf("Fatal queue error: %v", err)

	e.listenersMu.RLock()
	listeners := append([]func(error){}, e.errorListeners...)
	e.listenersMu.RUnlock()

	for _, f := range listeners {
		f(err)
	}

	if e.isStopping() {
		e.complete(err)
	}
}

func (e *Engine) notifyProcessingError(err *ProcessingError) {
	e.listenersMu.RLock()
	listeners := append([]func(*ProcessingError){}, e.processingListeners...)
	e.listenersMu.RUnlock()

	for _, f := range listeners {
		f(err)
	}
}

// track registers msg for visibility extension while its handler runs. It
// returns nil when extension is disabled or the extender is backlogged; the
// handler is never held up waiting for the extender.
func (e *Engine) track(handle Handle, msg Message, visibilityTimeoutSeconds int32) *extendableMessage {
	if e.extender == nil || visibilityTimeoutSeconds <= 0 {
		return nil
	}

	ve, _ := e.service.(VisibilityExtender)

	m := newExtendableMessage(msg.ID, visibilityTimeoutSeconds, func(ctx context.Context) error {
		return ve.ChangeMessageVisibility(ctx, handle, msg.AckToken, visibilityTimeoutSeconds)
	})

	select {
	case e.extenderCh <- m:
		return m
	default:
		e.logger.WithField("message_id", msg.ID).Debug("Message extender backlogged, not extending message visibility")
		return nil
	}
}
