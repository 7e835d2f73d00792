package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/slackmgr/types"
)

// deleteTimeout bounds the acknowledge call. The delete runs detached from the
// caller's cancellation so that a handled message is not redelivered only
// because the pull context ended right after the handler finished.
const deleteTimeout = 5 * time.Second

// DoneFunc is called by a [Handler] to report the outcome of processing one
// message. Only the first call has an effect.
type DoneFunc func(err error)

// Handler processes the payload of one message and reports completion by
// calling done, either before returning or later from another goroutine.
// Reporting a nil error deletes the message from the queue; reporting an error
// leaves it for redelivery.
//
// The payload is the JSON-decoded message body (map[string]any, []any,
// string, float64, bool or nil), or the raw body string when the pull was
// started with [WithRaw].
type Handler func(ctx context.Context, payload any, done DoneFunc)

// SyncHandler adapts a function that returns its outcome to a [Handler].
func SyncHandler(f func(ctx context.Context, payload any) error) Handler {
	return func(ctx context.Context, payload any, done DoneFunc) {
		done(f(ctx, payload))
	}
}

// pipeline runs a single message through decode, handle and acknowledge, in
// that order, stopping at the first failing stage.
type pipeline struct {
	queue             string
	handle            Handle
	handler           Handler
	raw               bool
	visibilityTimeout int32
	engine            *Engine
	logger            types.Logger
}

// process never returns an error; failures are reported to the engine as
// *ProcessingError and the message is left in the queue.
func (p *pipeline) process(ctx context.Context, msg Message) {
	logger := p.logger.WithField("message_id", msg.ID)

	var (
		payload any
		err     error
	)

	stage := StageDecode

	for stage != "" {
		switch stage {
		case StageDecode:
			if payload, err = p.decode(msg); err != nil {
				p.fail(logger, msg, stage, err)
				return
			}

			stage = StageHandle
		case StageHandle:
			if err = p.invoke(ctx, msg, payload); err != nil {
				p.fail(logger, msg, stage, err)
				return
			}

			stage = StageAcknowledge
		case StageAcknowledge:
			if err = p.acknowledge(ctx, msg); err != nil {
				p.fail(logger, msg, stage, err)
				return
			}

			stage = ""
		}
	}

	p.engine.metrics.observeProcessed(p.queue, nil)

	logger.Debug("Message processed and deleted")
}

func (p *pipeline) decode(msg Message) (any, error) {
	if p.raw {
		return msg.Body, nil
	}

	var payload any

	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return payload, nil
}

func (p *pipeline) invoke(ctx context.Context, msg Message, payload any) error {
	if tracked := p.engine.track(p.handle, msg, p.visibilityTimeout); tracked != nil {
		defer tracked.Release()
	}

	doneCh := make(chan error, 1)

	var once sync.Once

	done := func(err error) {
		once.Do(func() {
			doneCh <- err
		})
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				done(fmt.Errorf("handler panicked: %v", r))
			}
		}()

		p.handler(ctx, payload, done)
	}()

	// A handler that already reported wins over a concurrent cancellation.
	select {
	case err := <-doneCh:
		return err
	default:
	}

	select {
	case err := <-doneCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeline) acknowledge(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()

	if err := p.engine.service.DeleteMessage(ctx, p.handle, msg.AckToken); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	return nil
}

func (p *pipeline) fail(logger types.Logger, msg Message, stage Stage, err error) {
	perr := &ProcessingError{
		Stage:     stage,
		Queue:     p.queue,
		MessageID: msg.ID,
		Err:       err,
	}

	p.engine.metrics.observeProcessed(p.queue, perr)

	logger.WithField("stage", string(stage)).Errorf("Failed to process message: %v", err)

	p.engine.notifyProcessingError(perr)
}
