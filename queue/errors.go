package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingQueueName is returned by [Engine.Pull], [Engine.Push] and
	// [Engine.PushAsync] when the queue name is empty.
	ErrMissingQueueName = errors.New("missing queue name")

	// ErrMissingHandler is returned by [Engine.Pull] when the handler is nil.
	ErrMissingHandler = errors.New("missing handler")

	// ErrStopping is returned by [Engine.Pull] once [Engine.Stop] has been called.
	ErrStopping = errors.New("engine is stopping")

	// ErrDecode is wrapped by every message body decoding failure.
	ErrDecode = errors.New("failed to decode message body")
)

// Stage is a step of the per-message pipeline.
type Stage string

const (
	StageDecode      Stage = "decode"
	StageHandle      Stage = "handle"
	StageAcknowledge Stage = "acknowledge"
)

// ProcessingError reports a failure to process a single message. It is never
// fatal: the message is left in the queue and becomes visible again once its
// visibility timeout expires.
type ProcessingError struct {
	Stage     Stage
	Queue     string
	MessageID string
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("failed to process message %q from queue %s at stage %s: %v", e.MessageID, e.Queue, e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Operation names carried by [EscalationError].
const (
	OpResolve = "resolve"
	OpReceive = "receive"
	OpSend    = "send"
)

// EscalationError is a fatal, engine-wide error raised when a remote call kept
// failing until its retry ceiling was reached.
type EscalationError struct {
	Op       string
	Queue    string
	Attempts int
	Err      error
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("%s on queue %s failed after %d attempts: %v", e.Op, e.Queue, e.Attempts, e.Err)
}

func (e *EscalationError) Unwrap() error {
	return e.Err
}
