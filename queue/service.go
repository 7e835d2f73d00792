package queue

import "context"

// Handle is the service-specific address of a queue, for SQS the queue URL.
// It is obtained once per logical queue name and cached by the [Engine].
type Handle string

// Message is a single message received from the remote queue service.
type Message struct {
	// ID identifies the message for logging. It may be empty.
	ID string

	// Body is the raw message body. It is decoded as JSON unless the pull was
	// started with [WithRaw].
	Body string

	// AckToken is the opaque token used to delete the message after it has been
	// processed successfully (the SQS receipt handle).
	AckToken string
}

// ReceiveParams are the per-call parameters of [Service.ReceiveMessages].
type ReceiveParams struct {
	MaxNumberOfMessages int32
	VisibilityTimeout   int32
	WaitTimeSeconds     int32
}

// Service is the remote queue service the engine consumes from and publishes
// to. The [Engine] only calls these methods; it never implements them.
type Service interface {
	ResolveQueueHandle(ctx context.Context, name string) (Handle, error)
	ReceiveMessages(ctx context.Context, handle Handle, params ReceiveParams) ([]Message, error)
	DeleteMessage(ctx context.Context, handle Handle, ackToken string) error
	SendMessage(ctx context.Context, handle Handle, body string) error
}

// VisibilityExtender is implemented by services able to extend the visibility
// timeout of an in-flight message. It is only used when the engine is created
// with [WithMaxMessageExtension].
type VisibilityExtender interface {
	ChangeMessageVisibility(ctx context.Context, handle Handle, ackToken string, visibilityTimeoutSeconds int32) error
}
