package sqs

import (
	"errors"
	"time"
)

// Option is a functional option for configuring a [Client].
// Options are passed to [New] and applied before [Client.Init] is called.
type Option func(*Options)

// Options holds the resolved configuration for a [Client].
// All fields are set to sensible defaults by [New]; use With* functions to
// override individual values.
type Options struct {
	sqsAPIMaxRetryAttempts     int
	sqsAPIMaxRetryBackoffDelay time.Duration
	fifoMessageGroupID         string
	sqsClient                  sqsClient // Optional: injected SQS client for testing
}

func newOptions() *Options {
	return &Options{
		sqsAPIMaxRetryAttempts:     5,
		sqsAPIMaxRetryBackoffDelay: 10 * time.Second,
		fifoMessageGroupID:         "default",
	}
}

func (o *Options) validate() error {
	if o.sqsAPIMaxRetryAttempts < 0 || o.sqsAPIMaxRetryAttempts > 10 {
		return errors.New("max SQS API retry attempts must be between 0 and 10")
	}

	if o.sqsAPIMaxRetryBackoffDelay < 1*time.Second || o.sqsAPIMaxRetryBackoffDelay > 30*time.Second {
		return errors.New("max SQS API retry backoff delay must be between 1 and 30 seconds")
	}

	if o.fifoMessageGroupID == "" || len(o.fifoMessageGroupID) > 128 {
		return errors.New("FIFO message group ID must be between 1 and 128 characters")
	}

	return nil
}

// WithSqsAPIMaxRetryAttempts sets the maximum number of retry attempts the
// AWS SDK makes for a failed SQS API call, before the failure is reported to
// the queue engine. Must be between 0 and 10. Default: 5.
func WithSqsAPIMaxRetryAttempts(n int) Option {
	return func(o *Options) {
		o.sqsAPIMaxRetryAttempts = n
	}
}

// WithSqsAPIMaxRetryBackoffDelay sets the maximum backoff delay between
// consecutive SDK retry attempts. Must be between 1 second and 30 seconds.
// Default: 10 seconds.
func WithSqsAPIMaxRetryBackoffDelay(d time.Duration) Option {
	return func(o *Options) {
		o.sqsAPIMaxRetryBackoffDelay = d
	}
}

// WithFifoMessageGroupID sets the MessageGroupId used when sending to a FIFO
// queue. All messages sent by the client share this group, so they are
// delivered in the order they were sent. Default: "default".
func WithFifoMessageGroupID(groupID string) Option {
	return func(o *Options) {
		o.fifoMessageGroupID = groupID
	}
}

// WithSQSClient replaces the default AWS SQS client with a custom
// implementation of the internal sqsClient interface. This option is
// intended for testing with mock or stub clients.
func WithSQSClient(client sqsClient) Option {
	return func(o *Options) {
		o.sqsClient = client
	}
}
