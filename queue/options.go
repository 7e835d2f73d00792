package queue

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option is a functional option for configuring an [Engine].
// Options are passed to [New].
type Option func(*Options)

// Options holds the resolved configuration for an [Engine].
// All fields are set to sensible defaults by [New]; use With* functions to
// override individual values.
type Options struct {
	nameCacheSize       int
	nameCacheMaxAge     time.Duration
	maxErrors           int
	retryDelay          time.Duration
	maxMessageExtension time.Duration
	extensionInterval   time.Duration
	registerer          prometheus.Registerer
}

func newOptions() *Options {
	return &Options{
		nameCacheSize:     500,
		nameCacheMaxAge:   time.Hour,
		maxErrors:         42,
		retryDelay:        1000 * time.Millisecond,
		extensionInterval: 5 * time.Second,
	}
}

func (o *Options) validate() error {
	if o.nameCacheSize < 1 {
		return errors.New("name cache size must be greater than or equal to 1")
	}

	if o.nameCacheMaxAge <= 0 {
		return errors.New("name cache max age must be greater than zero")
	}

	if o.maxErrors < 1 {
		return errors.New("max errors must be greater than or equal to 1")
	}

	if o.retryDelay < 0 {
		return errors.New("retry delay cannot be negative")
	}

	if o.maxMessageExtension < 0 {
		return errors.New("max message extension cannot be negative")
	}

	if o.extensionInterval <= 0 {
		return errors.New("visibility extension check interval must be greater than zero")
	}

	return nil
}

// WithNameCacheSize sets the maximum number of queue handles kept in the name
// cache. The least recently used handle is evicted first. Default: 500.
func WithNameCacheSize(n int) Option {
	return func(o *Options) {
		o.nameCacheSize = n
	}
}

// WithNameCacheMaxAge sets how long a resolved queue handle is trusted before
// it is resolved again. Default: 1 hour.
func WithNameCacheMaxAge(d time.Duration) Option {
	return func(o *Options) {
		o.nameCacheMaxAge = d
	}
}

// WithMaxErrors sets the number of consecutive failures after which queue
// name resolution and push are escalated instead of retried. Default: 42.
func WithMaxErrors(n int) Option {
	return func(o *Options) {
		o.maxErrors = n
	}
}

// WithRetryDelay sets the fixed delay between retries of queue name
// resolution and push. Default: 1 second.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) {
		o.retryDelay = d
	}
}

// WithMaxMessageExtension enables background visibility extension of messages
// whose handler is still running. A message is never extended beyond d after
// it was received. Extension requires the [Service] to implement
// [VisibilityExtender]. Default: 0 (disabled).
func WithMaxMessageExtension(d time.Duration) Option {
	return func(o *Options) {
		o.maxMessageExtension = d
	}
}

// WithMetrics registers the engine's Prometheus collectors with reg.
// Default: no metrics.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *Options) {
		o.registerer = reg
	}
}

// PollOption is a functional option for a single [Engine.Pull] call.
type PollOption func(*PollOptions)

// PollOptions is the immutable configuration of one polling session. It is
// resolved once per [Engine.Pull] call from the defaults and the supplied
// PollOptions.
type PollOptions struct {
	MaxNumberOfMessages int32
	VisibilityTimeout   int32
	WaitTimeSeconds     int32
	Wait                time.Duration
	Workers             int
	MaxErrors           int
	Raw                 bool
	MaxInFlight         int
}

// DefaultPollOptions returns the defaults applied to every [Engine.Pull] call.
func DefaultPollOptions() PollOptions {
	return PollOptions{
		MaxNumberOfMessages: 1,
		VisibilityTimeout:   300,
		WaitTimeSeconds:     20,
		Wait:                2000 * time.Millisecond,
		Workers:             1,
		MaxErrors:           42,
	}
}

func resolvePollOptions(opts []PollOption) (PollOptions, error) {
	o := DefaultPollOptions()

	for _, opt := range opts {
		opt(&o)
	}

	return o, o.validate()
}

func (o PollOptions) validate() error {
	if o.MaxNumberOfMessages < 1 {
		return errors.New("max number of messages must be greater than or equal to 1")
	}

	if o.VisibilityTimeout < 0 {
		return errors.New("visibility timeout cannot be negative")
	}

	if o.WaitTimeSeconds < 0 {
		return errors.New("wait time seconds cannot be negative")
	}

	if o.Wait < 0 {
		return errors.New("wait cannot be negative")
	}

	if o.Workers < 1 {
		return errors.New("workers must be greater than or equal to 1")
	}

	if o.MaxErrors < 1 {
		return errors.New("max errors must be greater than or equal to 1")
	}

	if o.MaxInFlight < 0 {
		return errors.New("max in-flight messages cannot be negative")
	}

	return nil
}

func (o PollOptions) receiveParams() ReceiveParams {
	return ReceiveParams{
		MaxNumberOfMessages: o.MaxNumberOfMessages,
		VisibilityTimeout:   o.VisibilityTimeout,
		WaitTimeSeconds:     o.WaitTimeSeconds,
	}
}

// WithMaxNumberOfMessages sets the batch size requested per receive call.
// Default: 1.
func WithMaxNumberOfMessages(n int32) PollOption {
	return func(o *PollOptions) {
		o.MaxNumberOfMessages = n
	}
}

// WithVisibilityTimeout sets how many seconds a received message stays hidden
// from other receivers. Default: 300.
func WithVisibilityTimeout(seconds int32) PollOption {
	return func(o *PollOptions) {
		o.VisibilityTimeout = seconds
	}
}

// WithWaitTimeSeconds sets the long-poll wait of each receive call. Default: 20.
func WithWaitTimeSeconds(seconds int32) PollOption {
	return func(o *PollOptions) {
		o.WaitTimeSeconds = seconds
	}
}

// WithWait sets the local delay between a drained batch (or a failed receive)
// and the next receive call. Default: 2 seconds.
func WithWait(d time.Duration) PollOption {
	return func(o *PollOptions) {
		o.Wait = d
	}
}

// WithWorkers sets the number of concurrent pollers. Default: 1.
func WithWorkers(n int) PollOption {
	return func(o *PollOptions) {
		o.Workers = n
	}
}

// WithPollMaxErrors sets the number of consecutive receive failures after
// which a worker escalates. Default: 42.
func WithPollMaxErrors(n int) PollOption {
	return func(o *PollOptions) {
		o.MaxErrors = n
	}
}

// WithRaw passes message bodies to the handler as strings instead of decoding
// them as JSON.
func WithRaw() PollOption {
	return func(o *PollOptions) {
		o.Raw = true
	}
}

// WithMaxInFlight caps the number of messages of one batch processed
// concurrently. Default: 0 (no cap beyond the batch size).
func WithMaxInFlight(n int) PollOption {
	return func(o *PollOptions) {
		o.MaxInFlight = n
	}
}
