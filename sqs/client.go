package sqs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/slackmgr/sqsq/queue"
	"github.com/slackmgr/types"
)

const (
	maxReceiveMessages    = 10
	maxReceiveWaitSeconds = 20
)

// sqsClient is the subset of the AWS SQS API used by [Client].
type sqsClient interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

var (
	_ queue.Service            = (*Client)(nil)
	_ queue.VisibilityExtender = (*Client)(nil)
)

// Client implements [queue.Service] on top of AWS SQS. Queue handles are SQS
// queue URLs and acknowledgment tokens are receipt handles.
//
// Create a Client with [New], then call [Client.Init] once before any other
// method. Init is not thread-safe; all other methods are safe for concurrent
// use after Init returns.
type Client struct {
	client      sqsClient
	awsCfg      *aws.Config
	opts        *Options
	logger      types.Logger
	initialized bool
}

// New creates a Client that uses awsCfg to construct its SQS client during
// [Client.Init].
//
// Functional options may be passed to override defaults (see With* functions).
// The logger is automatically enriched with a "plugin" field.
//
// New does not connect to AWS.
func New(awsCfg *aws.Config, logger types.Logger, opts ...Option) *Client {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	return &Client{
		awsCfg: awsCfg,
		opts:   options,
		logger: logger.WithField("plugin", "sqs"),
	}
}

// Init validates the options and constructs the SQS client. It returns the
// receiver so that initialization can be chained with [New]:
//
//	client, err := sqs.New(&awsCfg, logger).Init(ctx)
//
// Init is idempotent; subsequent calls on an already-initialized Client are
// no-ops. It is not thread-safe and must be called once during application
// startup before any concurrent access.
func (c *Client) Init(_ context.Context) (*Client, error) {
	if c.initialized {
		return c, nil
	}

	if err := c.opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid SQS options: %w", err)
	}

	// Use injected client if provided (for testing), otherwise create real client
	if c.opts.sqsClient != nil {
		c.client = c.opts.sqsClient
	} else {
		if c.awsCfg == nil {
			return nil, errors.New("AWS config cannot be nil")
		}

		c.client = sqs.NewFromConfig(*c.awsCfg, func(o *sqs.Options) {
			o.Retryer = retry.AddWithMaxBackoffDelay(o.Retryer, c.opts.sqsAPIMaxRetryBackoffDelay)
			o.Retryer = retry.AddWithMaxAttempts(o.Retryer, c.opts.sqsAPIMaxRetryAttempts)
		})
	}

	c.initialized = true

	return c, nil
}

// ResolveQueueHandle returns the URL of the named queue.
func (c *Client) ResolveQueueHandle(ctx context.Context, name string) (queue.Handle, error) {
	if !c.initialized {
		return "", errors.New("SQS client not initialized")
	}

	resp, err := c.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("failed to get SQS queue URL for %s: %w", name, err)
	}

	queueURL := aws.ToString(resp.QueueUrl)
	if queueURL == "" {
		return "", fmt.Errorf("empty SQS queue URL returned for %s", name)
	}

	return queue.Handle(queueURL), nil
}

// ReceiveMessages long-polls the queue for up to params.MaxNumberOfMessages
// messages. Values above the SQS limits (10 messages, 20 seconds wait) are
// capped. Messages missing a receipt handle or body are skipped.
func (c *Client) ReceiveMessages(ctx context.Context, handle queue.Handle, params queue.ReceiveParams) ([]queue.Message, error) {
	if !c.initialized {
		return nil, errors.New("SQS client not initialized")
	}

	queueURL := string(handle)

	input := &sqs.ReceiveMessageInput{
		QueueUrl:            &queueURL,
		MaxNumberOfMessages: min(max(params.MaxNumberOfMessages, 1), maxReceiveMessages),
		VisibilityTimeout:   params.VisibilityTimeout,
		WaitTimeSeconds:     min(max(params.WaitTimeSeconds, 0), maxReceiveWaitSeconds),
	}

	output, err := c.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to receive SQS messages: %w", err)
	}

	messages := make([]queue.Message, 0, len(output.Messages))

	for _, m := range output.Messages {
		if m.ReceiptHandle == nil || m.Body == nil {
			c.logger.WithField("message_id", aws.ToString(m.MessageId)).Warn("Skipping SQS message without receipt handle or body")
			continue
		}

		messages = append(messages, queue.Message{
			ID:       aws.ToString(m.MessageId),
			Body:     aws.ToString(m.Body),
			AckToken: aws.ToString(m.ReceiptHandle),
		})
	}

	return messages, nil
}

// DeleteMessage deletes the message with the given receipt handle.
func (c *Client) DeleteMessage(ctx context.Context, handle queue.Handle, ackToken string) error {
	if !c.initialized {
		return errors.New("SQS client not initialized")
	}

	queueURL := string(handle)

	input := &sqs.DeleteMessageInput{
		QueueUrl:      &queueURL,
		ReceiptHandle: &ackToken,
	}

	if _, err := c.client.DeleteMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to delete SQS message: %w", err)
	}

	return nil
}

// SendMessage publishes body to the queue. The queue type is detected from
// the URL suffix:
//   - FIFO queues (URL ends with ".fifo"): the message group ID is set to the
//     configured group (see [WithFifoMessageGroupID]) and a unique
//     deduplication ID is generated for every call.
//   - Standard queues: the message is sent without a group or dedup ID.
func (c *Client) SendMessage(ctx context.Context, handle queue.Handle, body string) error {
	if !c.initialized {
		return errors.New("SQS client not initialized")
	}

	if body == "" {
		return errors.New("body cannot be empty")
	}

	queueURL := string(handle)

	input := &sqs.SendMessageInput{
		QueueUrl:    &queueURL,
		MessageBody: &body,
	}

	if isFifoQueue(queueURL) {
		groupID := c.opts.fifoMessageGroupID
		dedupID := uuid.NewString()

		input.MessageGroupId = &groupID
		input.MessageDeduplicationId = &dedupID
	}

	output, err := c.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send SQS message: %w", err)
	}

	c.logger.WithField("message_id", aws.ToString(output.MessageId)).Debug("SQS message sent")

	return nil
}

// ChangeMessageVisibility resets the visibility timeout of the message with
// the given receipt handle to visibilityTimeoutSeconds from now.
func (c *Client) ChangeMessageVisibility(ctx context.Context, handle queue.Handle, ackToken string, visibilityTimeoutSeconds int32) error {
	if !c.initialized {
		return errors.New("SQS client not initialized")
	}

	queueURL := string(handle)

	input := &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &queueURL,
		ReceiptHandle:     &ackToken,
		VisibilityTimeout: visibilityTimeoutSeconds,
	}

	if _, err := c.client.ChangeMessageVisibility(ctx, input); err != nil {
		return fmt.Errorf("failed to extend SQS message visibility: %w", err)
	}

	return nil
}

func isFifoQueue(queueURL string) bool {
	return strings.HasSuffix(queueURL, ".fifo")
}
