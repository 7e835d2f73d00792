// Package sqs provides an AWS SQS backend for the queue engine in
// [github.com/slackmgr/sqsq/queue]. [Client] implements [queue.Service] and
// [queue.VisibilityExtender]: queue handles are SQS queue URLs, and
// acknowledgment tokens are receipt handles.
//
// Create a client with [New] and initialise it with [Client.Init], then hand
// it to the engine:
//
//	client, err := sqs.New(&awsCfg, logger).Init(ctx)
//	if err != nil {
//	    return err
//	}
//
//	engine, err := queue.New(client, logger)
//
// # Retries
//
// Every SQS API call is retried by the AWS SDK retryer before a failure is
// reported to the engine, which then applies its own retry policy on top.
// The SDK side is tuned with [WithSqsAPIMaxRetryAttempts] and
// [WithSqsAPIMaxRetryBackoffDelay].
//
// # FIFO queues
//
// Queues whose URL ends in ".fifo" are treated as FIFO queues. Every message
// sent to such a queue carries the configured message group ID (see
// [WithFifoMessageGroupID]) and a freshly generated deduplication ID, so two
// pushes of the same payload are delivered as two messages.
package sqs
