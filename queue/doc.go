// Package queue is a consumer/producer engine for a remote message queue
// service such as AWS SQS. The service itself is abstracted by [Service]; see
// package github.com/slackmgr/sqsq/sqs for the SQS implementation.
//
// # Consuming
//
// [Engine.Pull] resolves a queue name to a handle once, then starts a number
// of workers. Each worker long-polls the queue for a batch of messages and
// runs every message of the batch, concurrently, through a fixed pipeline:
//
//  1. decode the body as JSON (skipped with [WithRaw]),
//  2. call the [Handler] and wait for it to report completion,
//  3. delete the message from the queue.
//
// The pipeline stops at the first failing stage and leaves the message in
// the queue, so it is redelivered once its visibility timeout expires.
// Failures are reported through [Engine.OnProcessingError] and never affect
// the other messages of the batch. A worker receives its next batch only
// after every message of the previous batch has finished, then waits for the
// configured delay before polling again.
//
//	engine, err := queue.New(client, logger)
//	err = engine.Pull(ctx, "events", queue.SyncHandler(func(ctx context.Context, payload any) error {
//	    return process(payload)
//	}), queue.WithWorkers(4), queue.WithMaxNumberOfMessages(10))
//
// Delivery is at-least-once. A message whose delete fails after a successful
// handler call is processed again, so handlers must tolerate duplicates.
//
// # Producing
//
// [Engine.Push] JSON-encodes a payload and sends it, retrying failed sends
// after a fixed delay. [Engine.PushAsync] does the same in the background and
// raises exhausted retries as a fatal engine error.
//
// # Errors and retries
//
// Name resolution, receive and send failures are retried until a ceiling of
// consecutive failures is reached (42 by default). Reaching the ceiling raises
// an [*EscalationError], delivered to [Engine.OnError] listeners. Escalation
// is only a signal; the embedding application decides whether to stop.
//
// # Stopping
//
// [Engine.Stop] is cooperative: workers observe it between batches and end
// without polling again, in-flight handlers and remote calls are never
// interrupted. Stop returns once every worker of every session has ended, or
// with the first fatal error raised while the stop is pending. Errors raised
// earlier do not cut the drain short.
package queue
