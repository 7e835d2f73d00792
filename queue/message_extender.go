package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slackmgr/types"
	"golang.org/x/sync/semaphore"
)

const maxConcurrentExtensions = 3

// messageExtender tracks messages whose handler is still running and extends
// their visibility timeout so they are not redelivered mid-processing.
//
// Extension is best-effort: a message whose extension fails is dropped from
// tracking and may be redelivered once its current timeout expires. The
// tracking map is owned by the run goroutine.
type messageExtender struct {
	inFlightMessages    map[*extendableMessage]struct{}
	inFlightMsgCount    atomic.Int64
	maxMessageExtension time.Duration
	checkInterval       time.Duration
	logger              types.Logger
}

func newMessageExtender(opts *Options, logger types.Logger) *messageExtender {
	return &messageExtender{
		inFlightMessages:    make(map[*extendableMessage]struct{}),
		maxMessageExtension: opts.maxMessageExtension,
		checkInterval:       opts.extensionInterval,
		logger:              logger.WithField("component", "message-extender"),
	}
}

// InFlight returns the number of messages currently tracked.
func (m *messageExtender) InFlight() int64 {
	return m.inFlightMsgCount.Load()
}

func (m *messageExtender) run(ctx context.Context, sourceCh <-chan *extendableMessage) {
	m.logger.Info("Message extender started")
	defer m.logger.Info("Message extender exited")

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.processInFlightMessages(ctx)
		case msg, ok := <-sourceCh:
			if !ok {
				return
			}

			m.addMessage(msg)
		}
	}
}

func (m *messageExtender) processInFlightMessages(ctx context.Context) {
	if len(m.inFlightMessages) == 0 {
		return
	}

	inNeedOfExtension := []*extendableMessage{}

	for msg := range m.inFlightMessages {
		if msg.IsReleased() {
			m.removeMessage(msg)
			continue
		}

		if time.Since(msg.OriginalReceiveTimestamp())+msg.visibilityTimeout >= m.maxMessageExtension {
			m.logger.WithField("message_id", msg.MessageID()).Warn("Message has reached the maximum visibility extension, no longer extending it")
			m.removeMessage(msg)
			continue
		}

		if msg.NeedsExtensionNow() {
			inNeedOfExtension = append(inNeedOfExtension, msg)
		}
	}

	if len(inNeedOfExtension) == 0 {
		return
	}

	for _, msg := range m.extend(ctx, inNeedOfExtension) {
		msg.Release()
		m.removeMessage(msg)
	}
}

// extend extends every message, at most maxConcurrentExtensions at a time, and
// returns the ones whose extension failed. Nothing is returned once ctx is
// done.
func (m *messageExtender) extend(ctx context.Context, msgs []*extendableMessage) []*extendableMessage {
	sem := semaphore.NewWeighted(maxConcurrentExtensions)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []*extendableMessage
	)

	for _, msg := range msgs {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Go(func() {
			defer sem.Release(1)

			err := msg.ExtendVisibility(ctx)
			if err == nil || ctx.Err() != nil {
				return
			}

			m.logger.WithField("message_id", msg.MessageID()).Errorf("Failed to extend message visibility, removing from in-flight tracking: %v", err)

			mu.Lock()
			failed = append(failed, msg)
			mu.Unlock()
		})
	}

	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}

	return failed
}

func (m *messageExtender) addMessage(msg *extendableMessage) {
	if _, ok := m.inFlightMessages[msg]; ok {
		return
	}

	m.inFlightMsgCount.Add(1)
	m.inFlightMessages[msg] = struct{}{}
}

func (m *messageExtender) removeMessage(msg *extendableMessage) {
	if _, ok := m.inFlightMessages[msg]; !ok {
		return
	}

	m.inFlightMsgCount.Add(-1)
	delete(m.inFlightMessages, msg)
}
