package queue

import (
	"context"
	"sync"
	"time"
)

// extendableMessage is an in-flight message whose visibility timeout may be
// extended while its handler is running.
type extendableMessage struct {
	messageID                string
	originalReceiveTimestamp time.Time
	lastExtendedAt           time.Time
	visibilityTimeout        time.Duration
	extendVisibilityFunc     func(ctx context.Context) error
	processingLock           *sync.Mutex
}

func newExtendableMessage(messageID string, visibilityTimeoutSeconds int32, extend func(ctx context.Context) error) *extendableMessage {
	now := time.Now()

	return &extendableMessage{
		messageID:                messageID,
		originalReceiveTimestamp: now,
		lastExtendedAt:           now,
		visibilityTimeout:        time.Duration(visibilityTimeoutSeconds) * time.Second,
		extendVisibilityFunc:     extend,
		processingLock:           &sync.Mutex{},
	}
}

func (m *extendableMessage) MessageID() string {
	return m.messageID
}

func (m *extendableMessage) OriginalReceiveTimestamp() time.Time {
	return m.originalReceiveTimestamp
}

// Release marks the handler as finished. A released message is never extended
// again.
func (m *extendableMessage) Release() {
	m.processingLock.Lock()
	defer m.processingLock.Unlock()

	m.extendVisibilityFunc = nil
}

// IsReleased returns true once [extendableMessage.Release] has been called or
// an extension has been given up on.
func (m *extendableMessage) IsReleased() bool {
	m.processingLock.Lock()
	defer m.processingLock.Unlock()

	return m.extendVisibilityFunc == nil
}

// NeedsExtensionNow returns true once half of the visibility timeout has
// passed since the last extension.
func (m *extendableMessage) NeedsExtensionNow() bool {
	m.processingLock.Lock()
	defer m.processingLock.Unlock()

	return m.extendVisibilityFunc != nil && time.Since(m.lastExtendedAt) > m.visibilityTimeout/2
}

// ExtendVisibility extends the message visibility timeout and records the
// time of the extension on success.
func (m *extendableMessage) ExtendVisibility(ctx context.Context) error {
	m.processingLock.Lock()
	defer m.processingLock.Unlock()

	// Released while waiting for the lock.
	if m.extendVisibilityFunc == nil {
		return nil
	}

	if err := m.extendVisibilityFunc(ctx); err != nil {
		return err
	}

	m.lastExtendedAt = time.Now()

	return nil
}
