//nolint:testpackage // Mocks must be in the queue package to access unexported types
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slackmgr/types"
)

var errNotFound = errors.New("receipt handle is invalid")

type memMessage struct {
	id        string
	body      string
	receipt   string
	visibleAt time.Time
	receives  int
}

// memService is an in-memory queue service with visibility timeouts. Hooks
// replace the default behaviour of individual calls when set.
type memService struct {
	mu     sync.Mutex
	queues map[Handle][]*memMessage
	seq    int

	resolveFunc func(ctx context.Context, name string) (Handle, error)
	receiveFunc func(ctx context.Context, handle Handle, params ReceiveParams) ([]Message, error)
	deleteFunc  func(ctx context.Context, handle Handle, ackToken string) error
	sendFunc    func(ctx context.Context, handle Handle, body string) error

	resolveCalls atomic.Int32
	receiveCalls atomic.Int32
	deleteCalls  atomic.Int32
	sendCalls    atomic.Int32
	deleted      []string
}

func newMemService() *memService {
	return &memService{
		queues: make(map[Handle][]*memMessage),
	}
}

func memHandle(name string) Handle {
	return Handle("mem://" + name)
}

func (s *memService) ResolveQueueHandle(ctx context.Context, name string) (Handle, error) {
	s.resolveCalls.Add(1)

	if s.resolveFunc != nil {
		return s.resolveFunc(ctx, name)
	}

	return memHandle(name), nil
}

func (s *memService) ReceiveMessages(ctx context.Context, handle Handle, params ReceiveParams) ([]Message, error) {
	s.receiveCalls.Add(1)

	if s.receiveFunc != nil {
		return s.receiveFunc(ctx, handle, params)
	}

	messages := s.take(handle, params)

	if len(messages) == 0 && params.WaitTimeSeconds > 0 {
		// Shortened long poll.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	return messages, nil
}

func (s *memService) take(handle Handle, params ReceiveParams) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	messages := []Message{}

	for _, m := range s.queues[handle] {
		if int32(len(messages)) >= params.MaxNumberOfMessages {
			break
		}

		if m.visibleAt.After(now) {
			continue
		}

		s.seq++
		m.receipt = fmt.Sprintf("receipt-%d", s.seq)
		m.visibleAt = now.Add(time.Duration(params.VisibilityTimeout) * time.Second)
		m.receives++

		messages = append(messages, Message{ID: m.id, Body: m.body, AckToken: m.receipt})
	}

	return messages
}

func (s *memService) DeleteMessage(ctx context.Context, handle Handle, ackToken string) error {
	s.deleteCalls.Add(1)

	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, handle, ackToken)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[handle]

	for i, m := range q {
		if m.receipt == ackToken {
			s.queues[handle] = append(q[:i:i], q[i+1:]...)
			s.deleted = append(s.deleted, m.body)

			return nil
		}
	}

	return errNotFound
}

func (s *memService) SendMessage(ctx context.Context, handle Handle, body string) error {
	s.sendCalls.Add(1)

	if s.sendFunc != nil {
		return s.sendFunc(ctx, handle, body)
	}

	s.enqueue(handle, body)

	return nil
}

func (s *memService) enqueue(handle Handle, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.queues[handle] = append(s.queues[handle], &memMessage{id: fmt.Sprintf("msg-%d", s.seq), body: body})
}

func (s *memService) depth(handle Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queues[handle])
}

func (s *memService) deletedBodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string{}, s.deleted...)
}

// memExtendingService adds visibility extension to memService.
type memExtendingService struct {
	*memService

	extendCalls atomic.Int32
	extendErr   error
}

func (s *memExtendingService) ChangeMessageVisibility(_ context.Context, _ Handle, _ string, _ int32) error {
	s.extendCalls.Add(1)
	return s.extendErr
}

// mockLogger is a no-op logger for testing.
type mockLogger struct{}

//nolint:ireturn // Must return interface to implement types.Logger
func (m *mockLogger) WithField(_ string, _ any) types.Logger { return m }

//nolint:ireturn // Must return interface to implement types.Logger
func (m *mockLogger) WithFields(_ map[string]any) types.Logger { return m }
func (m *mockLogger) Debug(_ string)                           {}
func (m *mockLogger) Debugf(_ string, _ ...any)                {}
func (m *mockLogger) Info(_ string)                            {}
func (m *mockLogger) Infof(_ string, _ ...any)                 {}
func (m *mockLogger) Warn(_ string)                            {}
func (m *mockLogger) Warnf(_ string, _ ...any)                 {}
func (m *mockLogger) Error(_ string)                           {}
func (m *mockLogger) Errorf(_ string, _ ...any)                {}
func (m *mockLogger) Fatal(_ string)                           {}
func (m *mockLogger) Fatalf(_ string, _ ...any)                {}

//nolint:ireturn // Returns interface for convenience in tests
func newMockLogger() types.Logger {
	return &mockLogger{}
}
