//nolint:paralleltest,testpackage // Tests use shared resources and need access to unexported functions
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func noopExtend(_ context.Context) error { return nil }

func TestNewExtendableMessage(t *testing.T) {
	before := time.Now()
	msg := newExtendableMessage("msg-123", 30, noopExtend)
	after := time.Now()

	if msg.MessageID() != "msg-123" {
		t.Errorf("expected messageID 'msg-123', got %q", msg.MessageID())
	}

	if msg.visibilityTimeout != 30*time.Second {
		t.Errorf("expected visibilityTimeout 30s, got %v", msg.visibilityTimeout)
	}

	ts := msg.OriginalReceiveTimestamp()
	if ts.Before(before) || ts.After(after) {
		t.Errorf("originalReceiveTimestamp %v not between %v and %v", ts, before, after)
	}

	if msg.IsReleased() {
		t.Error("expected new message not to be released")
	}
}

func TestRelease(t *testing.T) {
	var calls atomic.Int32

	msg := newExtendableMessage("msg-123", 4, func(_ context.Context) error {
		calls.Add(1)
		return nil
	})
	msg.lastExtendedAt = time.Now().Add(-3 * time.Second)

	msg.Release()

	if !msg.IsReleased() {
		t.Error("expected message to be released")
	}

	if msg.NeedsExtensionNow() {
		t.Error("released message should not need extension")
	}

	if err := msg.ExtendVisibility(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if calls.Load() != 0 {
		t.Errorf("expected extend func not to be called after release, got %d calls", calls.Load())
	}

	// Releasing twice is harmless.
	msg.Release()
}

func TestNeedsExtensionNow_BeforeHalfTimeout(t *testing.T) {
	msg := newExtendableMessage("msg-123", 30, noopExtend)

	if msg.NeedsExtensionNow() {
		t.Error("should not need extension immediately after creation")
	}
}

func TestNeedsExtensionNow_AfterHalfTimeout(t *testing.T) {
	msg := newExtendableMessage("msg-123", 4, noopExtend)
	msg.lastExtendedAt = time.Now().Add(-3 * time.Second)

	if !msg.NeedsExtensionNow() {
		t.Error("should need extension after half timeout has passed")
	}
}

func TestExtendVisibility(t *testing.T) {
	called := false
	var receivedCtx context.Context

	msg := newExtendableMessage("msg-123", 30, func(ctx context.Context) error {
		called = true
		receivedCtx = ctx //nolint:fatcontext // Test needs to capture context for verification
		return nil
	})
	msg.lastExtendedAt = time.Now().Add(-time.Minute)

	ctx := context.Background()
	before := time.Now()
	err := msg.ExtendVisibility(ctx)
	after := time.Now()

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if !called {
		t.Error("expected extend visibility function to be called")
	}

	if receivedCtx != ctx {
		t.Error("expected context to be passed to extend function")
	}

	if msg.lastExtendedAt.Before(before) || msg.lastExtendedAt.After(after) {
		t.Errorf("lastExtendedAt %v not between %v and %v", msg.lastExtendedAt, before, after)
	}
}

func TestExtendVisibility_ReturnsError(t *testing.T) {
	expectedErr := errors.New("extension failed")
	msg := newExtendableMessage("msg-123", 30, func(_ context.Context) error {
		return expectedErr
	})

	original := time.Now().Add(-time.Minute)
	msg.lastExtendedAt = original

	err := msg.ExtendVisibility(context.Background())

	if !errors.Is(err, expectedErr) {
		t.Errorf("expected %v, got %v", expectedErr, err)
	}

	if !msg.lastExtendedAt.Equal(original) {
		t.Error("lastExtendedAt should not change when extension fails")
	}
}

func TestConcurrentReleaseAndExtend(t *testing.T) {
	msg := newExtendableMessage("msg-123", 30, func(_ context.Context) error {
		time.Sleep(time.Millisecond)
		return nil
	})

	var wg sync.WaitGroup

	for range 10 {
		wg.Go(func() {
			_ = msg.ExtendVisibility(context.Background())
		})
	}

	wg.Go(msg.Release)

	wg.Wait()

	if !msg.IsReleased() {
		t.Error("expected message to be released")
	}
}
