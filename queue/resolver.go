package queue

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/slackmgr/types"
)

// resolver maps logical queue names to queue handles. Handles are cached in a
// size-bounded LRU whose entries expire after a maximum age. Concurrent
// resolutions of the same uncached name are not deduplicated.
type resolver struct {
	service   Service
	cache     *expirable.LRU[string, Handle]
	maxErrors int
	delay     time.Duration
	logger    types.Logger
}

func newResolver(service Service, opts *Options, logger types.Logger) *resolver {
	return &resolver{
		service:   service,
		cache:     expirable.NewLRU[string, Handle](opts.nameCacheSize, nil, opts.nameCacheMaxAge),
		maxErrors: opts.maxErrors,
		delay:     opts.retryDelay,
		logger:    logger.WithField("component", "resolver"),
	}
}

// resolve returns the handle for name, calling the service on a cache miss.
// Failed lookups are retried after a fixed delay; once maxErrors consecutive
// lookups have failed an *EscalationError is returned.
func (r *resolver) resolve(ctx context.Context, name string) (Handle, error) {
	if handle, ok := r.cache.Get(name); ok {
		return handle, nil
	}

	logger := r.logger.WithField("queue_name", name)

	onRetry := func(attempt int, err error) {
		logger.WithField("attempt", attempt).Warnf("Failed to resolve queue handle, retrying in %s: %v", r.delay, err)
	}

	b := newBackoff(r.maxErrors, r.delay)

	handle, err := retry(ctx, b, onRetry, func(ctx context.Context) (Handle, error) {
		return r.service.ResolveQueueHandle(ctx, name)
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		return "", &EscalationError{Op: OpResolve, Queue: name, Attempts: b.attempts(), Err: err}
	}

	r.cache.Add(name, handle)

	logger.WithField("queue_handle", string(handle)).Debug("Queue handle resolved")

	return handle, nil
}

// len returns the number of live cache entries.
func (r *resolver) len() int {
	return r.cache.Len()
}
