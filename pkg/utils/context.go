package utils

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// DefaultTimeout is the standard timeout for progress store operations
const DefaultTimeout = 5 * time.Second

var storeTimeout atomic.Int64

func init() {
	storeTimeout.Store(int64(DefaultTimeout))
}

// SetStoreTimeout overrides the bound applied to every store call. Safe to
// call while store calls are in flight; later calls see the new bound.
func SetStoreTimeout(d time.Duration) {
	if d > 0 {
		storeTimeout.Store(int64(d))
	}
}

// StoreTimeout returns the current store call bound
func StoreTimeout() time.Duration {
	return time.Duration(storeTimeout.Load())
}

// WithStoreTimeout bounds a single blocking store call
func WithStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, StoreTimeout())
}

// IsContextError checks if error is from context cancellation
func IsContextError(err error) bool {
	return err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
