package transfer

import (
	"context"
	"sync/atomic"
)

// CancelToken is a cancellation flag shared between a running transfer and
// the controller that may stop it. The transfer polls it at the top of
// every loop iteration.
type CancelToken struct {
	flag atomic.Bool
}

// Cancel sets the flag. It is safe to call from any goroutine, any number
// of times.
func (t *CancelToken) Cancel() {
	t.flag.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool {
	return t.flag.Load()
}

// stopRequested reports whether the token is set or ctx is done.
func (t *CancelToken) stopRequested(ctx context.Context) bool {
	return t.Cancelled() || ctx.Err() != nil
}
