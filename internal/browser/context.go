package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from primary (which carries the chromedp
// target) that is also cancelled when secondary is done. The cause of a
// cancellation coming from secondary is preserved for context.Cause.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(primary)
	stop := context.AfterFunc(secondary, func() {
		cancel(context.Cause(secondary))
	})
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

// valueOnlyContext inherits values but not cancellation.
type valueOnlyContext struct{ context.Context }

func (valueOnlyContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (valueOnlyContext) Done() <-chan struct{}       { return nil }
func (valueOnlyContext) Err() error                  { return nil }

// Detach returns a context that keeps ctx's values but ignores its cancellation.
// Browser processes are started on a detached context so that only Close tears them down.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
