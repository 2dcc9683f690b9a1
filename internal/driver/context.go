// File: internal/driver/context.go
package driver

import "context"

// combineContext derives a context from base that is additionally canceled
// when other is done. The derived context keeps base's values, which matters
// here: chromedp resolves its target through the context chain, so operation
// contexts must descend from the handle's context while still honoring the
// caller's cancellation.
func combineContext(base, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(base)
	if other == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
