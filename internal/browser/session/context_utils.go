// internal/browser/session/context_utils.go
package session

import (
	"context"
	"time"
)

// CombineContext derives a context from session, so it keeps the chromedp
// target values, that is also canceled when op is done. Requests arrive with
// contexts that carry deadlines but no CDP connection.
func CombineContext(session, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(session)
	if op.Done() == nil {
		return combined, cancel
	}
	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// detached keeps the values of its parent but none of its cancellation.
type detached struct {
	context.Context
}

func (detached) Deadline() (deadline time.Time, ok bool) { return }

func (detached) Done() <-chan struct{} { return nil }

func (detached) Err() error { return nil }

// Detach returns a context that carries the CDP values of ctx but outlives it.
// Binding callbacks use it so focus resolution is not tied to whichever
// request happened to install the binding.
func Detach(ctx context.Context) context.Context {
	return detached{ctx}
}
