// internal/browser/session/focus.go
package session

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loginfill/internal/autofill"
)

// NotifyFocus registers fn for focus and blur on inputs in the tab. The
// binding and the recording script are installed on first use; a failure to
// install is logged and leaves focus tracking inert.
func (h *Host) NotifyFocus(fn func(autofill.Element)) {
	h.focusMu.Lock()
	h.focusFns = append(h.focusFns, fn)
	start := !h.focusStarted
	h.focusStarted = true
	h.focusMu.Unlock()

	if start {
		if err := h.installFocus(h.ctx); err != nil {
			h.logger.Warn("Failed to install focus tracking.", zap.Error(err))
		}
	}
}

func (h *Host) installFocus(ctx context.Context) error {
	h.exec.ListenBindings(Detach(ctx), func(name, payload string) {
		if name != focusBinding {
			return
		}
		// Sequence numbers are taken here, on the chromedp event loop, so they
		// follow page order. The loop must not block on further CDP round
		// trips, so resolution happens elsewhere.
		h.focusMu.Lock()
		h.focusSeq++
		seq := h.focusSeq
		h.focusMu.Unlock()
		go h.resolveFocus(Detach(ctx), seq, payload)
	})
	if err := h.exec.AddBinding(ctx, focusBinding); err != nil {
		return fmt.Errorf("failed to add binding: %w", err)
	}
	if err := h.exec.AddScriptOnNewDocument(ctx, focusScript); err != nil {
		return fmt.Errorf("failed to register focus script: %w", err)
	}
	// The current document predates the registration above.
	_, exc, err := h.exec.Evaluate(ctx, runtime.Evaluate(focusScript).WithSilent(true))
	if err != nil {
		return fmt.Errorf("failed to run focus script: %w", err)
	}
	if exc != nil {
		return fmt.Errorf("focus script raised: %w", exc)
	}
	return nil
}

// pendingFocus is a focus change whose node is not in the current snapshot.
type pendingFocus struct {
	seq   uint64
	id    cdp.BackendNodeID
	event string
}

// resolveFocus reads the recorded global and delivers it when the node is
// already known. It never takes a snapshot: that would rebuild handles and
// release remote objects an in-flight request may be using. Unknown nodes are
// queued for the next Document or SyncFocus call.
func (h *Host) resolveFocus(ctx context.Context, seq uint64, event string) {
	id, err := h.lastFocusedID(ctx)
	if err != nil {
		h.logger.Debug("Failed to resolve focused element.", zap.String("event", event), zap.Error(err))
		return
	}
	if id == 0 {
		return
	}

	h.mu.RLock()
	el := h.elements[id]
	h.mu.RUnlock()
	if el == nil {
		h.focusMu.Lock()
		if seq > h.focusApplied && (h.focusPending == nil || seq > h.focusPending.seq) {
			h.focusPending = &pendingFocus{seq: seq, id: id, event: event}
		}
		h.focusMu.Unlock()
		return
	}
	h.deliverFocus(seq, el, event)
}

// SyncFocus delivers a queued focus change, taking a snapshot if the node is
// still unknown. Callers run it on the request path.
func (h *Host) SyncFocus(ctx context.Context) error {
	opCtx, cancel := CombineContext(h.ctx, ctx)
	defer cancel()
	return h.flushFocus(opCtx, true)
}

// flushFocus delivers the queued change. Without refresh it only consults
// the current snapshot.
func (h *Host) flushFocus(ctx context.Context, refresh bool) error {
	h.focusMu.Lock()
	p := h.focusPending
	h.focusPending = nil
	h.focusMu.Unlock()
	if p == nil {
		return nil
	}

	var el *Element
	if refresh {
		var err error
		if el, err = h.lookup(ctx, p.id); err != nil {
			return err
		}
	} else {
		h.mu.RLock()
		el = h.elements[p.id]
		h.mu.RUnlock()
	}
	if el == nil {
		h.logger.Debug("Focused element left the document before delivery.", zap.String("event", p.event))
		return nil
	}
	h.deliverFocus(p.seq, el, p.event)
	return nil
}

// deliverFocus hands el to the registered callbacks unless a later change
// was already delivered.
func (h *Host) deliverFocus(seq uint64, el *Element, event string) {
	h.focusMu.Lock()
	if seq <= h.focusApplied {
		h.focusMu.Unlock()
		return
	}
	h.focusApplied = seq
	if h.focusPending != nil && h.focusPending.seq <= seq {
		h.focusPending = nil
	}
	fns := append([]func(autofill.Element){}, h.focusFns...)
	h.focusMu.Unlock()

	h.logger.Debug("Observed focus change.", zap.String("event", event), zap.String("element", el.Describe()))
	for _, fn := range fns {
		fn(el)
	}
}

func (h *Host) lastFocusedID(ctx context.Context) (cdp.BackendNodeID, error) {
	ro, exc, err := h.exec.Evaluate(ctx, runtime.Evaluate("window."+focusGlobal).WithSilent(true))
	if err != nil {
		return 0, err
	}
	if exc != nil {
		return 0, exc
	}
	if ro == nil || ro.ObjectID == "" {
		return 0, nil
	}
	node, err := h.exec.DescribeObject(ctx, ro.ObjectID)
	if err != nil {
		return 0, err
	}
	return node.BackendNodeID, nil
}
