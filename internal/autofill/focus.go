// internal/autofill/focus.go
package autofill

import "sync"

// FocusTracker remembers the input that most recently gained or lost focus.
// It lives as long as the page session that owns it.
type FocusTracker struct {
	mu   sync.Mutex
	last Element
}

// NewFocusTracker returns an empty tracker.
func NewFocusTracker() *FocusTracker {
	return &FocusTracker{}
}

// Record stores el if it is an input. Later calls win.
func (t *FocusTracker) Record(el Element) {
	if !IsInput(el) {
		return
	}
	t.mu.Lock()
	t.last = el
	t.mu.Unlock()
}

// Last returns the remembered input, or nil.
func (t *FocusTracker) Last() Element {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Reset forgets the remembered input.
func (t *FocusTracker) Reset() {
	t.mu.Lock()
	t.last = nil
	t.mu.Unlock()
}

// Attach subscribes the tracker to a host's focus notifications when the host
// supports them. It reports whether the subscription happened.
func (t *FocusTracker) Attach(host Host) bool {
	n, ok := host.(FocusNotifier)
	if !ok {
		return false
	}
	n.NotifyFocus(t.Record)
	return true
}
