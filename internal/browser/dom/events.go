// internal/browser/dom/events.go
package dom

import (
	"golang.org/x/net/html"

	"github.com/xkilldash9x/loginfill/internal/autofill"
)

// Phase is the propagation phase an event is in.
type Phase int

const (
	CapturingPhase Phase = iota + 1
	AtTarget
	BubblingPhase
)

// Event is a synthetic DOM event. Events bubble but are not composed: they
// never leave the shadow root their target lives in.
type Event struct {
	Type   string
	Target *Element
	// CurrentTarget is nil while document listeners run.
	CurrentTarget *Element
	Phase         Phase
	stopped       bool
}

// StopPropagation prevents listeners on further nodes from running.
func (ev *Event) StopPropagation() { ev.stopped = true }

// Listener handles an event.
type Listener func(ev *Event)

type listener struct {
	node    *html.Node // nil for the document
	typ     string
	capture bool
	fn      Listener
}

// AddEventListener registers fn on the document.
func (p *Page) AddEventListener(typ string, capture bool, fn Listener) {
	p.listeners = append(p.listeners, &listener{typ: typ, capture: capture, fn: fn})
}

func (p *Page) dispatch(target *Element, typ string) {
	ev := &Event{Type: typ, Target: target}

	var ancestors []*html.Node
	for a := target.Parent(); a != nil; a = a.Parent() {
		ancestors = append(ancestors, a.(*Element).node)
	}
	inDocument := target.Scope() == autofill.Node(p.document)

	// Snapshot so listeners added during dispatch wait for the next event.
	listeners := append([]*listener(nil), p.listeners...)
	run := func(node *html.Node, phase Phase, capture, atTarget bool) {
		if ev.stopped {
			return
		}
		ev.Phase = phase
		ev.CurrentTarget = nil
		if node != nil {
			ev.CurrentTarget = p.wrap(node)
		}
		for _, l := range listeners {
			if l.node != node || l.typ != typ || (!atTarget && l.capture != capture) {
				continue
			}
			l.fn(ev)
		}
	}

	if inDocument {
		run(nil, CapturingPhase, true, false)
	}
	for i := len(ancestors) - 1; i >= 0; i-- {
		run(ancestors[i], CapturingPhase, true, false)
	}
	run(target.node, AtTarget, false, true)
	for _, a := range ancestors {
		run(a, BubblingPhase, false, false)
	}
	if inDocument {
		run(nil, BubblingPhase, false, false)
	}

	if (typ == "focus" || typ == "blur") && autofill.IsInput(target) {
		for _, fn := range p.focusFns {
			fn(target)
		}
	}
}
