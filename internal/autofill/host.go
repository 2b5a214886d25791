// internal/autofill/host.go
package autofill

import (
	"context"
	"errors"
)

// ErrStale is wrapped by hosts when an element handle no longer refers to a
// live node. Discovery skips stale elements instead of failing the request.
var ErrStale = errors.New("element is no longer attached to the page")

// -- Page Abstraction --

// Node is a query scope: a document, an isolated fragment or an element.
type Node interface {
	// Children returns the element children in tree order. For a fragment these
	// are its top-level elements. A child's own fragment is never included.
	Children() []Element
	// Describe returns a short human readable label for logs and reports.
	Describe() string
}

// Element is a handle to a live element. Two handles to the same element are
// equal under == for the lifetime of one request.
type Element interface {
	Node

	// Tag returns the lower-cased local name.
	Tag() string
	// Attr returns the raw attribute value and whether it is present.
	Attr(name string) (string, bool)
	// Parent returns the parent element, or nil at the top of the tree scope.
	Parent() Element
	// Scope returns the document or fragment that contains the element.
	Scope() Node
	// ShadowRoot returns the hosted fragment when one exists and is reachable.
	ShadowRoot() Node

	// Probe reads the current render state in one shot.
	Probe(ctx context.Context) (RenderState, error)
	// Dispatch fires a bubbling, non-composed Event of the given type.
	Dispatch(ctx context.Context, eventType string) error
	// Value reads the live value property.
	Value(ctx context.Context) (string, error)
	// SetAttr writes an attribute.
	SetAttr(ctx context.Context, name, value string) error
	// SetValue writes the live value property.
	SetValue(ctx context.Context, value string) error
}

// Host gives the core access to one page.
type Host interface {
	// Document returns a fresh document root reflecting the current tree.
	Document(ctx context.Context) (Node, error)
	// ElementFromPoint returns the topmost element at viewport coordinates, or
	// nil when nothing is painted there.
	ElementFromPoint(ctx context.Context, x, y float64) (Element, error)
}

// FocusNotifier is implemented by hosts that can observe focus and blur on
// input elements.
type FocusNotifier interface {
	NotifyFocus(fn func(Element))
}

// FocusSyncer is implemented by hosts that observe focus asynchronously and
// hold back changes they cannot resolve without touching request state.
// SyncFocus delivers those changes on the request path.
type FocusSyncer interface {
	SyncFocus(ctx context.Context) error
}

// -- Render State --

// Rect is a bounding box in viewport coordinates.
type Rect struct {
	X, Y, Width, Height float64
}

// Center returns the midpoint of the box.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Size is a width and height pair.
type Size struct {
	Width, Height float64
}

// RenderState is the subset of layout and style information the visibility
// filter and the injector read from an element.
type RenderState struct {
	Disabled bool
	// Type is the lower-cased type property ("text" when absent or invalid).
	Type         string
	OffsetWidth  float64
	OffsetHeight float64
	// Visibility is the computed visibility value.
	Visibility string
	Rect       Rect
	// Opacities holds the computed opacity of the element followed by each
	// ancestor element, innermost first.
	Opacities []float64
	// MaxLength is the maxLength property; values <= 0 mean unlimited.
	MaxLength int
	Viewport  Size
}

// IsInput reports whether el is an input-capable element.
func IsInput(el Element) bool {
	return el != nil && el.Tag() == "input"
}

// walk visits the element descendants of root in document order without
// entering fragments. It uses an explicit stack so hostile nesting depth
// cannot exhaust the goroutine stack. Returning false from fn stops the walk.
func walk(root Node, fn func(Element) bool) {
	stack := reverse(root.Children())
	for len(stack) > 0 {
		el := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(el) {
			return
		}
		children := el.Children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

func reverse(els []Element) []Element {
	out := make([]Element, len(els))
	for i, el := range els {
		out[len(els)-1-i] = el
	}
	return out
}
