// internal/browser/dom/element.go
package dom

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/loginfill/internal/autofill"
)

// inputTypes are the type attribute values an input recognises. Anything else
// falls back to "text".
var inputTypes = map[string]bool{
	"button": true, "checkbox": true, "color": true, "date": true,
	"datetime-local": true, "email": true, "file": true, "hidden": true,
	"image": true, "month": true, "number": true, "password": true,
	"radio": true, "range": true, "reset": true, "search": true,
	"submit": true, "tel": true, "text": true, "time": true,
	"url": true, "week": true,
}

// Element is the canonical handle for one element of a Page.
type Element struct {
	page *Page
	node *html.Node

	// value is the value property once it has diverged from the attribute.
	value string
	dirty bool
}

var _ autofill.Element = (*Element)(nil)

// -- Structure --

func (e *Element) Children() []autofill.Element {
	if e.node.DataAtom == atom.Template {
		return nil
	}
	return e.page.children(e.node)
}

func (e *Element) Describe() string {
	top := e.node
	for top.Parent != nil {
		top = top.Parent
	}
	if frag, ok := e.page.fragments[top]; ok {
		return frag.Describe() + " " + generateXPath(e.node, func(n *html.Node) bool { return n == top })
	}
	return GenerateUniqueXPath(e.node)
}

func (e *Element) Tag() string { return e.node.Data }

func (e *Element) Attr(name string) (string, bool) {
	name = strings.ToLower(name)
	for _, a := range e.node.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (e *Element) Parent() autofill.Element {
	par := e.node.Parent
	if par == nil || par.Type != html.ElementNode {
		return nil
	}
	if _, ok := e.page.fragments[par]; ok {
		return nil
	}
	return e.page.wrap(par)
}

func (e *Element) Scope() autofill.Node {
	top := e.node
	for top.Parent != nil {
		top = top.Parent
	}
	if top == e.page.root {
		return e.page.document
	}
	if frag, ok := e.page.fragments[top]; ok {
		return frag
	}
	return &subtree{page: e.page, top: top}
}

func (e *Element) ShadowRoot() autofill.Node {
	frag, ok := e.page.shadows[e.node]
	if !ok {
		return nil
	}
	if frag.mode == "closed" && !e.page.elevated {
		return nil
	}
	return frag
}

// Fragment returns the attached shadow root regardless of its mode.
func (e *Element) Fragment() *Fragment { return e.page.shadows[e.node] }

// -- Render State --

// TypeProperty returns the normalised type of an input.
func (e *Element) TypeProperty() string {
	t := strings.ToLower(strings.TrimSpace(attr(e.node, "type")))
	if !inputTypes[t] {
		return "text"
	}
	return t
}

func (e *Element) Probe(ctx context.Context) (autofill.RenderState, error) {
	if err := ctx.Err(); err != nil {
		return autofill.RenderState{}, err
	}
	if !e.page.attached(e.node) {
		return autofill.RenderState{}, fmt.Errorf("%s: %w", e.Describe(), autofill.ErrStale)
	}
	boxes := e.page.layout()
	b := boxes.byNode[e.node]

	state := autofill.RenderState{
		Disabled:     e.disabled(),
		Type:         e.TypeProperty(),
		OffsetWidth:  b.rect.Width,
		OffsetHeight: b.rect.Height,
		Visibility:   e.page.visibility(e.node),
		Rect:         b.rect,
		MaxLength:    e.maxLength(),
		Viewport:     e.page.viewport,
	}
	for n := e.node; n != nil; {
		state.Opacities = append(state.Opacities, e.page.style(n).opacity())
		parent := e.page.wrap(n).Parent()
		if parent == nil {
			break
		}
		n = parent.(*Element).node
	}
	return state, nil
}

func (e *Element) disabled() bool {
	if hasAttr(e.node, "disabled") {
		return true
	}
	for p := e.node.Parent; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if p.DataAtom == atom.Fieldset && hasAttr(p, "disabled") {
			return true
		}
	}
	return false
}

func (e *Element) maxLength() int {
	v, ok := e.Attr("maxlength")
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// -- Live Operations --

func (e *Element) Dispatch(ctx context.Context, eventType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.page.dispatch(e, eventType)
	return nil
}

func (e *Element) Value(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.CurrentValue(), nil
}

// CurrentValue returns the value property without a context.
func (e *Element) CurrentValue() string {
	if e.dirty {
		return e.value
	}
	return attr(e.node, "value")
}

func (e *Element) SetAttr(ctx context.Context, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	setAttr(e.node, strings.ToLower(name), value)
	return nil
}

func (e *Element) SetValue(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Assign(value)
	return nil
}

// Assign writes the value property directly, as page script would.
func (e *Element) Assign(value string) {
	e.value = value
	e.dirty = true
}

// AddEventListener registers fn for events of type typ targeted at or bubbling
// through e.
func (e *Element) AddEventListener(typ string, capture bool, fn Listener) {
	e.page.listeners = append(e.page.listeners, &listener{node: e.node, typ: typ, capture: capture, fn: fn})
}

// Focus dispatches a focus event as a user click into the field would.
func (e *Element) Focus(ctx context.Context) error {
	return e.Dispatch(ctx, "focus")
}
