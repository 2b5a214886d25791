// internal/browser/session/element.go
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"

	"github.com/xkilldash9x/loginfill/internal/autofill"
)

// Document is the root scope of the latest snapshot.
type Document struct {
	host     *Host
	children []*Element
}

func (d *Document) Children() []autofill.Element {
	d.host.mu.RLock()
	defer d.host.mu.RUnlock()
	return toElements(d.children)
}

func (d *Document) Describe() string { return "#document" }

// Fragment is a shadow root reachable under the host's policy.
type Fragment struct {
	host     *Element
	mode     string
	children []*Element
}

func (f *Fragment) Children() []autofill.Element {
	f.host.host.mu.RLock()
	defer f.host.host.mu.RUnlock()
	return toElements(f.children)
}

func (f *Fragment) Describe() string {
	return fmt.Sprintf("#shadow-root(%s) of %s", f.mode, f.host.Describe())
}

// Element is a canonical handle to one backend node.
type Element struct {
	host *Host
	id   cdp.BackendNodeID

	// Guarded by host.mu.
	tag      string
	attrs    []string
	parent   *Element
	scope    autofill.Node
	children []*Element
	shadow   *Fragment
	detached bool
}

var _ autofill.Element = (*Element)(nil)

func toElements(els []*Element) []autofill.Element {
	out := make([]autofill.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out
}

// BackendNodeID identifies the node across CDP sessions.
func (e *Element) BackendNodeID() cdp.BackendNodeID { return e.id }

// -- Structure --

func (e *Element) Children() []autofill.Element {
	e.host.mu.RLock()
	defer e.host.mu.RUnlock()
	return toElements(e.children)
}

func (e *Element) Tag() string {
	e.host.mu.RLock()
	defer e.host.mu.RUnlock()
	return e.tag
}

func (e *Element) Attr(name string) (string, bool) {
	e.host.mu.RLock()
	defer e.host.mu.RUnlock()
	return e.attr(name)
}

func (e *Element) attr(name string) (string, bool) {
	for i := 0; i+1 < len(e.attrs); i += 2 {
		if strings.EqualFold(e.attrs[i], name) {
			return e.attrs[i+1], true
		}
	}
	return "", false
}

func (e *Element) Parent() autofill.Element {
	e.host.mu.RLock()
	defer e.host.mu.RUnlock()
	if e.parent == nil {
		return nil
	}
	return e.parent
}

func (e *Element) Scope() autofill.Node {
	e.host.mu.RLock()
	defer e.host.mu.RUnlock()
	return e.scope
}

func (e *Element) ShadowRoot() autofill.Node {
	e.host.mu.RLock()
	defer e.host.mu.RUnlock()
	if e.shadow == nil {
		return nil
	}
	return e.shadow
}

// Describe renders an XPath anchored at the nearest id, prefixed with the
// shadow root the element lives in.
func (e *Element) Describe() string {
	e.host.mu.RLock()
	path, frag := e.xpath()
	e.host.mu.RUnlock()
	if frag != nil {
		return frag.Describe() + " " + path
	}
	return path
}

func (e *Element) xpath() (string, *Fragment) {
	var path []string
	var top *Element
	for el := e; el != nil; el = el.parent {
		top = el
		if id, _ := el.attr("id"); id != "" {
			path = append(path, fmt.Sprintf(`//*[@id='%s']`, id))
			break
		}
		path = append(path, fmt.Sprintf("%s[%d]", el.tag, el.index()))
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	xpath := strings.Join(path, "/")
	if !strings.HasPrefix(xpath, "//*[@id=") {
		xpath = "/" + xpath
	}
	frag, _ := top.scope.(*Fragment)
	return xpath, frag
}

// index is the 1-based position among same-tag siblings.
func (e *Element) index() int {
	var siblings []*Element
	switch {
	case e.parent != nil:
		siblings = e.parent.children
	case e.scope != nil:
		switch s := e.scope.(type) {
		case *Document:
			siblings = s.children
		case *Fragment:
			siblings = s.children
		}
	}
	n := 1
	for _, s := range siblings {
		if s == e {
			break
		}
		if s.tag == e.tag {
			n++
		}
	}
	return n
}

// -- Live Operations --

type probeResult struct {
	Disabled     bool    `json:"disabled"`
	Type         string  `json:"type"`
	OffsetWidth  float64 `json:"offsetWidth"`
	OffsetHeight float64 `json:"offsetHeight"`
	Visibility   string  `json:"visibility"`
	Rect         struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	} `json:"rect"`
	Opacities []float64 `json:"opacities"`
	MaxLength int       `json:"maxLength"`
	Viewport  struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	} `json:"viewport"`
}

func (e *Element) Probe(ctx context.Context) (autofill.RenderState, error) {
	if e.isDetached() {
		return autofill.RenderState{}, fmt.Errorf("%s: %w", e.Describe(), autofill.ErrStale)
	}
	var res probeResult
	ok, err := e.host.call(ctx, e, probeFunction, &res)
	if err != nil {
		return autofill.RenderState{}, err
	}
	if !ok {
		return autofill.RenderState{}, fmt.Errorf("%s: %w", e.Describe(), autofill.ErrStale)
	}

	typ := res.Type
	if typ == "" {
		typ = "text"
	}
	return autofill.RenderState{
		Disabled:     res.Disabled,
		Type:         typ,
		OffsetWidth:  res.OffsetWidth,
		OffsetHeight: res.OffsetHeight,
		Visibility:   res.Visibility,
		Rect: autofill.Rect{
			X:      res.Rect.X,
			Y:      res.Rect.Y,
			Width:  res.Rect.Width,
			Height: res.Rect.Height,
		},
		Opacities: res.Opacities,
		MaxLength: res.MaxLength,
		Viewport:  autofill.Size{Width: res.Viewport.Width, Height: res.Viewport.Height},
	}, nil
}

func (e *Element) isDetached() bool {
	e.host.mu.RLock()
	defer e.host.mu.RUnlock()
	return e.detached
}

func (e *Element) Dispatch(ctx context.Context, eventType string) error {
	_, err := e.host.call(ctx, e, dispatchFunction, nil, eventType)
	return err
}

func (e *Element) Value(ctx context.Context) (string, error) {
	var v string
	if _, err := e.host.call(ctx, e, valueFunction, &v); err != nil {
		return "", err
	}
	return v, nil
}

func (e *Element) SetAttr(ctx context.Context, name, value string) error {
	_, err := e.host.call(ctx, e, setAttributeFunction, nil, name, value)
	return err
}

func (e *Element) SetValue(ctx context.Context, value string) error {
	_, err := e.host.call(ctx, e, setValueFunction, nil, value)
	return err
}
