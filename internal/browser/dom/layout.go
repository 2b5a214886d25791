// internal/browser/dom/layout.go
package dom

import (
	"context"
	"sort"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/loginfill/internal/autofill"
)

// -- Block Flow Layout --
//
// Inputs and explicitly sized elements get boxes; everything else only
// contributes flow. Un-positioned boxes stack
// vertically from the body margin; absolute and fixed boxes are placed at
// their left/top offsets and start a new flow for their children.

type box struct {
	rect       autofill.Rect
	positioned bool
	z          int
	order      int
}

type layoutResult struct {
	byNode map[*html.Node]box
	paint  []*html.Node
}

type layoutFrame struct {
	node     *html.Node
	entering bool
	x        float64

	// exit bookkeeping
	restore  bool
	cursor   float64
	minFloor float64
}

func (p *Page) layout() *layoutResult {
	res := &layoutResult{byNode: make(map[*html.Node]box)}
	cursor := bodyMargin
	order := 0

	stack := []layoutFrame{}
	for _, c := range reverseNodes(elementChildren(p.root)) {
		stack = append(stack, layoutFrame{node: c, entering: true, x: bodyMargin})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !f.entering {
			if f.restore {
				cursor = f.cursor
			} else if cursor < f.minFloor {
				cursor = f.minFloor
			}
			continue
		}

		n := f.node
		st := p.style(n)
		if p.hiddenByDisplay(n, st) {
			continue
		}

		positioned := st.positioned()
		width, hasW := st.length("width", p.viewport.Width, p.viewport.Height)
		height, hasH := st.length("height", p.viewport.Width, p.viewport.Height)
		left, _ := st.length("left", p.viewport.Width, p.viewport.Height)
		top, _ := st.length("top", p.viewport.Width, p.viewport.Height)

		if n.DataAtom == atom.Input {
			dw, dh := intrinsicSize(p.wrap(n).TypeProperty())
			if !hasW {
				width = dw
			}
			if !hasH {
				height = dh
			}
			r := autofill.Rect{X: f.x, Y: cursor, Width: width, Height: height}
			if positioned {
				r.X, r.Y = left, top
			} else {
				cursor += height
			}
			res.byNode[n] = box{rect: r, positioned: positioned, z: st.zIndex(), order: order}
			order++
			continue
		}

		childX := f.x
		exit := layoutFrame{node: n}
		switch {
		case positioned:
			if !hasW {
				width = 0
			}
			if !hasH {
				height = 0
			}
			res.byNode[n] = box{
				rect:       autofill.Rect{X: left, Y: top, Width: width, Height: height},
				positioned: true, z: st.zIndex(), order: order,
			}
			order++
			exit.restore = true
			exit.cursor = cursor
			cursor = top
			childX = left
		case hasH:
			if !hasW {
				width = p.viewport.Width - 2*bodyMargin
			}
			res.byNode[n] = box{
				rect:  autofill.Rect{X: f.x, Y: cursor, Width: width, Height: height},
				z:     st.zIndex(),
				order: order,
			}
			order++
			exit.minFloor = cursor + height
		}

		stack = append(stack, exit)
		for _, c := range reverseNodes(p.flatChildren(n)) {
			stack = append(stack, layoutFrame{node: c, entering: true, x: childX})
		}
	}

	for n := range res.byNode {
		res.paint = append(res.paint, n)
	}
	sort.SliceStable(res.paint, func(i, j int) bool {
		a, b := res.byNode[res.paint[i]], res.byNode[res.paint[j]]
		if a.positioned != b.positioned {
			return !a.positioned
		}
		if a.z != b.z {
			return a.z < b.z
		}
		return a.order < b.order
	})
	return res
}

func intrinsicSize(typ string) (float64, float64) {
	switch typ {
	case "checkbox", "radio":
		return toggleInputSize, toggleInputSize
	case "submit", "button", "reset", "image":
		return buttonInputWidth, defaultInputHeight
	}
	return defaultInputWidth, defaultInputHeight
}

func (p *Page) hiddenByDisplay(n *html.Node, st computedStyle) bool {
	if unrendered[n.Data] || hasAttr(n, "hidden") {
		return true
	}
	if d, ok := st.get("display"); ok && d == "none" {
		return true
	}
	return n.DataAtom == atom.Input && p.wrap(n).TypeProperty() == "hidden"
}

// flatChildren returns the rendered children of n: a shadow host renders its
// shadow tree, and a slot renders the host children assigned to it.
func (p *Page) flatChildren(n *html.Node) []*html.Node {
	if frag, ok := p.shadows[n]; ok {
		return elementChildren(frag.container)
	}
	if n.DataAtom == atom.Template {
		return nil
	}
	if n.Data == "slot" {
		if frag := p.fragmentOf(n); frag != nil {
			name := attr(n, "name")
			var assigned []*html.Node
			for _, c := range elementChildren(frag.host) {
				if attr(c, "slot") == name {
					assigned = append(assigned, c)
				}
			}
			if len(assigned) > 0 {
				return assigned
			}
		}
	}
	return elementChildren(n)
}

func (p *Page) fragmentOf(n *html.Node) *Fragment {
	top := n
	for top.Parent != nil {
		top = top.Parent
	}
	return p.fragments[top]
}

// flatParent steps out of a shadow root into its host.
func (p *Page) flatParent(n *html.Node) *html.Node {
	if n.Parent == nil {
		return nil
	}
	if frag, ok := p.fragments[n.Parent]; ok {
		return frag.host
	}
	if n.Parent.Type != html.ElementNode {
		return nil
	}
	return n.Parent
}

// inherited resolves an inherited property along the flat tree.
func (p *Page) inherited(n *html.Node, prop, initial string) string {
	for cur := n; cur != nil; cur = p.flatParent(cur) {
		if v, ok := p.style(cur).get(prop); ok {
			return v
		}
	}
	return initial
}

func (p *Page) visibility(n *html.Node) string {
	return p.inherited(n, "visibility", "visible")
}

// -- Hit Testing --

// ElementFromPoint returns the topmost painted element at (x, y), retargeted
// to the document scope like document.elementFromPoint. Points inside the
// viewport that hit nothing return the body.
func (p *Page) ElementFromPoint(ctx context.Context, x, y float64) (autofill.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if x < 0 || y < 0 || x > p.viewport.Width || y > p.viewport.Height {
		return nil, nil
	}
	res := p.layout()
	for i := len(res.paint) - 1; i >= 0; i-- {
		n := res.paint[i]
		r := res.byNode[n].rect
		if x < r.X || x >= r.X+r.Width || y < r.Y || y >= r.Y+r.Height {
			continue
		}
		if p.visibility(n) == "hidden" || p.inherited(n, "pointer-events", "auto") == "none" {
			continue
		}
		for {
			frag := p.fragmentOf(n)
			if frag == nil {
				break
			}
			n = frag.host
		}
		return p.wrap(n), nil
	}
	if body := p.body(); body != nil {
		return p.wrap(body), nil
	}
	return nil, nil
}

func (p *Page) body() *html.Node {
	for _, c := range elementChildren(p.root) {
		for _, b := range elementChildren(c) {
			if b.DataAtom == atom.Body {
				return b
			}
		}
	}
	return nil
}

func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func reverseNodes(ns []*html.Node) []*html.Node {
	for i, j := 0, len(ns)-1; i < j; i, j = i+1, j-1 {
		ns[i], ns[j] = ns[j], ns[i]
	}
	return ns
}
