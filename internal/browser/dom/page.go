// internal/browser/dom/page.go
package dom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/loginfill/internal/autofill"
)

// ErrNotFound is returned when a lookup matches no element.
var ErrNotFound = errors.New("no element matches")

// DefaultViewport is used when no viewport option is given.
var DefaultViewport = autofill.Size{Width: 1280, Height: 720}

// -- Page --

// Page is an in-memory document that implements autofill.Host. It is not
// safe for concurrent use; listeners run synchronously on the caller's
// goroutine.
type Page struct {
	root      *html.Node
	document  *Document
	elements  map[*html.Node]*Element
	fragments map[*html.Node]*Fragment // keyed by container
	shadows   map[*html.Node]*Fragment // keyed by host
	order     []*Fragment
	sheets    map[*html.Node][]styleRule // keyed by scope root

	viewport autofill.Size
	elevated bool
	url      string

	listeners []*listener
	focusFns  []func(autofill.Element)
}

// Option configures a Page.
type Option func(*Page)

// WithViewport sets the viewport size used for layout and hit testing.
func WithViewport(width, height float64) Option {
	return func(p *Page) { p.viewport = autofill.Size{Width: width, Height: height} }
}

// WithElevatedAccess makes closed shadow roots reachable.
func WithElevatedAccess() Option {
	return func(p *Page) { p.elevated = true }
}

// WithURL records the address the page was loaded from.
func WithURL(u string) Option {
	return func(p *Page) { p.url = u }
}

// Parse reads an HTML document. Declarative shadow roots
// (<template shadowrootmode="open|closed">) are attached to their hosts.
func Parse(r io.Reader, opts ...Option) (*Page, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	p := &Page{
		root:      root,
		elements:  make(map[*html.Node]*Element),
		fragments: make(map[*html.Node]*Fragment),
		shadows:   make(map[*html.Node]*Fragment),
		sheets:    make(map[*html.Node][]styleRule),
		viewport:  DefaultViewport,
	}
	p.document = &Document{page: p}
	for _, opt := range opts {
		opt(p)
	}
	p.attachShadowRoots(root)
	return p, nil
}

// ParseString is Parse over a string.
func ParseString(s string, opts ...Option) (*Page, error) {
	return Parse(strings.NewReader(s), opts...)
}

// attachShadowRoots detaches every declarative shadow template under n and
// turns it into a fragment of its parent element.
func (p *Page) attachShadowRoots(n *html.Node) {
	stack := []*html.Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for c := cur.FirstChild; c != nil; {
			next := c.NextSibling
			if cur.Type == html.ElementNode && c.Type == html.ElementNode && c.DataAtom == atom.Template {
				mode := strings.ToLower(attr(c, "shadowrootmode"))
				if (mode == "open" || mode == "closed") && p.shadows[cur] == nil {
					cur.RemoveChild(c)
					frag := &Fragment{page: p, host: cur, container: c, mode: mode}
					p.fragments[c] = frag
					p.shadows[cur] = frag
					p.order = append(p.order, frag)
				}
			}
			stack = append(stack, c)
			c = next
		}
	}
}

// Document returns the document root.
func (p *Page) Document(ctx context.Context) (autofill.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.document, nil
}

// URL returns the address given with WithURL.
func (p *Page) URL(ctx context.Context) (string, error) {
	return p.url, nil
}

// NotifyFocus registers fn to run whenever an input receives a focus or blur
// event.
func (p *Page) NotifyFocus(fn func(autofill.Element)) {
	p.focusFns = append(p.focusFns, fn)
}

// Viewport returns the configured viewport size.
func (p *Page) Viewport() autofill.Size { return p.viewport }

func (p *Page) wrap(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	if el, ok := p.elements[n]; ok {
		return el
	}
	el := &Element{page: p, node: n}
	p.elements[n] = el
	return el
}

// attached reports whether n is reachable from the document, possibly through
// shadow hosts.
func (p *Page) attached(n *html.Node) bool {
	for n != nil {
		top := n
		for top.Parent != nil {
			top = top.Parent
		}
		if top == p.root {
			return true
		}
		frag, ok := p.fragments[top]
		if !ok {
			return false
		}
		n = frag.host
	}
	return false
}

// -- Lookup --

// FindXPath returns the first element matching expr in the document or, failing
// that, in each shadow root in attachment order.
func (p *Page) FindXPath(expr string) (*Element, error) {
	scopes := []*html.Node{p.root}
	for _, f := range p.order {
		scopes = append(scopes, f.container)
	}
	for _, scope := range scopes {
		n, err := htmlquery.Query(scope, expr)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
		}
		if n != nil && n.Type == html.ElementNode && n != scope {
			return p.wrap(n), nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrNotFound, expr)
}

// ByID finds an element by id anywhere in the page.
func (p *Page) ByID(id string) (*Element, error) {
	return p.FindXPath(fmt.Sprintf("//*[@id='%s']", id))
}

// -- Mutation --

// Replace swaps old for the elements parsed from markup and returns the first
// of them. Handles to old become stale.
func (p *Page) Replace(old *Element, markup string) (*Element, error) {
	parent := old.node.Parent
	if parent == nil {
		return nil, fmt.Errorf("cannot replace detached %s", old.Describe())
	}
	ctxNode := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctxNode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse replacement: %w", err)
	}
	var first *html.Node
	for _, n := range nodes {
		parent.InsertBefore(n, old.node)
		p.attachShadowRoots(n)
		if first == nil && n.Type == html.ElementNode {
			first = n
		}
	}
	parent.RemoveChild(old.node)
	p.sheets = make(map[*html.Node][]styleRule)
	if first == nil {
		return nil, nil
	}
	return p.wrap(first), nil
}

// -- Rendering --

// Render writes the page as HTML, serialising shadow roots declaratively.
func (p *Page) Render(w io.Writer) error {
	for _, f := range p.order {
		f.host.InsertBefore(f.container, f.host.FirstChild)
	}
	defer func() {
		for _, f := range p.order {
			f.host.RemoveChild(f.container)
		}
	}()
	return html.Render(w, p.root)
}

// HTML renders the page into a string.
func (p *Page) HTML() (string, error) {
	var b strings.Builder
	if err := p.Render(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// -- Scopes --

// Document is the root scope of a Page.
type Document struct {
	page *Page
}

func (d *Document) Children() []autofill.Element { return d.page.children(d.page.root) }

func (d *Document) Describe() string { return "#document" }

// Fragment is a shadow root attached to a host element.
type Fragment struct {
	page      *Page
	host      *html.Node
	container *html.Node
	mode      string
}

func (f *Fragment) Children() []autofill.Element { return f.page.children(f.container) }

func (f *Fragment) Describe() string {
	return fmt.Sprintf("#shadow-root(%s) of %s", f.mode, f.Host().Describe())
}

// Host returns the element the fragment is attached to.
func (f *Fragment) Host() *Element { return f.page.wrap(f.host) }

// Mode returns "open" or "closed".
func (f *Fragment) Mode() string { return f.mode }

// subtree is the scope of a detached element.
type subtree struct {
	page *Page
	top  *html.Node
}

func (s *subtree) Children() []autofill.Element { return s.page.children(s.top) }

func (s *subtree) Describe() string { return "#detached" }

func (p *Page) children(n *html.Node) []autofill.Element {
	var out []autofill.Element
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, p.wrap(c))
		}
	}
	return out
}
