// internal/browser/dom/selector.go
package dom

import (
	"errors"
	"strings"

	"golang.org/x/net/html"
)

// -- Selectors --
//
// Supported: type, universal, #id, .class, [attr], [attr op value] with
// = ~= |= ^= $= *=, and the descendant, child, adjacent and general sibling
// combinators. A selector using anything else (pseudo-classes, pseudo-elements,
// namespaces) is rejected as a whole and never matches.

type combinator int

const (
	combinatorNone combinator = iota
	combinatorDescendant
	combinatorChild
	combinatorAdjacent
	combinatorSibling
)

type attrSelector struct {
	name  string
	op    string
	value string
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrSelector
}

func (c compound) valid() bool {
	return c.tag != "" || c.id != "" || len(c.classes) > 0 || len(c.attrs) > 0
}

type step struct {
	comb combinator // relation to the previous step
	sel  compound
}

type selector struct {
	steps []step
}

type specificity [3]int

func (a specificity) less(b specificity) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (s selector) specificity() specificity {
	var sp specificity
	for _, st := range s.steps {
		if st.sel.id != "" {
			sp[0]++
		}
		sp[1] += len(st.sel.classes) + len(st.sel.attrs)
		if st.sel.tag != "" && st.sel.tag != "*" {
			sp[2]++
		}
	}
	return sp
}

var errUnsupportedSelector = errors.New("unsupported selector")

type selectorParser struct {
	in  string
	pos int
}

// parseSelector parses one complex selector, as found between the commas of
// a rule prelude.
func parseSelector(raw string) (selector, error) {
	p := &selectorParser{in: strings.TrimSpace(raw)}
	var sel selector
	comb := combinatorNone
	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		c, err := p.compound()
		if err != nil {
			return selector{}, err
		}
		sel.steps = append(sel.steps, step{comb: comb, sel: c})
		comb = combinatorNone

		sawSpace := p.skipSpace()
		if p.eof() {
			break
		}
		switch p.peek() {
		case '>':
			comb = combinatorChild
			p.pos++
		case '+':
			comb = combinatorAdjacent
			p.pos++
		case '~':
			comb = combinatorSibling
			p.pos++
		default:
			if !sawSpace {
				return selector{}, errUnsupportedSelector
			}
			comb = combinatorDescendant
		}
	}
	// A dangling explicit combinator ("form >") selects nothing.
	if len(sel.steps) == 0 || comb != combinatorNone && comb != combinatorDescendant {
		return selector{}, errUnsupportedSelector
	}
	return sel, nil
}

func (p *selectorParser) compound() (compound, error) {
	var c compound
	if p.peek() == '*' {
		p.pos++
		c.tag = "*"
	} else if isIdentStart(p.peek()) {
		c.tag = strings.ToLower(p.ident())
	}
	for !p.eof() {
		switch p.peek() {
		case '#':
			p.pos++
			if c.id = p.ident(); c.id == "" {
				return c, errUnsupportedSelector
			}
		case '.':
			p.pos++
			cls := p.ident()
			if cls == "" {
				return c, errUnsupportedSelector
			}
			c.classes = append(c.classes, cls)
		case '[':
			p.pos++
			a, err := p.attribute()
			if err != nil {
				return c, err
			}
			c.attrs = append(c.attrs, a)
		case ' ', '\t', '\n', '\r', '>', '+', '~':
			if !c.valid() {
				return c, errUnsupportedSelector
			}
			return c, nil
		default:
			return c, errUnsupportedSelector
		}
	}
	if !c.valid() {
		return c, errUnsupportedSelector
	}
	return c, nil
}

func (p *selectorParser) attribute() (attrSelector, error) {
	p.skipSpace()
	name := strings.ToLower(p.ident())
	p.skipSpace()
	if name == "" || p.eof() {
		return attrSelector{}, errUnsupportedSelector
	}
	if p.peek() == ']' {
		p.pos++
		return attrSelector{name: name}, nil
	}

	var op strings.Builder
	if ch := p.peek(); strings.IndexByte("~|^$*", ch) >= 0 {
		op.WriteByte(ch)
		p.pos++
	}
	if p.eof() || p.peek() != '=' {
		return attrSelector{}, errUnsupportedSelector
	}
	op.WriteByte('=')
	p.pos++
	p.skipSpace()

	var value string
	if q := p.peek(); q == '"' || q == '\'' {
		p.pos++
		end := strings.IndexByte(p.in[p.pos:], q)
		if end < 0 {
			return attrSelector{}, errUnsupportedSelector
		}
		value = p.in[p.pos : p.pos+end]
		p.pos += end + 1
	} else {
		value = p.ident()
	}
	p.skipSpace()
	if p.eof() || p.peek() != ']' {
		return attrSelector{}, errUnsupportedSelector
	}
	p.pos++
	return attrSelector{name: name, op: op.String(), value: value}, nil
}

func (p *selectorParser) eof() bool { return p.pos >= len(p.in) }

func (p *selectorParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.in[p.pos]
}

func (p *selectorParser) skipSpace() bool {
	start := p.pos
	for !p.eof() && isSpace(p.peek()) {
		p.pos++
	}
	return p.pos > start
}

func (p *selectorParser) ident() string {
	start := p.pos
	for !p.eof() && isIdentChar(p.peek()) {
		p.pos++
	}
	return p.in[start:p.pos]
}

func isSpace(ch byte) bool { return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' }

func isIdentStart(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_' || ch == '-'
}

func isIdentChar(ch byte) bool { return isIdentStart(ch) || ch >= '0' && ch <= '9' }

// -- Matching --

// matches reports whether n satisfies sel. Ancestor and sibling steps never
// leave the tree scope n lives in.
func (p *Page) matches(n *html.Node, sel selector) bool {
	return p.matchFrom(n, sel, len(sel.steps)-1)
}

func (p *Page) matchFrom(n *html.Node, sel selector, i int) bool {
	if n == nil || n.Type != html.ElementNode || p.fragments[n] != nil {
		return false
	}
	st := sel.steps[i]
	if !matchesCompound(n, st.sel) {
		return false
	}
	if i == 0 {
		return true
	}
	switch st.comb {
	case combinatorDescendant:
		for a := n.Parent; a != nil; a = a.Parent {
			if p.matchFrom(a, sel, i-1) {
				return true
			}
		}
	case combinatorChild:
		return p.matchFrom(n.Parent, sel, i-1)
	case combinatorAdjacent:
		return p.matchFrom(prevElement(n), sel, i-1)
	case combinatorSibling:
		for s := prevElement(n); s != nil; s = prevElement(s) {
			if p.matchFrom(s, sel, i-1) {
				return true
			}
		}
	}
	return false
}

func prevElement(n *html.Node) *html.Node {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

func matchesCompound(n *html.Node, c compound) bool {
	if c.tag != "" && c.tag != "*" && strings.ToLower(n.Data) != c.tag {
		return false
	}
	if c.id != "" && (!hasAttr(n, "id") || attr(n, "id") != c.id) {
		return false
	}
	if len(c.classes) > 0 {
		have := strings.Fields(attr(n, "class"))
		for _, want := range c.classes {
			if !containsString(have, want) {
				return false
			}
		}
	}
	for _, a := range c.attrs {
		if !matchesAttr(n, a) {
			return false
		}
	}
	return true
}

func matchesAttr(n *html.Node, sel attrSelector) bool {
	if !hasAttr(n, sel.name) {
		return false
	}
	v := attr(n, sel.name)
	switch sel.op {
	case "":
		return true
	case "=":
		return v == sel.value
	case "~=":
		return containsString(strings.Fields(v), sel.value)
	case "|=":
		return v == sel.value || strings.HasPrefix(v, sel.value+"-")
	case "^=":
		return sel.value != "" && strings.HasPrefix(v, sel.value)
	case "$=":
		return sel.value != "" && strings.HasSuffix(v, sel.value)
	case "*=":
		return sel.value != "" && strings.Contains(v, sel.value)
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
