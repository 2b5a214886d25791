// internal/browser/dom/style.go
package dom

import (
	"sort"
	"strconv"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// -- User Agent Defaults --

const (
	baseFontSize = 16.0
	bodyMargin   = 8.0

	defaultInputWidth  = 170.0
	defaultInputHeight = 21.0
	toggleInputSize    = 13.0
	buttonInputWidth   = 60.0
)

// unrendered lists elements the user agent stylesheet hides.
var unrendered = map[string]bool{
	"head": true, "script": true, "style": true, "template": true,
	"title": true, "meta": true, "link": true, "noscript": true,
}

// -- Cascade --
//
// Author rules come from the <style> elements of the element's own tree
// scope: document sheets never reach into shadow trees and shadow sheets
// never leak out. Priority follows origin and importance, then specificity,
// then source order, with inline declarations above author rules.

type origin int

const (
	originAuthor origin = iota
	originInline
)

type styleRule struct {
	selectors []selector
	decls     []*css.Declaration
}

type cascaded struct {
	decl  *css.Declaration
	prio  int
	spec  specificity
	order int
}

func cascadePriority(o origin, important bool) int {
	prio := 1
	if o == originInline {
		prio = 2
	}
	if important {
		prio += 2
	}
	return prio
}

// computedStyle holds the cascaded declarations of one element, keyed by
// lower-cased property name.
type computedStyle map[string]string

// style resolves the cascaded values of n's own declarations. Inheritance is
// left to the callers that need it.
func (p *Page) style(n *html.Node) computedStyle {
	var decls []cascaded
	order := 0
	for _, r := range p.sheetsFor(n) {
		best, ok := specificity{}, false
		for _, sel := range r.selectors {
			if p.matches(n, sel) {
				if sp := sel.specificity(); !ok || best.less(sp) {
					best, ok = sp, true
				}
			}
		}
		if !ok {
			continue
		}
		for _, d := range r.decls {
			decls = append(decls, cascaded{decl: d, prio: cascadePriority(originAuthor, d.Important), spec: best, order: order})
			order++
		}
	}
	for _, d := range parseDeclarations(attr(n, "style")) {
		decls = append(decls, cascaded{decl: d, prio: cascadePriority(originInline, d.Important), order: order})
		order++
	}
	if len(decls) == 0 {
		return nil
	}

	sort.SliceStable(decls, func(i, j int) bool {
		a, b := decls[i], decls[j]
		if a.prio != b.prio {
			return a.prio < b.prio
		}
		if a.spec != b.spec {
			return a.spec.less(b.spec)
		}
		return a.order < b.order
	})
	style := make(computedStyle, len(decls))
	for _, c := range decls {
		style[strings.ToLower(strings.TrimSpace(c.decl.Property))] = strings.ToLower(strings.TrimSpace(c.decl.Value))
	}
	return style
}

// parseDeclarations parses a declaration list such as a style attribute.
func parseDeclarations(raw string) []*css.Declaration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	// The last declaration is only terminated by ";" or "}".
	if !strings.HasSuffix(raw, ";") {
		raw += ";"
	}
	decls, err := parser.ParseDeclarations(raw)
	if err != nil {
		return nil
	}
	return decls
}

// sheetsFor returns the author rules of the tree scope that contains n.
func (p *Page) sheetsFor(n *html.Node) []styleRule {
	scope := n
	for scope.Parent != nil {
		scope = scope.Parent
	}
	if rules, ok := p.sheets[scope]; ok {
		return rules
	}
	var rules []styleRule
	stack := []*html.Node{scope}
	var styles []*html.Node
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.Type == html.ElementNode && cur != scope {
			if cur.DataAtom == atom.Style {
				styles = append(styles, cur)
				continue
			}
			if cur.DataAtom == atom.Template {
				continue
			}
		}
		for c := cur.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
	for _, st := range styles {
		rules = append(rules, parseSheet(textContent(st))...)
	}
	p.sheets[scope] = rules
	return rules
}

// parseSheet keeps every rule parsed before the first syntax error. Rules
// inside at-rules are ignored.
func parseSheet(text string) []styleRule {
	sheet, _ := parser.NewParser(text).ParseStylesheet()
	if sheet == nil {
		return nil
	}
	var out []styleRule
	for _, r := range sheet.Rules {
		if r.Kind != css.QualifiedRule || len(r.Declarations) == 0 {
			continue
		}
		var sels []selector
		for _, raw := range r.Selectors {
			if sel, err := parseSelector(raw); err == nil {
				sels = append(sels, sel)
			}
		}
		if len(sels) > 0 {
			out = append(out, styleRule{selectors: sels, decls: r.Declarations})
		}
	}
	return out
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func (s computedStyle) get(prop string) (string, bool) {
	v, ok := s[prop]
	return v, ok && v != "" && v != "inherit" && v != "initial" && v != "unset"
}

// length parses px, em, rem, vw, vh and unitless values. ok is false for
// auto, percentages and anything unparsable.
func (s computedStyle) length(prop string, viewportW, viewportH float64) (float64, bool) {
	v, ok := s.get(prop)
	if !ok {
		return 0, false
	}
	return parseLength(v, viewportW, viewportH)
}

func parseLength(v string, viewportW, viewportH float64) (float64, bool) {
	num := func(suffix string) (float64, bool) {
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, suffix), 64)
		return f, err == nil
	}
	switch {
	case strings.HasSuffix(v, "px"):
		return num("px")
	case strings.HasSuffix(v, "rem"):
		f, ok := num("rem")
		return f * baseFontSize, ok
	case strings.HasSuffix(v, "em"):
		f, ok := num("em")
		return f * baseFontSize, ok
	case strings.HasSuffix(v, "vw"):
		f, ok := num("vw")
		return viewportW * f / 100, ok
	case strings.HasSuffix(v, "vh"):
		f, ok := num("vh")
		return viewportH * f / 100, ok
	}
	return num("")
}

// opacity returns the element's own opacity, clamped to [0, 1].
func (s computedStyle) opacity() float64 {
	v, ok := s.get("opacity")
	if !ok {
		return 1
	}
	var f float64
	var err error
	if strings.HasSuffix(v, "%") {
		f, err = strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
		f /= 100
	} else {
		f, err = strconv.ParseFloat(v, 64)
	}
	if err != nil {
		return 1
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func (s computedStyle) positioned() bool {
	v, _ := s.get("position")
	return v == "absolute" || v == "fixed"
}

func (s computedStyle) zIndex() int {
	v, ok := s.get("z-index")
	if !ok {
		return 0
	}
	z, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return z
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}
