// internal/autofill/visibility.go
package autofill

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	minFieldWidth  = 30
	minFieldHeight = 10
	opacityLimit   = 0.1
)

// Exclusion names the first visibility predicate an element failed.
type Exclusion string

const (
	Visible          Exclusion = ""
	ExcludedDisabled Exclusion = "disabled"
	ExcludedTooSmall Exclusion = "too-small"
	ExcludedType     Exclusion = "type-not-allowed"
	ExcludedHidden   Exclusion = "visibility-hidden"
	ExcludedOffView  Exclusion = "outside-viewport"
	ExcludedOpacity  Exclusion = "transparent"
)

// Check applies the exclusion predicates in order and returns the first one
// that fails. A nil allowed list accepts every type.
func Check(s RenderState, allowed []string) Exclusion {
	if s.Disabled {
		return ExcludedDisabled
	}
	if s.OffsetWidth < minFieldWidth || s.OffsetHeight < minFieldHeight {
		return ExcludedTooSmall
	}
	if allowed != nil && !typeAllowed(s.Type, allowed) {
		return ExcludedType
	}
	if s.Visibility == "hidden" {
		return ExcludedHidden
	}
	r := s.Rect
	if r.X+r.Width < 0 || r.Y+r.Height < 0 || r.X > s.Viewport.Width || r.Y > s.Viewport.Height {
		return ExcludedOffView
	}
	if accumulatedOpacity(s.Opacities) < opacityLimit {
		return ExcludedOpacity
	}
	return Visible
}

func typeAllowed(typ string, allowed []string) bool {
	typ = strings.ToLower(typ)
	for _, a := range allowed {
		if a == typ {
			return true
		}
	}
	return false
}

// accumulatedOpacity multiplies the chain innermost first and stops once the
// product is already below the limit.
func accumulatedOpacity(chain []float64) float64 {
	product := 1.0
	for _, o := range chain {
		if product < opacityLimit {
			break
		}
		product *= o
	}
	return product
}

// QueryVisible returns the inputs under roots matching rules that pass the
// visibility filter. Results are ordered rule-major, then root-major, then in
// document order. An element matched by several rules appears once, at its
// first position. Queries do not descend into fragments hosted below a root.
func QueryVisible(ctx context.Context, roots []Node, rules []Rule, allowed []string) ([]Element, error) {
	seen := make(map[Element]bool)
	var result []Element
	for _, rule := range rules {
		for _, root := range roots {
			var walkErr error
			walk(root, func(el Element) bool {
				if seen[el] || !rule.Match(el) {
					return true
				}
				seen[el] = true
				ok, err := isVisible(ctx, el, allowed)
				if err != nil {
					walkErr = err
					return false
				}
				if ok {
					result = append(result, el)
				}
				return true
			})
			if walkErr != nil {
				return nil, walkErr
			}
		}
	}
	return result, nil
}

func isVisible(ctx context.Context, el Element, allowed []string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	state, err := el.Probe(ctx)
	if err != nil {
		if errors.Is(err, ErrStale) {
			return false, nil
		}
		return false, fmt.Errorf("failed to probe %s: %w", el.Describe(), err)
	}
	return Check(state, allowed) == Visible, nil
}
