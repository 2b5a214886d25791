// internal/autofill/roots.go
package autofill

import (
	"context"
	"fmt"
)

type frame struct {
	node     Node
	entering bool
	fragment bool
}

// EnumerateRoots returns the document followed by every reachable isolated
// fragment that contains at least one input. Fragments are recorded when the
// traversal leaves them, so nested fragments precede their hosts' fragments.
func EnumerateRoots(ctx context.Context, host Host) ([]Node, error) {
	doc, err := host.Document(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return CollectRoots(doc), nil
}

// CollectRoots walks doc with an explicit stack in two phases per node.
func CollectRoots(doc Node) []Node {
	roots := []Node{doc}
	counts := []int{0}

	stack := []frame{{node: doc, entering: true, fragment: false}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !f.entering {
			if f.fragment {
				n := counts[len(counts)-1]
				counts = counts[:len(counts)-1]
				if n > 0 {
					roots = append(roots, f.node)
				}
			}
			continue
		}

		stack = append(stack, frame{node: f.node, fragment: f.fragment})
		if f.fragment {
			counts = append(counts, 0)
		}
		if el, ok := f.node.(Element); ok && !f.fragment {
			if IsInput(el) {
				counts[len(counts)-1]++
			}
		}
		for _, child := range f.node.Children() {
			stack = append(stack, frame{node: child, entering: true})
		}
		if el, ok := f.node.(Element); ok && !f.fragment {
			if sr := el.ShadowRoot(); sr != nil {
				stack = append(stack, frame{node: sr, entering: true, fragment: true})
			}
		}
	}
	return roots
}
