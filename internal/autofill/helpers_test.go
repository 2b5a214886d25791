package autofill_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/loginfill/internal/autofill"
	"github.com/xkilldash9x/loginfill/internal/browser/dom"
)

// -- Test Helpers --

func newPage(t *testing.T, src string, opts ...dom.Option) *dom.Page {
	t.Helper()
	page, err := dom.ParseString(src, opts...)
	require.NoError(t, err)
	return page
}

func byID(t *testing.T, page *dom.Page, id string) *dom.Element {
	t.Helper()
	el, err := page.ByID(id)
	require.NoError(t, err, "element #%s not found", id)
	return el
}

// ids maps elements to their id attributes for readable assertions. A nil
// element maps to the empty string.
func ids(els []autofill.Element) []string {
	out := make([]string, 0, len(els))
	for _, el := range els {
		out = append(out, idOf(el))
	}
	return out
}

func idOf(el autofill.Element) string {
	if el == nil {
		return ""
	}
	id, _ := el.Attr("id")
	return id
}

func roots(t *testing.T, page *dom.Page) []autofill.Node {
	t.Helper()
	rs, err := autofill.EnumerateRoots(context.Background(), page)
	require.NoError(t, err)
	return rs
}
