// internal/browser/session/host_test.go
package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/loginfill/internal/autofill"
)

// loginSnapshot builds:
//
//	<html><head></head><body>
//	  text
//	  <form id="login"><input name="user"><input type="password"></form>
//	  <div>#shadow-root(open)<input></div>
//	  <span>#shadow-root(closed)<input></span>
//	  <input>#shadow-root(user-agent)<div></div></input>
//	</body></html>
func loginSnapshot() *cdp.Node {
	return docNode(
		elNode(1, "html", nil,
			elNode(2, "head", nil),
			elNode(3, "body", nil,
				textNode(4, "Sign in"),
				elNode(5, "form", attrs("id", "login"),
					elNode(6, "input", attrs("name", "user")),
					elNode(7, "input", attrs("type", "password")),
				),
				withShadow(elNode(8, "div", nil), cdp.ShadowRootTypeOpen, elNode(9, "input", nil)),
				withShadow(elNode(10, "span", nil), cdp.ShadowRootTypeClosed, elNode(11, "input", nil)),
				withShadow(elNode(12, "input", nil), cdp.ShadowRootTypeUserAgent, elNode(13, "div", nil)),
			),
		),
	)
}

func newTestHost(t *testing.T, exec *mockExecutor, opts ...Option) *Host {
	t.Helper()
	return NewHost(context.Background(), exec, zaptest.NewLogger(t), opts...)
}

// byID walks the handle registry; tests use it to reach nodes without
// depending on traversal helpers from the core.
func byID(t *testing.T, h *Host, id cdp.BackendNodeID) *Element {
	t.Helper()
	h.mu.RLock()
	defer h.mu.RUnlock()
	el, ok := h.elements[id]
	require.True(t, ok, "backend node %d not in snapshot", id)
	return el
}

func TestHost_Document(t *testing.T) {
	ctx := context.Background()

	t.Run("builds element tree", func(t *testing.T) {
		exec := new(mockExecutor)
		exec.On("GetDocument", mock.Anything).Return(loginSnapshot(), nil)
		h := newTestHost(t, exec)

		doc, err := h.Document(ctx)
		require.NoError(t, err)
		assert.Equal(t, "#document", doc.Describe())
		require.Len(t, doc.Children(), 1)

		body := byID(t, h, 3)
		var tags []string
		for _, c := range body.Children() {
			tags = append(tags, c.Tag())
		}
		assert.Equal(t, []string{"form", "div", "span", "input"}, tags, "text nodes are not elements")

		user := byID(t, h, 6)
		assert.Equal(t, "form", user.Parent().Tag())
		v, ok := user.Attr("NAME")
		assert.True(t, ok)
		assert.Equal(t, "user", v)
		assert.Equal(t, doc, user.Scope())
		assert.Nil(t, byID(t, h, 1).Parent())
	})

	t.Run("open shadow roots become fragments", func(t *testing.T) {
		exec := new(mockExecutor)
		exec.On("GetDocument", mock.Anything).Return(loginSnapshot(), nil)
		h := newTestHost(t, exec)

		_, err := h.Document(ctx)
		require.NoError(t, err)

		frag := byID(t, h, 8).ShadowRoot()
		require.NotNil(t, frag)
		require.Len(t, frag.Children(), 1)
		inner := frag.Children()[0]
		assert.Nil(t, inner.Parent(), "parent is bounded by the fragment")
		assert.Equal(t, frag, inner.Scope())
		assert.Equal(t, "#shadow-root(open) of /html[1]/body[1]/div[1] /input[1]", inner.Describe())

		assert.Nil(t, byID(t, h, 10).ShadowRoot(), "closed roots need elevated access")
		assert.Nil(t, byID(t, h, 12).ShadowRoot(), "user-agent roots are never exposed")
	})

	t.Run("closed shadow roots with elevated access", func(t *testing.T) {
		exec := new(mockExecutor)
		exec.On("GetDocument", mock.Anything).Return(loginSnapshot(), nil)
		h := newTestHost(t, exec, WithClosedShadowRoots(true))

		_, err := h.Document(ctx)
		require.NoError(t, err)

		frag := byID(t, h, 10).ShadowRoot()
		require.NotNil(t, frag)
		assert.Contains(t, frag.Describe(), "#shadow-root(closed)")
		assert.Nil(t, byID(t, h, 12).ShadowRoot())
	})

	t.Run("handles are canonical across snapshots", func(t *testing.T) {
		exec := new(mockExecutor)
		exec.On("GetDocument", mock.Anything).Return(loginSnapshot(), nil)
		h := newTestHost(t, exec)

		_, err := h.Document(ctx)
		require.NoError(t, err)
		first := byID(t, h, 6)

		_, err = h.Document(ctx)
		require.NoError(t, err)
		assert.Same(t, first, byID(t, h, 6))
	})

	t.Run("removed nodes go stale", func(t *testing.T) {
		exec := new(mockExecutor)
		exec.On("GetDocument", mock.Anything).Return(loginSnapshot(), nil).Once()
		exec.On("GetDocument", mock.Anything).Return(docNode(elNode(1, "html", nil)), nil).Once()
		h := newTestHost(t, exec)

		_, err := h.Document(ctx)
		require.NoError(t, err)
		user := byID(t, h, 6)

		_, err = h.Document(ctx)
		require.NoError(t, err)
		_, err = user.Probe(ctx)
		assert.ErrorIs(t, err, autofill.ErrStale)
		exec.AssertNotCalled(t, "ResolveNode", mock.Anything, mock.Anything)
	})

	t.Run("snapshot failure", func(t *testing.T) {
		exec := new(mockExecutor)
		exec.On("GetDocument", mock.Anything).Return(nil, errors.New("target closed"))
		h := newTestHost(t, exec)

		_, err := h.Document(ctx)
		assert.ErrorContains(t, err, "failed to snapshot document")
	})
}

func TestElement_Describe(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("GetDocument", mock.Anything).Return(loginSnapshot(), nil)
	h := newTestHost(t, exec)
	_, err := h.Document(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "//*[@id='login']", byID(t, h, 5).Describe())
	assert.Equal(t, "//*[@id='login']/input[2]", byID(t, h, 7).Describe())
	assert.Equal(t, "/html[1]/body[1]/input[1]", byID(t, h, 12).Describe())
}

func TestElement_Probe(t *testing.T) {
	ctx := context.Background()
	setup := func(t *testing.T) (*mockExecutor, *Host, *Element) {
		exec := new(mockExecutor)
		exec.On("GetDocument", mock.Anything).Return(loginSnapshot(), nil)
		h := newTestHost(t, exec)
		_, err := h.Document(ctx)
		require.NoError(t, err)
		return exec, h, byID(t, h, 7)
	}
	isProbe := mock.MatchedBy(func(p *runtime.CallFunctionOnParams) bool {
		return p.FunctionDeclaration == probeFunction && p.ObjectID == "obj-7" && p.ReturnByValue
	})

	t.Run("decodes render state", func(t *testing.T) {
		exec, _, el := setup(t)
		exec.On("ResolveNode", mock.Anything, cdp.BackendNodeID(7)).
			Return(&runtime.RemoteObject{ObjectID: "obj-7"}, nil).Once()
		exec.On("CallFunctionOn", mock.Anything, isProbe).Return(jsonResult(`{
			"disabled": false, "type": "password", "offsetWidth": 170, "offsetHeight": 21,
			"visibility": "visible", "rect": {"x": 8, "y": 30, "width": 170, "height": 21},
			"opacities": [1, 0.5], "maxLength": 12, "viewport": {"width": 1280, "height": 720}
		}`), nil, nil)

		st, err := el.Probe(ctx)
		require.NoError(t, err)
		assert.Equal(t, autofill.RenderState{
			Type:         "password",
			OffsetWidth:  170,
			OffsetHeight: 21,
			Visibility:   "visible",
			Rect:         autofill.Rect{X: 8, Y: 30, Width: 170, Height: 21},
			Opacities:    []float64{1, 0.5},
			MaxLength:    12,
			Viewport:     autofill.Size{Width: 1280, Height: 720},
		}, st)

		// The remote object is cached until the next snapshot.
		_, err = el.Probe(ctx)
		require.NoError(t, err)
		exec.AssertNumberOfCalls(t, "ResolveNode", 1)
	})

	t.Run("null result means disconnected", func(t *testing.T) {
		exec, _, el := setup(t)
		exec.On("ResolveNode", mock.Anything, cdp.BackendNodeID(7)).
			Return(&runtime.RemoteObject{ObjectID: "obj-7"}, nil)
		exec.On("CallFunctionOn", mock.Anything, isProbe).Return(jsonResult(`null`), nil, nil)

		_, err := el.Probe(ctx)
		assert.ErrorIs(t, err, autofill.ErrStale)
	})

	t.Run("unknown node means stale", func(t *testing.T) {
		exec, _, el := setup(t)
		exec.On("ResolveNode", mock.Anything, cdp.BackendNodeID(7)).
			Return(nil, errors.New("No node with given id found"))

		_, err := el.Probe(ctx)
		assert.ErrorIs(t, err, autofill.ErrStale)
		assert.Contains(t, err.Error(), "//*[@id='login']/input[2]")
	})

	t.Run("script exception", func(t *testing.T) {
		exec, _, el := setup(t)
		exec.On("ResolveNode", mock.Anything, cdp.BackendNodeID(7)).
			Return(&runtime.RemoteObject{ObjectID: "obj-7"}, nil)
		exec.On("CallFunctionOn", mock.Anything, isProbe).
			Return(nil, &runtime.ExceptionDetails{Text: "Uncaught TypeError"}, nil)

		_, err := el.Probe(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, autofill.ErrStale)
		assert.Contains(t, err.Error(), "script error")
	})

	t.Run("snapshot releases cached objects", func(t *testing.T) {
		exec, h, el := setup(t)
		exec.On("ResolveNode", mock.Anything, cdp.BackendNodeID(7)).
			Return(&runtime.RemoteObject{ObjectID: "obj-7"}, nil)
		exec.On("CallFunctionOn", mock.Anything, isProbe).Return(jsonResult(`{"type":"password"}`), nil, nil)
		exec.On("ReleaseObjects", mock.Anything).Return(nil)

		_, err := el.Probe(ctx)
		require.NoError(t, err)
		_, err = h.Document(ctx)
		require.NoError(t, err)
		_, err = el.Probe(ctx)
		require.NoError(t, err)

		exec.AssertNumberOfCalls(t, "ReleaseObjects", 1)
		exec.AssertNumberOfCalls(t, "ResolveNode", 2)
	})
}

func TestElement_Mutations(t *testing.T) {
	ctx := context.Background()
	exec := new(mockExecutor)
	exec.On("GetDocument", mock.Anything).Return(loginSnapshot(), nil)
	exec.On("ResolveNode", mock.Anything, cdp.BackendNodeID(6)).
		Return(&runtime.RemoteObject{ObjectID: "obj-6"}, nil)
	h := newTestHost(t, exec)
	_, err := h.Document(ctx)
	require.NoError(t, err)
	el := byID(t, h, 6)

	argsOf := func(decl string, want ...string) interface{} {
		return mock.MatchedBy(func(p *runtime.CallFunctionOnParams) bool {
			if p.FunctionDeclaration != decl || len(p.Arguments) != len(want) {
				return false
			}
			for i, a := range p.Arguments {
				if string(a.Value) != want[i] {
					return false
				}
			}
			return true
		})
	}

	exec.On("CallFunctionOn", mock.Anything, argsOf(dispatchFunction, `"keydown"`)).Return(jsonResult(`null`), nil, nil).Once()
	exec.On("CallFunctionOn", mock.Anything, argsOf(setAttributeFunction, `"value"`, `"al\"ice"`)).Return(jsonResult(`null`), nil, nil).Once()
	exec.On("CallFunctionOn", mock.Anything, argsOf(setValueFunction, `"al\"ice"`)).Return(jsonResult(`null`), nil, nil).Once()
	exec.On("CallFunctionOn", mock.Anything, argsOf(valueFunction)).Return(jsonResult(`"al\"ice"`), nil, nil).Once()

	require.NoError(t, el.Dispatch(ctx, "keydown"))
	require.NoError(t, el.SetAttr(ctx, "value", `al"ice`))
	require.NoError(t, el.SetValue(ctx, `al"ice`))
	v, err := el.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, `al"ice`, v)
	exec.AssertExpectations(t)
}

func TestHost_ElementFromPoint(t *testing.T) {
	ctx := context.Background()

	t.Run("retargets out of shadow roots", func(t *testing.T) {
		exec := new(mockExecutor)
		exec.On("GetDocument", mock.Anything).Return(loginSnapshot(), nil)
		exec.On("GetNodeForLocation", mock.Anything, int64(93), int64(41)).Return(cdp.BackendNodeID(9), nil)
		h := newTestHost(t, exec)
		_, err := h.Document(ctx)
		require.NoError(t, err)

		el, err := h.ElementFromPoint(ctx, 93.2, 40.5)
		require.NoError(t, err)
		assert.Same(t, byID(t, h, 8), el)
	})

	t.Run("unknown node refreshes once", func(t *testing.T) {
		exec := new(mockExecutor)
		exec.On("GetDocument", mock.Anything).Return(loginSnapshot(), nil)
		exec.On("GetNodeForLocation", mock.Anything, int64(1), int64(1)).Return(cdp.BackendNodeID(6), nil)
		h := newTestHost(t, exec)

		el, err := h.ElementFromPoint(ctx, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, "input", el.Tag())
		exec.AssertNumberOfCalls(t, "GetDocument", 1)
	})

	t.Run("non-element hit is nil", func(t *testing.T) {
		exec := new(mockExecutor)
		exec.On("GetDocument", mock.Anything).Return(loginSnapshot(), nil)
		exec.On("GetNodeForLocation", mock.Anything, int64(5), int64(5)).Return(cdp.BackendNodeID(4), nil)
		h := newTestHost(t, exec)

		el, err := h.ElementFromPoint(ctx, 5, 5)
		require.NoError(t, err)
		assert.Nil(t, el)
	})

	t.Run("nothing painted", func(t *testing.T) {
		exec := new(mockExecutor)
		exec.On("GetNodeForLocation", mock.Anything, int64(-10), int64(-10)).
			Return(cdp.BackendNodeID(0), errors.New("No node found at given location"))
		h := newTestHost(t, exec)

		el, err := h.ElementFromPoint(ctx, -10, -10)
		require.NoError(t, err)
		assert.Nil(t, el)
	})
}

// focusExecutor returns a mock with focus tracking installable and the
// recorded global pointing at backend node 9.
func focusExecutor() *mockExecutor {
	exec := new(mockExecutor)
	exec.On("GetDocument", mock.Anything).Return(loginSnapshot(), nil)
	exec.On("AddBinding", mock.Anything, focusBinding).Return(nil).Once()
	exec.On("AddScriptOnNewDocument", mock.Anything, focusScript).Return(nil).Once()
	exec.On("Evaluate", mock.Anything, mock.MatchedBy(func(p *runtime.EvaluateParams) bool {
		return p.Expression == focusScript
	})).Return(&runtime.RemoteObject{Type: runtime.TypeUndefined}, nil, nil).Once()
	exec.On("Evaluate", mock.Anything, mock.MatchedBy(func(p *runtime.EvaluateParams) bool {
		return p.Expression == "window."+focusGlobal
	})).Return(&runtime.RemoteObject{Type: runtime.TypeObject, ObjectID: "focus-obj"}, nil, nil)
	exec.On("DescribeObject", mock.Anything, runtime.RemoteObjectID("focus-obj")).
		Return(&cdp.Node{NodeType: cdp.NodeTypeElement, BackendNodeID: 9}, nil)
	return exec
}

func TestHost_NotifyFocus(t *testing.T) {
	ctx := context.Background()
	exec := focusExecutor()
	h := newTestHost(t, exec)
	_, err := h.Document(ctx)
	require.NoError(t, err)

	tracker := autofill.NewFocusTracker()
	require.True(t, tracker.Attach(h))
	// A second subscriber must not reinstall the binding.
	seen := make(chan autofill.Element, 4)
	h.NotifyFocus(func(el autofill.Element) { seen <- el })

	exec.fireBinding("unrelated", "focus")
	exec.fireBinding(focusBinding, "focus")

	select {
	case el := <-seen:
		assert.Equal(t, "#shadow-root(open) of /html[1]/body[1]/div[1] /input[1]", el.Describe())
	case <-time.After(2 * time.Second):
		t.Fatal("focus callback never ran")
	}
	assert.Eventually(t, func() bool { return tracker.Last() != nil }, time.Second, 10*time.Millisecond)
	assert.Same(t, byID(t, h, 9), tracker.Last())
	exec.AssertNumberOfCalls(t, "GetDocument", 1)
	exec.AssertExpectations(t)
}

func TestHost_FocusOnUnknownNodeWaitsForRequest(t *testing.T) {
	ctx := context.Background()
	exec := focusExecutor()
	h := newTestHost(t, exec)

	seen := make(chan autofill.Element, 4)
	h.NotifyFocus(func(el autofill.Element) { seen <- el })
	exec.fireBinding(focusBinding, "focus")

	// Resolution reads the global but must not snapshot behind a request's back.
	require.Eventually(t, func() bool {
		h.focusMu.Lock()
		defer h.focusMu.Unlock()
		return h.focusPending != nil
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, seen)
	exec.AssertNotCalled(t, "GetDocument", mock.Anything)
	exec.AssertNotCalled(t, "ReleaseObjects", mock.Anything)

	require.NoError(t, h.SyncFocus(ctx))
	select {
	case el := <-seen:
		assert.Same(t, byID(t, h, 9), el)
	default:
		t.Fatal("pending focus was not delivered on sync")
	}
	exec.AssertNumberOfCalls(t, "GetDocument", 1)

	require.NoError(t, h.SyncFocus(ctx), "nothing left to deliver")
	assert.Empty(t, seen)
	exec.AssertNumberOfCalls(t, "GetDocument", 1)
}

func TestHost_DocumentDeliversPendingFocus(t *testing.T) {
	exec := focusExecutor()
	h := newTestHost(t, exec)

	var got []autofill.Element
	h.NotifyFocus(func(el autofill.Element) { got = append(got, el) })
	h.focusMu.Lock()
	h.focusSeq = 1
	h.focusPending = &pendingFocus{seq: 1, id: 9, event: "focus"}
	h.focusMu.Unlock()

	_, err := h.Document(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Same(t, byID(t, h, 9), got[0])
}

func TestHost_FocusDeliveryKeepsPageOrder(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("GetDocument", mock.Anything).Return(loginSnapshot(), nil)
	h := newTestHost(t, exec)
	_, err := h.Document(context.Background())
	require.NoError(t, err)

	var got []string
	h.focusMu.Lock()
	h.focusFns = append(h.focusFns, func(el autofill.Element) { got = append(got, el.Describe()) })
	h.focusMu.Unlock()

	user, pass := byID(t, h, 6), byID(t, h, 7)
	h.deliverFocus(2, pass, "focus")
	h.deliverFocus(1, user, "blur")

	assert.Equal(t, []string{pass.Describe()}, got, "an older change resolved late is dropped")
}

func TestHost_NotifyFocusInstallFailure(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("AddBinding", mock.Anything, focusBinding).Return(errors.New("target closed"))
	h := newTestHost(t, exec)

	assert.NotPanics(t, func() { h.NotifyFocus(func(autofill.Element) {}) })
	exec.AssertNotCalled(t, "AddScriptOnNewDocument", mock.Anything, mock.Anything)
}

func TestHost_URL(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("Location", mock.Anything).Return("https://example.test/login", nil)
	exec.On("Navigate", mock.Anything, "https://example.test/login").Return(nil)
	h := newTestHost(t, exec)

	require.NoError(t, h.Navigate(context.Background(), "https://example.test/login"))
	u, err := h.URL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/login", u)
}
