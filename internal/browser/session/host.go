// internal/browser/session/host.go
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loginfill/internal/autofill"
)

// Host exposes one Chromium tab to the autofill core. Tree structure comes
// from a pierced DOM snapshot taken on every Document call; render state and
// mutations go through small functions called on the live node.
type Host struct {
	ctx         context.Context // carries the chromedp target
	exec        Executor
	logger      *zap.Logger
	allowClosed bool

	mu       sync.RWMutex
	elements map[cdp.BackendNodeID]*Element
	objects  map[cdp.BackendNodeID]runtime.RemoteObjectID
	doc      *Document

	focusMu      sync.Mutex
	focusFns     []func(autofill.Element)
	focusStarted bool
	focusSeq     uint64
	focusApplied uint64
	focusPending *pendingFocus
}

var (
	_ autofill.Host          = (*Host)(nil)
	_ autofill.FocusNotifier = (*Host)(nil)
	_ autofill.FocusSyncer   = (*Host)(nil)
	_ autofill.Locator       = (*Host)(nil)
)

// Option configures a Host.
type Option func(*Host)

// WithClosedShadowRoots lets discovery see closed shadow roots. DevTools can
// always reach them, so this is a policy choice rather than a capability.
func WithClosedShadowRoots(allow bool) Option {
	return func(h *Host) { h.allowClosed = allow }
}

// NewHost binds a host to the tab behind ctx.
func NewHost(ctx context.Context, exec Executor, logger *zap.Logger, opts ...Option) *Host {
	h := &Host{
		ctx:      ctx,
		exec:     exec,
		logger:   logger.Named("cdp_host"),
		elements: make(map[cdp.BackendNodeID]*Element),
		objects:  make(map[cdp.BackendNodeID]runtime.RemoteObjectID),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// -- autofill.Host --

func (h *Host) Document(ctx context.Context) (autofill.Node, error) {
	opCtx, cancel := CombineContext(h.ctx, ctx)
	defer cancel()
	if err := h.refresh(opCtx); err != nil {
		return nil, err
	}
	// The fresh snapshot may know a node a focus event was waiting on.
	if err := h.flushFocus(opCtx, false); err != nil {
		h.logger.Debug("Could not deliver pending focus change.", zap.Error(err))
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.doc, nil
}

func (h *Host) ElementFromPoint(ctx context.Context, x, y float64) (autofill.Element, error) {
	opCtx, cancel := CombineContext(h.ctx, ctx)
	defer cancel()

	id, err := h.exec.GetNodeForLocation(opCtx, int64(math.Round(x)), int64(math.Round(y)))
	if err != nil {
		if isNoNode(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to hit-test (%.1f, %.1f): %w", x, y, err)
	}
	el, err := h.lookup(opCtx, id)
	if err != nil || el == nil {
		return nil, err
	}
	return h.retarget(el), nil
}

// URL returns the address of the tab.
func (h *Host) URL(ctx context.Context) (string, error) {
	opCtx, cancel := CombineContext(h.ctx, ctx)
	defer cancel()
	return h.exec.Location(opCtx)
}

// Navigate loads url in the tab.
func (h *Host) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := CombineContext(h.ctx, ctx)
	defer cancel()
	if err := h.exec.Navigate(opCtx, url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// -- Snapshot --

func (h *Host) refresh(ctx context.Context) error {
	root, err := h.exec.GetDocument(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot document: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.objects) > 0 {
		if err := h.exec.ReleaseObjects(ctx); err != nil {
			h.logger.Debug("Failed to release remote objects.", zap.Error(err))
		}
		h.objects = make(map[cdp.BackendNodeID]runtime.RemoteObjectID)
	}
	h.doc = h.build(root)
	return nil
}

type pending struct {
	node   *cdp.Node
	parent *Element
	scope  autofill.Node
	out    *[]*Element
}

// build converts a pierced snapshot into canonical handles. Existing handles
// are updated in place so == keeps working across snapshots. The caller holds
// the write lock.
func (h *Host) build(root *cdp.Node) *Document {
	doc := &Document{host: h}
	seen := make(map[cdp.BackendNodeID]bool, len(h.elements))

	var stack []pending
	push := func(children []*cdp.Node, parent *Element, scope autofill.Node, out *[]*Element) {
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, pending{node: children[i], parent: parent, scope: scope, out: out})
		}
	}
	push(root.Children, nil, doc, &doc.children)

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.node.NodeType != cdp.NodeTypeElement {
			continue
		}

		el, ok := h.elements[p.node.BackendNodeID]
		if !ok {
			el = &Element{host: h, id: p.node.BackendNodeID}
			h.elements[el.id] = el
		}
		seen[el.id] = true
		el.tag = strings.ToLower(p.node.LocalName)
		el.attrs = p.node.Attributes
		el.parent = p.parent
		el.scope = p.scope
		el.children = nil
		el.shadow = nil
		el.detached = false
		*p.out = append(*p.out, el)

		push(p.node.Children, el, p.scope, &el.children)
		for _, sr := range p.node.ShadowRoots {
			if el.shadow != nil || !h.reachable(sr.ShadowRootType) {
				continue
			}
			frag := &Fragment{host: el, mode: string(sr.ShadowRootType)}
			el.shadow = frag
			push(sr.Children, nil, frag, &frag.children)
		}
	}

	for id, el := range h.elements {
		if !seen[id] {
			el.detached = true
			delete(h.elements, id)
		}
	}
	return doc
}

func (h *Host) reachable(t cdp.ShadowRootType) bool {
	switch t {
	case cdp.ShadowRootTypeUserAgent:
		return false
	case cdp.ShadowRootTypeClosed:
		return h.allowClosed
	default:
		return true
	}
}

// lookup returns the handle for id, taking a fresh snapshot once when the
// node is not known yet. Unknown nodes such as text yield nil.
func (h *Host) lookup(ctx context.Context, id cdp.BackendNodeID) (*Element, error) {
	h.mu.RLock()
	el, ok := h.elements[id]
	h.mu.RUnlock()
	if ok {
		return el, nil
	}
	if err := h.refresh(ctx); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.elements[id], nil
}

// retarget climbs out of shadow roots the way document.elementFromPoint does.
func (h *Host) retarget(el *Element) *Element {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for {
		frag, ok := el.scope.(*Fragment)
		if !ok {
			return el
		}
		el = frag.host
	}
}

// -- Live Calls --

// object resolves el into a remote object, caching it until the next snapshot.
func (h *Host) object(ctx context.Context, el *Element) (runtime.RemoteObjectID, error) {
	h.mu.RLock()
	obj, ok := h.objects[el.id]
	h.mu.RUnlock()
	if ok {
		return obj, nil
	}

	ro, err := h.exec.ResolveNode(ctx, el.id)
	if err != nil {
		if isNoNode(err) {
			return "", fmt.Errorf("%s: %w", el.Describe(), autofill.ErrStale)
		}
		return "", fmt.Errorf("failed to resolve %s: %w", el.Describe(), err)
	}
	if ro == nil || ro.ObjectID == "" {
		return "", fmt.Errorf("%s: %w", el.Describe(), autofill.ErrStale)
	}

	h.mu.Lock()
	h.objects[el.id] = ro.ObjectID
	h.mu.Unlock()
	return ro.ObjectID, nil
}

// call runs decl with this bound to el and decodes the JSON result into out
// when out is non-nil. It reports whether the function returned a value.
func (h *Host) call(ctx context.Context, el *Element, decl string, out interface{}, args ...interface{}) (bool, error) {
	opCtx, cancel := CombineContext(h.ctx, ctx)
	defer cancel()

	obj, err := h.object(opCtx, el)
	if err != nil {
		return false, err
	}

	callArgs := make([]*runtime.CallArgument, 0, len(args))
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return false, fmt.Errorf("failed to encode argument: %w", err)
		}
		callArgs = append(callArgs, &runtime.CallArgument{Value: raw})
	}

	params := runtime.CallFunctionOn(decl).
		WithObjectID(obj).
		WithArguments(callArgs).
		WithReturnByValue(true).
		WithSilent(true)

	res, exc, err := h.exec.CallFunctionOn(opCtx, params)
	if err != nil {
		if isNoNode(err) {
			return false, fmt.Errorf("%s: %w", el.Describe(), autofill.ErrStale)
		}
		return false, fmt.Errorf("failed to call function on %s: %w", el.Describe(), err)
	}
	if exc != nil {
		return false, fmt.Errorf("script error on %s: %w", el.Describe(), exc)
	}
	if res == nil || len(res.Value) == 0 || string(res.Value) == "null" {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal([]byte(res.Value), out); err != nil {
			return false, fmt.Errorf("failed to decode result from %s: %w (payload: %s)", el.Describe(), err, string(res.Value))
		}
	}
	return true, nil
}

// isNoNode recognises the protocol errors for nodes that no longer exist.
func isNoNode(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "No node") || strings.Contains(msg, "Could not find node")
}
