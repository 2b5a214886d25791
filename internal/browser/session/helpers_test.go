// internal/browser/session/helpers_test.go
package session

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/mock"
)

// -- Mock Executor --

type mockExecutor struct {
	mock.Mock

	mu       sync.Mutex
	bindings []func(name, payload string)
}

var _ Executor = (*mockExecutor)(nil)

func (m *mockExecutor) GetDocument(ctx context.Context) (*cdp.Node, error) {
	args := m.Called(ctx)
	root, _ := args.Get(0).(*cdp.Node)
	return root, args.Error(1)
}

func (m *mockExecutor) ResolveNode(ctx context.Context, id cdp.BackendNodeID) (*runtime.RemoteObject, error) {
	args := m.Called(ctx, id)
	obj, _ := args.Get(0).(*runtime.RemoteObject)
	return obj, args.Error(1)
}

func (m *mockExecutor) DescribeObject(ctx context.Context, id runtime.RemoteObjectID) (*cdp.Node, error) {
	args := m.Called(ctx, id)
	node, _ := args.Get(0).(*cdp.Node)
	return node, args.Error(1)
}

func (m *mockExecutor) ReleaseObjects(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockExecutor) CallFunctionOn(ctx context.Context, params *runtime.CallFunctionOnParams) (*runtime.RemoteObject, *runtime.ExceptionDetails, error) {
	args := m.Called(ctx, params)
	res, _ := args.Get(0).(*runtime.RemoteObject)
	exc, _ := args.Get(1).(*runtime.ExceptionDetails)
	return res, exc, args.Error(2)
}

func (m *mockExecutor) Evaluate(ctx context.Context, params *runtime.EvaluateParams) (*runtime.RemoteObject, *runtime.ExceptionDetails, error) {
	args := m.Called(ctx, params)
	res, _ := args.Get(0).(*runtime.RemoteObject)
	exc, _ := args.Get(1).(*runtime.ExceptionDetails)
	return res, exc, args.Error(2)
}

func (m *mockExecutor) GetNodeForLocation(ctx context.Context, x, y int64) (cdp.BackendNodeID, error) {
	args := m.Called(ctx, x, y)
	return args.Get(0).(cdp.BackendNodeID), args.Error(1)
}

func (m *mockExecutor) AddBinding(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *mockExecutor) AddScriptOnNewDocument(ctx context.Context, source string) error {
	return m.Called(ctx, source).Error(0)
}

func (m *mockExecutor) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *mockExecutor) Location(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// ListenBindings records fn so tests can fire binding calls by hand.
func (m *mockExecutor) ListenBindings(ctx context.Context, fn func(name, payload string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings = append(m.bindings, fn)
}

func (m *mockExecutor) fireBinding(name, payload string) {
	m.mu.Lock()
	fns := append([]func(string, string){}, m.bindings...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(name, payload)
	}
}

// -- Snapshot Builders --

func docNode(children ...*cdp.Node) *cdp.Node {
	return &cdp.Node{NodeType: cdp.NodeTypeDocument, NodeName: "#document", Children: children}
}

func elNode(id cdp.BackendNodeID, tag string, attrs []string, children ...*cdp.Node) *cdp.Node {
	return &cdp.Node{
		NodeType:      cdp.NodeTypeElement,
		BackendNodeID: id,
		LocalName:     tag,
		NodeName:      tag,
		Attributes:    attrs,
		Children:      children,
	}
}

func textNode(id cdp.BackendNodeID, value string) *cdp.Node {
	return &cdp.Node{NodeType: cdp.NodeTypeText, BackendNodeID: id, NodeName: "#text", NodeValue: value}
}

func withShadow(host *cdp.Node, mode cdp.ShadowRootType, children ...*cdp.Node) *cdp.Node {
	host.ShadowRoots = append(host.ShadowRoots, &cdp.Node{
		NodeType:       cdp.NodeTypeDocumentFragment,
		NodeName:       "#document-fragment",
		ShadowRootType: mode,
		Children:       children,
	})
	return host
}

func attrs(kv ...string) []string { return kv }

func jsonResult(raw string) *runtime.RemoteObject {
	return &runtime.RemoteObject{Type: runtime.TypeObject, Value: []byte(raw)}
}
