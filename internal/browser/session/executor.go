// internal/browser/session/executor.go
package session

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// objectGroup names the remote objects this package resolves so they can be
// released together when the tree snapshot is refreshed.
const objectGroup = "loginfill"

// Executor defines the raw CDP calls the page host makes, allowing for
// mocking during tests.
type Executor interface {
	// GetDocument returns the full tree, piercing shadow roots.
	GetDocument(ctx context.Context) (*cdp.Node, error)
	// ResolveNode resolves a backend node into a remote object.
	ResolveNode(ctx context.Context, id cdp.BackendNodeID) (*runtime.RemoteObject, error)
	// DescribeObject returns the node a remote object refers to.
	DescribeObject(ctx context.Context, id runtime.RemoteObjectID) (*cdp.Node, error)
	// ReleaseObjects frees every object resolved by this package.
	ReleaseObjects(ctx context.Context) error
	// CallFunctionOn executes a JavaScript function.
	CallFunctionOn(ctx context.Context, params *runtime.CallFunctionOnParams) (*runtime.RemoteObject, *runtime.ExceptionDetails, error)
	// Evaluate executes a JavaScript expression in the page.
	Evaluate(ctx context.Context, params *runtime.EvaluateParams) (*runtime.RemoteObject, *runtime.ExceptionDetails, error)
	// GetNodeForLocation returns the node painted at viewport coordinates.
	GetNodeForLocation(ctx context.Context, x, y int64) (cdp.BackendNodeID, error)
	// AddBinding exposes a named function on window that raises
	// Runtime.bindingCalled.
	AddBinding(ctx context.Context, name string) error
	// AddScriptOnNewDocument installs a script that runs on every navigation.
	AddScriptOnNewDocument(ctx context.Context, source string) error
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Location returns the current page URL.
	Location(ctx context.Context) (string, error)
	// ListenBindings registers fn for binding calls until ctx is done.
	ListenBindings(ctx context.Context, fn func(name, payload string))
}

// CDPExecutor is the production implementation of the Executor interface.
// Every call must receive a context created by chromedp.NewContext.
type CDPExecutor struct{}

// NewCDPExecutor creates a new production-ready executor.
func NewCDPExecutor() *CDPExecutor {
	return &CDPExecutor{}
}

var _ Executor = (*CDPExecutor)(nil)

func (e *CDPExecutor) GetDocument(ctx context.Context) (root *cdp.Node, err error) {
	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		root, err = dom.GetDocument().WithDepth(-1).WithPierce(true).Do(ctx)
		return err
	}))
	return root, err
}

func (e *CDPExecutor) ResolveNode(ctx context.Context, id cdp.BackendNodeID) (obj *runtime.RemoteObject, err error) {
	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err = dom.ResolveNode().WithBackendNodeID(id).WithObjectGroup(objectGroup).Do(ctx)
		return err
	}))
	return obj, err
}

func (e *CDPExecutor) DescribeObject(ctx context.Context, id runtime.RemoteObjectID) (node *cdp.Node, err error) {
	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err = dom.DescribeNode().WithObjectID(id).Do(ctx)
		return err
	}))
	return node, err
}

func (e *CDPExecutor) ReleaseObjects(ctx context.Context) error {
	return chromedp.Run(ctx, runtime.ReleaseObjectGroup(objectGroup))
}

func (e *CDPExecutor) CallFunctionOn(ctx context.Context, params *runtime.CallFunctionOnParams) (res *runtime.RemoteObject, exc *runtime.ExceptionDetails, err error) {
	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, exc, err = params.Do(ctx)
		return err
	}))
	return res, exc, err
}

func (e *CDPExecutor) Evaluate(ctx context.Context, params *runtime.EvaluateParams) (res *runtime.RemoteObject, exc *runtime.ExceptionDetails, err error) {
	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, exc, err = params.Do(ctx)
		return err
	}))
	return res, exc, err
}

func (e *CDPExecutor) GetNodeForLocation(ctx context.Context, x, y int64) (id cdp.BackendNodeID, err error) {
	err = chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		// elementFromPoint skips pointer-events:none, so the probe does too.
		id, _, _, err = dom.GetNodeForLocation(x, y).WithIgnorePointerEventsNone(true).Do(ctx)
		return err
	}))
	return id, err
}

func (e *CDPExecutor) AddBinding(ctx context.Context, name string) error {
	return chromedp.Run(ctx, runtime.AddBinding(name))
}

func (e *CDPExecutor) AddScriptOnNewDocument(ctx context.Context, source string) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(source).Do(ctx)
		return err
	}))
}

func (e *CDPExecutor) Navigate(ctx context.Context, url string) error {
	return chromedp.Run(ctx, chromedp.Navigate(url))
}

func (e *CDPExecutor) Location(ctx context.Context) (string, error) {
	var u string
	err := chromedp.Run(ctx, chromedp.Location(&u))
	return u, err
}

func (e *CDPExecutor) ListenBindings(ctx context.Context, fn func(name, payload string)) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if called, ok := ev.(*runtime.EventBindingCalled); ok {
			fn(called.Name, called.Payload)
		}
	})
}
