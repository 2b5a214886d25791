// cmd/page.go
package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loginfill/internal/autofill"
	"github.com/xkilldash9x/loginfill/internal/browser"
	"github.com/xkilldash9x/loginfill/internal/browser/dom"
	"github.com/xkilldash9x/loginfill/internal/config"
	"github.com/xkilldash9x/loginfill/internal/store"
)

// shutdownTimeout bounds how long a command waits for the browser to exit.
const shutdownTimeout = 10 * time.Second

// pageFlags selects where a command's page comes from.
type pageFlags struct {
	htmlFile string
	url      string
	remote   string
}

func (f *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.htmlFile, "html", "", "Load the page from an HTML file instead of a browser")
	cmd.Flags().StringVar(&f.url, "url", "", "Navigate the browser tab to this URL")
	cmd.Flags().StringVar(&f.remote, "remote", "", "Attach to a running browser at this DevTools URL")
	cmd.MarkFlagsMutuallyExclusive("html", "url")
	cmd.MarkFlagsMutuallyExclusive("html", "remote")
}

// page is an opened autofill host. doc is set only for --html pages.
type page struct {
	host  autofill.Host
	doc   *dom.Page
	close func()
}

func openPage(ctx context.Context, cfg config.Interface, f pageFlags, logger *zap.Logger) (*page, error) {
	if f.htmlFile != "" {
		return openHTML(cfg.Browser(), f.htmlFile)
	}
	if f.remote != "" {
		cfg.SetBrowserRemoteURL(f.remote)
	}

	mgr := browser.NewManager(ctx, cfg.Browser(), logger)
	shutdown := func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mgr.Shutdown(sctx); err != nil {
			logger.Warn("Browser did not shut down cleanly.", zap.Error(err))
		}
	}

	tab, err := mgr.NewTab(ctx)
	if err != nil {
		shutdown()
		return nil, err
	}
	if f.url != "" {
		if err := tab.Navigate(ctx, f.url); err != nil {
			shutdown()
			return nil, fmt.Errorf("failed to navigate to %s: %w", f.url, err)
		}
	}
	return &page{host: tab, close: shutdown}, nil
}

func openHTML(b config.BrowserConfig, path string) (*page, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open html file: %w", err)
	}
	defer file.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve html file path: %w", err)
	}
	opts := []dom.Option{dom.WithURL((&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String())}
	if w, h := b.Viewport["width"], b.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, dom.WithViewport(float64(w), float64(h)))
	}
	if b.AllowClosedShadowRoots {
		opts = append(opts, dom.WithElevatedAccess())
	}

	doc, err := dom.Parse(file, opts...)
	if err != nil {
		return nil, err
	}
	return &page{host: doc, doc: doc, close: func() {}}, nil
}

// fillerOptions applies the operation timeout and, when a database is
// configured, the fill journal. The returned function closes the journal.
func fillerOptions(ctx context.Context, cfg config.Interface, logger *zap.Logger) ([]autofill.Option, func(), error) {
	opts := []autofill.Option{autofill.WithTimeout(cfg.Autofill().OperationTimeout)}
	dsn := cfg.Database().URL
	if dsn == "" {
		return opts, func() {}, nil
	}
	journal, closeJournal, err := store.Connect(ctx, dsn, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open fill journal: %w", err)
	}
	return append(opts, autofill.WithRecorder(journal)), closeJournal, nil
}
