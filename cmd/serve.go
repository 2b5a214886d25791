// cmd/serve.go
package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loginfill/internal/autofill"
	"github.com/xkilldash9x/loginfill/internal/messaging"
	"github.com/xkilldash9x/loginfill/internal/observability"
)

// inputGrace bounds the wait for a blocked stdin read after cancellation.
// Closing a terminal or inherited pipe does not always wake the reader.
var inputGrace = 2 * time.Second

func newServeCmd() *cobra.Command {
	var pf pageFlags

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer native-messaging fill requests on stdin and stdout",
		Long: `Serve runs as a native-messaging host. Each request frame on stdin is
handled against the page and answered with exactly one response frame on
stdout. Logs go to stderr and the log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			pg, err := openPage(ctx, cfg, pf, logger)
			if err != nil {
				return err
			}
			defer pg.close()

			opts, closeJournal, err := fillerOptions(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeJournal()

			filler := autofill.NewFiller(pg.host, logger, opts...)
			m := cfg.Messaging()
			srv := messaging.NewServer(cmd.InOrStdin(), cmd.OutOrStdout(), filler, logger,
				messaging.WithMaxMessageBytes(m.MaxMessageBytes),
				messaging.WithRateLimit(m.RequestsPerSecond, m.Burst))
			return runServer(ctx, srv, logger)
		},
	}
	pf.register(serveCmd)
	return serveCmd
}

func runServer(ctx context.Context, srv *messaging.Server, logger *zap.Logger) error {
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	select {
	case err := <-done:
		return err
	case <-time.After(inputGrace):
		logger.Warn("Input did not close after cancellation; exiting anyway.")
		return ctx.Err()
	}
}
