// cmd/history.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/loginfill/internal/config"
	"github.com/xkilldash9x/loginfill/internal/observability"
	"github.com/xkilldash9x/loginfill/internal/store"
)

// journalReader is the read side of the fill journal.
type journalReader interface {
	Recent(ctx context.Context, limit int) ([]store.Event, error)
}

// journalProvider opens the fill journal. Tests inject a fake so history can
// run without a database.
type journalProvider interface {
	Open(ctx context.Context, cfg config.Interface) (journalReader, func(), error)
}

type defaultJournalProvider struct{}

// NewJournalProvider returns the provider backed by PostgreSQL.
func NewJournalProvider() journalProvider {
	return defaultJournalProvider{}
}

// Open connects to the configured database.
func (defaultJournalProvider) Open(ctx context.Context, cfg config.Interface) (journalReader, func(), error) {
	dsn := cfg.Database().URL
	if dsn == "" {
		return nil, nil, errors.New("database URL is not configured (LOGINFILL_DATABASE_URL)")
	}
	journal, closeFn, err := store.Connect(ctx, dsn, observability.GetLogger())
	if err != nil {
		return nil, nil, err
	}
	return journal, closeFn, nil
}

func newHistoryCmd(provider journalProvider) *cobra.Command {
	var (
		limit  int
		format string
	)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent fill requests from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if format != "yaml" && format != "json" {
				return fmt.Errorf("unsupported format %q (use yaml or json)", format)
			}

			journal, closeFn, err := provider.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			events, err := journal.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if events == nil {
				events = []store.Event{}
			}
			return writeReport(cmd.OutOrStdout(), format, events)
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of events to show")
	historyCmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml or json)")
	return historyCmd
}
