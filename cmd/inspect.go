// cmd/inspect.go
package cmd

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/loginfill/internal/autofill"
	"github.com/xkilldash9x/loginfill/internal/observability"
)

func newInspectCmd() *cobra.Command {
	var (
		pf     pageFlags
		format string
	)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show which login fields would be filled, without filling them",
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
			logger := observability.GetLogger()

			pg, err := openPage(ctx, cfg, pf, logger)
			if err != nil {
				return err
			}
			defer pg.close()

			res, discoverErr := autofill.Discover(ctx, pg.host)
			if discoverErr != nil {
				logger.Info("Discovery did not resolve a login form.", zap.Error(discoverErr))
			}
			return writeReport(cmd.OutOrStdout(), format, autofill.NewReport(res, discoverErr))
		},
	}

	pf.register(inspectCmd)
	inspectCmd.MarkFlagsOneRequired("html", "url")
	inspectCmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml or json)")
	return inspectCmd
}

func writeReport(w io.Writer, format string, v interface{}) error {
	if format == "json" {
		out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}
