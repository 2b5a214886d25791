// cmd/fill.go
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/loginfill/api/schemas"
	"github.com/xkilldash9x/loginfill/internal/autofill"
	"github.com/xkilldash9x/loginfill/internal/observability"
)

func newFillCmd() *cobra.Command {
	var (
		pf          pageFlags
		user        string
		passwordEnv string
		field       string
		text        string
	)

	fillCmd := &cobra.Command{
		Use:   "fill",
		Short: "Fill credentials into the login form of one page",
		Long: `Fill runs a single fill_user_password request against the page, or a
fill_field request into the element at --field. The password is read from
the environment variable named by --password-env, never from the command
line. With --html the filled document is written to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if field != "" && pf.htmlFile == "" {
				return errors.New("--field requires --html")
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

			var req schemas.Request
			if field != "" {
				el, err := pg.doc.FindXPath(field)
				if err != nil {
					return err
				}
				// Focusing reaches the filler through the page's focus notifications.
				if err := el.Focus(ctx); err != nil {
					return fmt.Errorf("failed to focus %s: %w", field, err)
				}
				req = schemas.NewFillField(text)
			} else {
				req = schemas.NewFillUserPassword(user, os.Getenv(passwordEnv))
			}

			resp := filler.Handle(ctx, req)
			if !resp.Success() {
				return errors.New(resp.Message())
			}
			if pg.doc != nil {
				return pg.doc.Render(cmd.OutOrStdout())
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}

	pf.register(fillCmd)
	fillCmd.MarkFlagsOneRequired("html", "url")
	fillCmd.Flags().StringVar(&user, "user", "", "Username to fill")
	fillCmd.Flags().StringVar(&passwordEnv, "password-env", "LOGINFILL_PASSWORD", "Environment variable holding the password")
	fillCmd.Flags().StringVar(&field, "field", "", "XPath of the field to focus and fill with --text (requires --html)")
	fillCmd.Flags().StringVar(&text, "text", "", "Text for --field")
	return fillCmd
}
