// cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/loginfill/internal/observability"
)

const loginPage = `<!DOCTYPE html>
<html><body>
<form id="login" action="/session">
  <input id="user" name="username" type="text">
  <input id="pass" name="password" type="password">
  <button type="submit">Sign in</button>
</form>
<input id="search" type="search">
</body></html>`

const noFormPage = `<!DOCTYPE html><html><body><p>Nothing to see.</p></body></html>`

// quietConfig keeps tests off the real log file and out of the user's home.
const quietConfig = `
logger:
  level: error
  log_file: ""
`

// resetForTest gives each command run a fresh logger and no journal.
func resetForTest(t *testing.T) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
	t.Setenv("LOGINFILL_DATABASE_URL", "")
}

// writeFile creates name with content in a per-test directory.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// executeCommand runs root with args and the quiet config, returning what
// the command wrote to stdout.
func executeCommand(t *testing.T, root *cobra.Command, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	resetForTest(t)

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	if stdin != nil {
		root.SetIn(stdin)
	}
	cfgPath := writeFile(t, "config.yaml", quietConfig)
	// The config flag goes first: cobra resolves the subcommand before it
	// registers the built-in version flag, so an unknown --version would
	// swallow the token after it.
	root.SetArgs(append([]string{"--config", cfgPath}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}
