// cmd/loginfill/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/loginfill/cmd"
	"github.com/xkilldash9x/loginfill/internal/observability"
)

const panicLogFile = "~/.loginfill/panic.log"

// Function variables replaced in tests.
var (
	osWriteFile = os.WriteFile
	osMkdirAll  = os.MkdirAll
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			osExit(0)
			return
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		osExit(1)
	}
}

// handlePanic writes the panic and its stack to the panic log. The browser
// discards a native host's stderr, so the file is the only trace left.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	message := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := writePanicLog(message); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", message)
	} else {
		fmt.Fprintf(os.Stderr, "loginfill crashed; details logged to %s\n", panicLogFile)
	}
	osExit(2)
}

func writePanicLog(message string) error {
	path, err := homedir.Expand(panicLogFile)
	if err != nil {
		return err
	}
	if err := osMkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return osWriteFile(path, []byte(message), 0o600)
}
