// Command mock-lsp-server speaks LSP over stdin/stdout and answers every
// request from canned fixtures. It is meant as a stand-in language server for
// exercising LSP clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ggoodman/lsp-jsonrpc-go/internal/config"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "mock-lsp-server:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := &app{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	err = newRootCmd(a, cfg).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "mock-lsp-server:", err)
		os.Exit(2)
	}
	os.Exit(a.exitCode)
}
