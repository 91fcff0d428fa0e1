// Command lsp-probe launches a language server, drives it through a short
// initialize, hover, completion, definition and shutdown session and prints
// the exchange.
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
	cfg, err := config.LoadProbeConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "lsp-probe:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout, errOut: os.Stderr}
	if err := newRootCmd(a, cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "lsp-probe:", err)
		stop()
		os.Exit(1)
	}
}
