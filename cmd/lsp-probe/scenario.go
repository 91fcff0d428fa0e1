package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ggoodman/lsp-jsonrpc-go/client"
	"github.com/ggoodman/lsp-jsonrpc-go/internal/console"
	"github.com/ggoodman/lsp-jsonrpc-go/lsp"
)

const clientVersion = "0.1.0"

// scenario is the fixed conversation lsp-probe has with a server.
type scenario struct {
	uri         string
	pos         lsp.Position
	callTimeout time.Duration
	pr          *console.Printer
}

// run drives s from initialize to exit. Feature requests that fail are
// reported and counted; a failed initialize or shutdown ends the run.
func (sc scenario) run(ctx context.Context, s *client.Session) error {
	pid := os.Getpid()

	sc.pr.Step("initialize")
	var init lsp.InitializeResult
	err := sc.call(ctx, s, lsp.MethodInitialize, lsp.InitializeParams{
		ProcessID:    &pid,
		ClientInfo:   &lsp.ClientInfo{Name: "lsp-probe", Version: clientVersion},
		Capabilities: json.RawMessage(`{}`),
	}, &init)
	if err != nil {
		sc.pr.Failure("initialize", err)
		return fmt.Errorf("initialize: %w", err)
	}
	sc.pr.Result(fmt.Sprintf("initialize: %s %s", init.ServerInfo.Name, init.ServerInfo.Version), init.Capabilities)

	if err := s.Notify(ctx, lsp.MethodInitialized, struct{}{}); err != nil {
		return fmt.Errorf("initialized: %w", err)
	}

	at := lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: sc.uri},
		Position:     sc.pos,
	}

	var failed []error
	for _, method := range []string{lsp.MethodHover, lsp.MethodCompletion, lsp.MethodDefinition} {
		sc.pr.Step("%s %s:%d:%d", method, sc.uri, sc.pos.Line, sc.pos.Character)
		var res json.RawMessage
		if err := sc.call(ctx, s, method, at, &res); err != nil {
			sc.pr.Failure(method, err)
			if ctx.Err() != nil || errors.Is(err, client.ErrSessionClosed) {
				return err
			}
			failed = append(failed, fmt.Errorf("%s: %w", method, err))
			continue
		}
		sc.pr.Result(method, res)
	}

	sc.pr.Step("shutdown")
	if err := sc.call(ctx, s, lsp.MethodShutdown, nil, nil); err != nil {
		sc.pr.Failure("shutdown", err)
		return errors.Join(append(failed, fmt.Errorf("shutdown: %w", err))...)
	}
	sc.pr.Result("shutdown", nil)

	if err := s.Notify(ctx, lsp.MethodExit, nil); err != nil {
		return errors.Join(append(failed, fmt.Errorf("exit: %w", err))...)
	}

	return errors.Join(failed...)
}

func (sc scenario) call(ctx context.Context, s *client.Session, method string, params, out any) error {
	if sc.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sc.callTimeout)
		defer cancel()
	}
	return s.CallResult(ctx, method, params, out)
}
