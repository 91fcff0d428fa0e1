package lsp_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggoodman/lsp-jsonrpc-go/client"
	"github.com/ggoodman/lsp-jsonrpc-go/dispatch"
	"github.com/ggoodman/lsp-jsonrpc-go/jsonrpc"
	"github.com/ggoodman/lsp-jsonrpc-go/lsp"
	"github.com/ggoodman/lsp-jsonrpc-go/stdio"
)

func TestSessionAgainstServer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()

	srv := lsp.NewServer()
	reg := dispatch.NewRegistry()
	srv.Register(reg)
	h := stdio.NewHandler(dispatch.New(reg), stdio.WithIO(c2sR, s2cW))

	served := make(chan error, 1)
	go func() { served <- h.Serve(ctx) }()

	sess := client.NewSession(s2cR, c2sW)
	ran := make(chan error, 1)
	go func() { ran <- sess.Run(ctx) }()

	var init lsp.InitializeResult
	require.NoError(t, sess.CallResult(ctx, lsp.MethodInitialize, lsp.InitializeParams{
		ClientInfo: &lsp.ClientInfo{Name: "probe", Version: "0.1"},
	}, &init))
	assert.Equal(t, "Mock LSP Server", init.ServerInfo.Name)
	assert.Equal(t, lsp.SyncFull, init.Capabilities.TextDocumentSync)

	require.NoError(t, sess.Notify(ctx, lsp.MethodInitialized, struct{}{}))

	pos := lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: "file:///test/main.zig"},
		Position:     lsp.Position{Line: 10, Character: 5},
	}

	// Concurrent calls are correlated independently.
	type res struct {
		hover lsp.Hover
		comp  lsp.CompletionList
		err   error
	}
	hoverCh := make(chan res, 1)
	compCh := make(chan res, 1)
	go func() {
		var r res
		r.err = sess.CallResult(ctx, lsp.MethodHover, pos, &r.hover)
		hoverCh <- r
	}()
	go func() {
		var r res
		r.err = sess.CallResult(ctx, lsp.MethodCompletion, pos, &r.comp)
		compCh <- r
	}()
	hr, cr := <-hoverCh, <-compCh
	require.NoError(t, hr.err)
	require.NoError(t, cr.err)
	assert.Equal(t, "markdown", hr.hover.Contents.Kind)
	assert.Len(t, cr.comp.Items, 2)

	var loc lsp.Location
	require.NoError(t, sess.CallResult(ctx, lsp.MethodDefinition, pos, &loc))
	assert.Equal(t, "file:///test/mock_file.zig", loc.URI)

	_, err := sess.Call(ctx, "textDocument/rename", pos)
	var rpcErr *jsonrpc.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, jsonrpc.ErrorCodeMethodNotFound, rpcErr.Code)

	raw, err := sess.Call(ctx, lsp.MethodShutdown, nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))

	require.NoError(t, sess.Notify(ctx, lsp.MethodExit, nil))

	require.NoError(t, <-served)
	require.NoError(t, <-ran, "session sees a clean EOF after exit")
	assert.Equal(t, 0, srv.ExitCode())

	require.NoError(t, sess.Close())
}
