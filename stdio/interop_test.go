package stdio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/ggoodman/lsp-jsonrpc-go/dispatch"
	"github.com/ggoodman/lsp-jsonrpc-go/jsonrpc"
)

type pipeRWC struct {
	io.Reader
	io.WriteCloser
}

// A jsonrpc2 client using the VS Code codec talks to Handler.
func TestInterop_JSONRPC2ClientToHandler(t *testing.T) {
	t.Parallel()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	reg := dispatch.NewRegistry()
	reg.Register("add", dispatch.Typed(func(_ context.Context, p [2]int) (int, error) {
		return p[0] + p[1], nil
	}))
	reg.Register("fail", func(context.Context, json.RawMessage) (any, error) {
		return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, "nope")
	})
	h := NewHandler(dispatch.New(reg), WithIO(inR, outW))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- h.Serve(ctx) }()

	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(pipeRWC{Reader: outR, WriteCloser: inW}, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (any, error) {
			return nil, nil
		}),
	)

	var sum int
	if err := conn.Call(ctx, "add", []int{2, 3}, &sum); err != nil {
		t.Fatalf("call add: %v", err)
	}
	if sum != 5 {
		t.Fatalf("sum = %d", sum)
	}

	err := conn.Call(ctx, "fail", nil, nil)
	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != int64(jsonrpc.ErrorCodeInvalidParams) || rpcErr.Message != "nope" {
		t.Fatalf("unexpected error: %v", err)
	}

	err = conn.Call(ctx, "missing", nil, nil)
	if !errors.As(err, &rpcErr) || rpcErr.Code != jsonrpc2.CodeMethodNotFound {
		t.Fatalf("expected method not found, got %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-served; err != nil {
		t.Fatalf("serve: %v", err)
	}
}

// Frames produced by jsonrpc2's codec decode with Decoder and vice versa.
func TestInterop_CodecByteCompatible(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	go func() {
		stream := jsonrpc2.NewBufferedStream(pipeRWC{Reader: eofReader{}, WriteCloser: pw}, jsonrpc2.VSCodeObjectCodec{})
		params := json.RawMessage(`{"textDocument":{"uri":"file:///a.zig"}}`)
		_ = stream.WriteObject(&jsonrpc2.Request{Method: "textDocument/hover", Params: &params, ID: jsonrpc2.ID{Num: 3}})
		_ = stream.WriteObject(&jsonrpc2.Request{Method: "initialized", Notif: true})
		_ = pw.Close()
	}()

	dec := NewDecoder(pr)
	msg, err := dec.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Kind() != jsonrpc.KindRequest || msg.Method != "textDocument/hover" || !msg.ID.Equal(jsonrpc.NewRequestID(3)) {
		t.Fatalf("unexpected request: %+v", msg)
	}
	msg, err = dec.Decode()
	if err != nil || msg.Kind() != jsonrpc.KindNotification {
		t.Fatalf("unexpected notification: %+v %v", msg, err)
	}

	fr, fw := io.Pipe()
	go func() {
		res, _ := jsonrpc.NewResultResponse(jsonrpc.NewRequestID(3), map[string]string{"ok": "yes"})
		_ = Encode(fw, res)
	}()
	stream := jsonrpc2.NewBufferedStream(pipeRWC{Reader: fr, WriteCloser: nopWriteCloser{}}, jsonrpc2.VSCodeObjectCodec{})
	var resp jsonrpc2.Response
	if err := stream.ReadObject(&resp); err != nil {
		t.Fatalf("jsonrpc2 read: %v", err)
	}
	if resp.ID.Num != 3 || resp.Result == nil || string(*resp.Result) != `{"ok":"yes"}` {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }
