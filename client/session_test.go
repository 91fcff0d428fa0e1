package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/ggoodman/lsp-jsonrpc-go/jsonrpc"
	"github.com/ggoodman/lsp-jsonrpc-go/stdio"
)

// harness connects a Session to a scripted peer through a pair of pipes.
type harness struct {
	t      *testing.T
	sess   *Session
	peer   *stdio.Channel
	toSess *io.PipeWriter
	runErr chan error
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()

	h := &harness{
		t:      t,
		sess:   NewSession(s2cR, c2sW, opts...),
		peer:   stdio.NewChannel(c2sR, s2cW),
		toSess: s2cW,
		runErr: make(chan error, 1),
	}
	go func() { h.runErr <- h.sess.Run(context.Background()) }()
	t.Cleanup(func() {
		_ = h.sess.Close()
		_ = s2cW.Close()
		_ = c2sR.Close()
	})
	return h
}

func (h *harness) read() *jsonrpc.AnyMessage {
	h.t.Helper()
	type res struct {
		msg *jsonrpc.AnyMessage
		err error
	}
	ch := make(chan res, 1)
	go func() {
		m, err := h.peer.Read()
		ch <- res{m, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			h.t.Fatalf("peer read: %v", r.err)
		}
		return r.msg
	case <-time.After(2 * time.Second):
		h.t.Fatalf("timed out waiting for client message")
		return nil
	}
}

func (h *harness) reply(id *jsonrpc.RequestID, v any) {
	h.t.Helper()
	resp, err := jsonrpc.NewResultResponse(id, v)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := h.peer.Write(resp); err != nil {
		h.t.Fatalf("peer write: %v", err)
	}
}

type callOutcome struct {
	raw json.RawMessage
	err error
}

func (h *harness) goCall(ctx context.Context, method string) <-chan callOutcome {
	out := make(chan callOutcome, 1)
	go func() {
		raw, err := h.sess.Call(ctx, method, nil)
		out <- callOutcome{raw, err}
	}()
	return out
}

func TestSession_OutOfOrderCorrelation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	c1 := h.goCall(ctx, "textDocument/hover")
	r1 := h.read()
	c2 := h.goCall(ctx, "textDocument/completion")
	r2 := h.read()

	if !r1.ID.Equal(jsonrpc.NewRequestID(1)) || !r2.ID.Equal(jsonrpc.NewRequestID(2)) {
		t.Fatalf("ids = %v, %v", r1.ID, r2.ID)
	}

	h.reply(r2.ID, "B")
	h.reply(r1.ID, "A")

	if o := <-c1; o.err != nil || string(o.raw) != `"A"` {
		t.Fatalf("call 1: %+v", o)
	}
	if o := <-c2; o.err != nil || string(o.raw) != `"B"` {
		t.Fatalf("call 2: %+v", o)
	}
}

func TestSession_IDSeed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, WithIDSeed(10))
	c := h.goCall(context.Background(), "a")
	r := h.read()
	if !r.ID.Equal(jsonrpc.NewRequestID(10)) {
		t.Fatalf("id = %v", r.ID)
	}
	h.reply(r.ID, nil)
	if o := <-c; o.err != nil || string(o.raw) != "null" {
		t.Fatalf("outcome: %+v", o)
	}
}

func TestSession_ErrorResponse(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	c := h.goCall(context.Background(), "textDocument/rename")
	r := h.read()
	if err := h.peer.Write(jsonrpc.NewErrorResponse(r.ID, jsonrpc.ErrorCodeMethodNotFound, "Method not found: textDocument/rename", nil)); err != nil {
		t.Fatal(err)
	}

	o := <-c
	var rpcErr *jsonrpc.Error
	if !errors.As(o.err, &rpcErr) || rpcErr.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("expected method not found, got %v", o.err)
	}
}

func TestSession_UnmatchedResponseIsDropped(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	c := h.goCall(context.Background(), "m")
	r := h.read()

	h.reply(jsonrpc.NewRequestID(999), "stray")
	h.reply(jsonrpc.NewRequestID("1"), "wrong type")
	if err := h.peer.Write(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "Parse error", nil)); err != nil {
		t.Fatal(err)
	}
	h.reply(r.ID, "ok")

	if o := <-c; o.err != nil || string(o.raw) != `"ok"` {
		t.Fatalf("outcome: %+v", o)
	}
}

func TestSession_RepliesMethodNotFoundToPeerRequests(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	req, _ := jsonrpc.NewRequest(jsonrpc.NewRequestID("srv-1"), "workspace/configuration", map[string]any{"items": []any{}})
	if err := h.peer.Write(req); err != nil {
		t.Fatal(err)
	}

	msg := h.read()
	if msg.Kind() != jsonrpc.KindResponse || !msg.ID.Equal(jsonrpc.NewRequestID("srv-1")) {
		t.Fatalf("unexpected reply: %+v", msg)
	}
	if msg.Error == nil || msg.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("unexpected error: %+v", msg.Error)
	}
}

func TestSession_Notifications(t *testing.T) {
	t.Parallel()

	got := make(chan string, 1)
	h := newHarness(t, WithNotificationHandler(func(_ context.Context, method string, params json.RawMessage) {
		got <- method + " " + string(params)
	}))

	note, _ := jsonrpc.NewNotification("window/logMessage", map[string]any{"type": 3, "message": "hi"})
	if err := h.peer.Write(note); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-got:
		if s != `window/logMessage {"message":"hi","type":3}` {
			t.Fatalf("got %q", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("notification not delivered")
	}

	notifyErr := make(chan error, 1)
	go func() { notifyErr <- h.sess.Notify(context.Background(), "initialized", struct{}{}) }()
	msg := h.read()
	if err := <-notifyErr; err != nil {
		t.Fatalf("notify: %v", err)
	}
	if msg.Kind() != jsonrpc.KindNotification || msg.Method != "initialized" || string(msg.Params) != "{}" {
		t.Fatalf("unexpected notification: %+v", msg)
	}
}

func TestSession_CancelSendsCancelRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	c := h.goCall(ctx, "slow")
	r := h.read()
	cancel()

	msg := h.read()
	if msg.Method != "$/cancelRequest" || string(msg.Params) != `{"id":1}` {
		t.Fatalf("unexpected cancel: %+v %s", msg, msg.Params)
	}
	if o := <-c; !errors.Is(o.err, context.Canceled) {
		t.Fatalf("expected cancel, got %v", o.err)
	}

	// A late response is dropped and the session keeps working.
	h.reply(r.ID, "late")
	c2 := h.goCall(context.Background(), "fast")
	r2 := h.read()
	h.reply(r2.ID, 2)
	if o := <-c2; o.err != nil || string(o.raw) != "2" {
		t.Fatalf("outcome: %+v", o)
	}
}

func TestSession_EOFFailsPending(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	c := h.goCall(context.Background(), "m")
	h.read()
	_ = h.toSess.Close()

	o := <-c
	if !errors.Is(o.err, ErrSessionClosed) || !errors.Is(o.err, io.EOF) {
		t.Fatalf("expected session closed by EOF, got %v", o.err)
	}
	if err := <-h.runErr; err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := h.sess.Call(context.Background(), "again", nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("call after close: %v", err)
	}
}

func TestSession_CloseFailsPending(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	c := h.goCall(context.Background(), "m")
	h.read()
	if err := h.sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if o := <-c; !errors.Is(o.err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", o.err)
	}
	if err := <-h.runErr; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestSession_SkipsRecoverableFrameErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	c := h.goCall(context.Background(), "m")
	r := h.read()

	if _, err := io.WriteString(h.toSess, "Content-Length: abc\r\n\r\n"); err != nil {
		t.Fatal(err)
	}
	h.reply(r.ID, true)
	if o := <-c; o.err != nil || string(o.raw) != "true" {
		t.Fatalf("outcome: %+v", o)
	}
}

type recordingTracer struct {
	mu  sync.Mutex
	out int
	in  int
}

func (r *recordingTracer) Outgoing(any) {
	r.mu.Lock()
	r.out++
	r.mu.Unlock()
}

func (r *recordingTracer) Incoming(*jsonrpc.AnyMessage) {
	r.mu.Lock()
	r.in++
	r.mu.Unlock()
}

func TestSession_Tracer(t *testing.T) {
	t.Parallel()

	tr := &recordingTracer{}
	h := newHarness(t, WithTracer(tr))
	c := h.goCall(context.Background(), "m")
	h.reply(h.read().ID, 1)
	<-c

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.out != 1 || tr.in != 1 {
		t.Fatalf("traced out=%d in=%d", tr.out, tr.in)
	}
}

type rwc struct {
	io.Reader
	io.WriteCloser
}

func TestSession_InteropWithJSONRPC2Server(t *testing.T) {
	t.Parallel()

	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(rwc{Reader: c2sR, WriteCloser: s2cW}, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(func(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
			switch req.Method {
			case "textDocument/hover":
				return map[string]any{"contents": "ok"}, nil
			default:
				return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "nope"}
			}
		}),
	)
	defer conn.Close()

	sess := NewSession(s2cR, c2sW)
	go func() { _ = sess.Run(ctx) }()
	defer sess.Close()

	var hover struct {
		Contents string `json:"contents"`
	}
	if err := sess.CallResult(ctx, "textDocument/hover", map[string]any{"line": 0}, &hover); err != nil {
		t.Fatalf("hover: %v", err)
	}
	if hover.Contents != "ok" {
		t.Fatalf("contents = %q", hover.Contents)
	}

	_, err := sess.Call(ctx, "unknown", nil)
	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("expected method not found, got %v", err)
	}
}
