package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandler_AddsGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(Wrap(slog.NewJSONHandler(&buf, nil)))

	ctx := WithSessionData(context.Background(), &SessionData{SessionID: "s-1", Role: "client"})
	ctx = WithRPCMessage(ctx, &RPCMessage{Method: "textDocument/hover", ID: "3", Kind: "request"})
	log.InfoContext(ctx, "handled")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	rpc, ok := rec["rpc"].(map[string]any)
	if !ok {
		t.Fatalf("missing rpc group: %s", buf.String())
	}
	if rpc["method"] != "textDocument/hover" || rpc["id"] != "3" || rpc["kind"] != "request" {
		t.Fatalf("unexpected rpc group: %v", rpc)
	}
	sess, ok := rec["session"].(map[string]any)
	if !ok || sess["id"] != "s-1" || sess["role"] != "client" {
		t.Fatalf("unexpected session group: %v", rec["session"])
	}
}

func TestHandler_WithAttrsKeepsDecoration(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(Wrap(slog.NewJSONHandler(&buf, nil))).With("component", "test")

	ctx := WithRPCMessage(context.Background(), &RPCMessage{Method: "exit", Kind: "notification"})
	log.InfoContext(ctx, "x")

	if !bytes.Contains(buf.Bytes(), []byte(`"rpc":{"method":"exit"`)) {
		t.Fatalf("rpc group lost after With: %s", buf.String())
	}
}

func TestWrap_Idempotent(t *testing.T) {
	t.Parallel()

	h := Wrap(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if _, ok := Wrap(h).(Handler); !ok {
		t.Fatalf("expected Handler")
	}
	if inner := Wrap(h).(Handler).Handler; func() bool { _, ok := inner.(Handler); return ok }() {
		t.Fatalf("double wrapped")
	}
}

func TestRPCMessageFrom(t *testing.T) {
	t.Parallel()

	if _, ok := RPCMessageFrom(context.Background()); ok {
		t.Fatalf("unexpected message in empty context")
	}
	ctx := WithRPCMessage(context.Background(), &RPCMessage{Method: "m"})
	msg, ok := RPCMessageFrom(ctx)
	if !ok || msg.Method != "m" {
		t.Fatalf("got %+v", msg)
	}
}
