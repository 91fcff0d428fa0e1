package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestAnyMessage_Kind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want Kind
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, KindRequest},
		{"string id request", `{"jsonrpc":"2.0","id":"abc","method":"textDocument/hover"}`, KindRequest},
		{"notification", `{"jsonrpc":"2.0","method":"initialized","params":{}}`, KindNotification},
		{"result response", `{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`, KindResponse},
		{"null result response", `{"jsonrpc":"2.0","id":7,"result":null}`, KindResponse},
		{"error response", `{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"Method not found: x"}}`, KindResponse},
		{"parse error response with null id", `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`, KindResponse},
		{"missing jsonrpc member", `{"id":1,"method":"shutdown"}`, KindRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var msg AnyMessage
			if err := json.Unmarshal([]byte(tc.in), &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := msg.Kind(); got != tc.want {
				t.Fatalf("kind: got %s want %s", got, tc.want)
			}
		})
	}
}

func TestAnyMessage_InvalidShapes(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty object":          `{}`,
		"result and error":      `{"id":1,"result":1,"error":{"code":1,"message":"x"}}`,
		"request with result":   `{"id":1,"method":"m","result":1}`,
		"result without id":     `{"result":{}}`,
		"fractional id":         `{"id":1.5,"method":"m"}`,
		"object id":             `{"id":{},"method":"m"}`,
		"array body":            `[{"id":1,"method":"m"}]`,
		"scalar body":           `42`,
		"method of wrong type":  `{"id":1,"method":3}`,
		"only jsonrpc version":  `{"jsonrpc":"2.0"}`,
		"error of wrong type":   `{"id":1,"error":"boom"}`,
		"boolean id":            `{"id":true,"method":"m"}`,
		"params but no method":  `{"id":1,"params":{}}`,
		"id only, no payload":   `{"id":5}`,
		"null method and no id": `{"method":null}`,
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var msg AnyMessage
			err := json.Unmarshal([]byte(in), &msg)
			if err == nil {
				t.Fatalf("expected error for %s, decoded kind %s", in, msg.Kind())
			}
			if !errors.Is(err, ErrInvalidShape) {
				t.Fatalf("expected ErrInvalidShape, got %v", err)
			}
		})
	}
}

func TestAnyMessage_AsRequestAsResponse(t *testing.T) {
	t.Parallel()

	var req AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":"x","method":"m","params":{"a":1}}`), &req); err != nil {
		t.Fatal(err)
	}
	if req.AsResponse() != nil {
		t.Fatalf("request must not convert to a response")
	}
	r := req.AsRequest()
	if r == nil || r.Method != "m" || r.ID.String() != "x" || string(r.Params) != `{"a":1}` {
		t.Fatalf("unexpected request: %+v", r)
	}

	var resp AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":3,"result":[1,2]}`), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.AsRequest() != nil {
		t.Fatalf("response must not convert to a request")
	}
	rr := resp.AsResponse()
	if rr == nil || string(rr.Result) != `[1,2]` || rr.ID.Value() != int64(3) {
		t.Fatalf("unexpected response: %+v", rr)
	}
}

func TestResponse_NullResultIsEncoded(t *testing.T) {
	t.Parallel()

	resp, err := NewResultResponse(NewRequestID(4), nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"jsonrpc":"2.0","result":null,"id":4}`; string(b) != want {
		t.Fatalf("got %s want %s", b, want)
	}

	var back AnyMessage
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Kind() != KindResponse || string(back.Result) != "null" {
		t.Fatalf("null result lost: %+v", back)
	}
}

func TestNewNotification_OmitsID(t *testing.T) {
	t.Parallel()

	n, err := NewNotification("exit", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := json.Marshal(n)
	if want := `{"jsonrpc":"2.0","method":"exit"}`; string(b) != want {
		t.Fatalf("got %s want %s", b, want)
	}
}

func TestNewErrorResponse_NullID(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(NewErrorResponse(nil, ErrorCodeParseError, "Parse error", nil))
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":null}`; string(b) != want {
		t.Fatalf("got %s want %s", b, want)
	}
}
