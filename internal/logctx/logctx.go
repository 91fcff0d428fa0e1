package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with request and session data carried in the
// context.
type Handler struct {
	slog.Handler
}

// Wrap returns h decorated with context attributes. Wrapping an already
// wrapped handler is a no-op.
func Wrap(h slog.Handler) slog.Handler {
	if _, ok := h.(Handler); ok {
		return h
	}
	return Handler{Handler: h}
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("session",
			slog.String("id", sd.SessionID),
			slog.String("role", sd.Role),
		))
	}

	if msg, ok := ctx.Value(rpcMsg{}).(*RPCMessage); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", msg.Method),
			slog.String("id", msg.ID),
			slog.String("kind", msg.Kind),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type rpcMsg struct{}

// RPCMessage identifies the JSON-RPC message being processed.
type RPCMessage struct {
	Method string
	ID     string
	Kind   string
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcMsg{}, msg)
}

// RPCMessageFrom returns the message stored by WithRPCMessage, if any.
func RPCMessageFrom(ctx context.Context) (*RPCMessage, bool) {
	msg, ok := ctx.Value(rpcMsg{}).(*RPCMessage)
	return msg, ok
}

type sessionDataKey struct{}

// SessionData identifies one end of a JSON-RPC connection.
type SessionData struct {
	SessionID string
	Role      string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}
