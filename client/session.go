// Package client drives a JSON-RPC peer over a framed byte stream. A Session
// issues requests with monotonically increasing ids, correlates responses
// that may arrive in any order and hands server notifications to a callback.
//
// Exactly one goroutine must run Session.Run; it is the only reader of the
// stream. Call and Notify may be used concurrently from any goroutine.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ggoodman/lsp-jsonrpc-go/internal/logctx"
	"github.com/ggoodman/lsp-jsonrpc-go/internal/outbound"
	"github.com/ggoodman/lsp-jsonrpc-go/jsonrpc"
	"github.com/ggoodman/lsp-jsonrpc-go/stdio"
)

// ErrSessionClosed is returned by calls that could not complete because the
// session ended. The cause, when known, is wrapped alongside it.
var ErrSessionClosed = errors.New("session closed")

// NotificationHandler receives notifications sent by the peer.
type NotificationHandler func(ctx context.Context, method string, params json.RawMessage)

// Tracer observes every message crossing the session.
type Tracer interface {
	Outgoing(v any)
	Incoming(msg *jsonrpc.AnyMessage)
}

// Session is the client side of one JSON-RPC connection.
type Session struct {
	id  string
	ch  *stdio.Channel
	out *outbound.Dispatcher
	log *slog.Logger

	onNotify NotificationHandler
	tracer   Tracer

	idSeed           int64
	maxContentLength int64

	closeOnce sync.Once
	closeErr  error
}

// NewSession returns a Session reading frames from r and writing frames to w.
func NewSession(r io.Reader, w io.Writer, opts ...Option) *Session {
	s := &Session{
		id:               uuid.NewString(),
		log:              slog.New(slog.DiscardHandler),
		idSeed:           1,
		maxContentLength: stdio.DefaultMaxContentLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.onNotify == nil {
		s.onNotify = func(ctx context.Context, method string, _ json.RawMessage) {
			s.log.DebugContext(ctx, "session.notification.unhandled")
		}
	}
	s.ch = stdio.NewChannel(r, w, stdio.MaxContentLength(s.maxContentLength))
	s.out = outbound.New(transport{s}, s.idSeed)
	return s
}

// ID returns the session's unique identifier used in logs.
func (s *Session) ID() string { return s.id }

// Call sends a request and blocks until the correlated response arrives, ctx
// ends or the session closes. An error response is returned as *jsonrpc.Error.
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx = s.context(ctx)
	resp, err := s.out.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// CallResult is like Call and decodes the result into out. A nil out discards
// the result.
func (s *Session) CallResult(ctx context.Context, method string, params any, out any) error {
	raw, err := s.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Notify writes a notification and returns without waiting for the peer.
func (s *Session) Notify(ctx context.Context, method string, params any) error {
	note, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	return s.write(note)
}

// Run reads and routes inbound messages until the stream ends, a fatal frame
// error occurs or ctx is cancelled. When Run returns, every outstanding call
// fails with ErrSessionClosed. A clean end of stream returns nil.
func (s *Session) Run(ctx context.Context) error {
	ctx = s.context(ctx)
	for {
		msg, err := s.ch.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.fail(ctxErr)
				return ctxErr
			}
			if errors.Is(err, io.EOF) {
				s.log.DebugContext(ctx, "session.eof")
				s.fail(io.EOF)
				return nil
			}
			if errors.Is(err, stdio.ErrChannelClosed) {
				s.fail(nil)
				return nil
			}

			var fe *stdio.FrameError
			if errors.As(err, &fe) && fe.Recoverable() {
				s.log.WarnContext(ctx, "session.frame.err", slog.String("err", err.Error()))
				continue
			}
			s.log.ErrorContext(ctx, "session.read.fatal", slog.String("err", err.Error()))
			s.fail(err)
			return err
		}

		if s.tracer != nil {
			s.tracer.Incoming(msg)
		}
		s.route(ctx, msg)
	}
}

func (s *Session) route(ctx context.Context, msg *jsonrpc.AnyMessage) {
	kind := msg.Kind()
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: msg.Method, ID: msg.ID.String(), Kind: kind.String()})

	switch kind {
	case jsonrpc.KindResponse:
		if !s.out.OnResponse(msg.AsResponse()) {
			s.log.WarnContext(ctx, "session.response.unmatched")
		}
	case jsonrpc.KindNotification:
		s.onNotify(ctx, msg.Method, msg.Params)
	case jsonrpc.KindRequest:
		s.log.DebugContext(ctx, "session.request.unsupported")
		reply := jsonrpc.NewErrorResponse(msg.ID, jsonrpc.ErrorCodeMethodNotFound, "Method not found: "+msg.Method, nil)
		if err := s.write(reply); err != nil {
			s.log.WarnContext(ctx, "session.reply.err", slog.String("err", err.Error()))
		}
	}
}

// Close fails outstanding calls and closes the writer.
func (s *Session) Close() error {
	s.fail(nil)
	return s.ch.Close()
}

func (s *Session) fail(cause error) {
	s.closeOnce.Do(func() {
		if cause == nil {
			s.closeErr = ErrSessionClosed
		} else {
			s.closeErr = fmt.Errorf("%w: %w", ErrSessionClosed, cause)
		}
		s.out.Close(s.closeErr)
	})
}

func (s *Session) write(v any) error {
	if s.tracer != nil {
		s.tracer.Outgoing(v)
	}
	return s.ch.Write(v)
}

func (s *Session) context(ctx context.Context) context.Context {
	return logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: s.id, Role: "client"})
}

// transport adapts the session's channel to outbound.Transport.
type transport struct{ s *Session }

func (t transport) SendRequest(_ context.Context, req *jsonrpc.Request) error {
	return t.s.write(req)
}

func (t transport) SendCancelled(_ context.Context, id *jsonrpc.RequestID) error {
	note, err := jsonrpc.NewNotification(outbound.CancelRequestMethod, outbound.CancelParams{ID: id})
	if err != nil {
		return err
	}
	return t.s.write(note)
}
