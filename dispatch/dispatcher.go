// Package dispatch routes decoded JSON-RPC messages to registered handlers and
// turns their outcome into at most one reply.
//
// A Dispatcher is transport-agnostic: it consumes *jsonrpc.AnyMessage values
// and produces a Result describing the reply to write (if any), whether the
// serve loop should stop, and a DispatchError when something failed. It never
// panics on handler faults.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ggoodman/lsp-jsonrpc-go/internal/logctx"
	"github.com/ggoodman/lsp-jsonrpc-go/jsonrpc"
)

// ErrStop may be returned (optionally wrapped) by a handler to ask the serve
// loop to terminate once the current message has been handled.
var ErrStop = errors.New("dispatch: stop serving")

// ErrorKind classifies a DispatchError.
type ErrorKind int

const (
	// KindNotFound means no handler is registered for the method.
	KindNotFound ErrorKind = iota + 1
	// KindDeclared means the handler returned a *jsonrpc.Error.
	KindDeclared
	// KindFault means the handler returned any other error or panicked.
	KindFault
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindDeclared:
		return "declared"
	case KindFault:
		return "fault"
	default:
		return "unknown"
	}
}

// DispatchError describes an application-level failure while handling one
// message.
type DispatchError struct {
	Kind   ErrorKind
	Method string
	ID     *jsonrpc.RequestID
	Cause  error
}

func (e *DispatchError) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("dispatch %s: method not found", e.Method)
	default:
		return fmt.Sprintf("dispatch %s: %s: %v", e.Method, e.Kind, e.Cause)
	}
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// Result is the outcome of dispatching one inbound message.
type Result struct {
	// Reply is the response to write, or nil when nothing must be sent.
	Reply *jsonrpc.Response
	// Stop asks the serve loop to terminate after writing Reply.
	Stop bool
	// Err is set when the message could not be handled successfully.
	Err *DispatchError
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithMiddleware appends middleware applied to every handler. The first
// middleware is the outermost.
func WithMiddleware(mw ...Middleware) Option {
	return func(d *Dispatcher) {
		d.middleware = append(d.middleware, mw...)
	}
}

// Dispatcher routes messages to the handlers of a sealed Registry.
type Dispatcher struct {
	log        *slog.Logger
	middleware []Middleware
	handlers   map[string]HandlerFunc
}

// New builds a Dispatcher from reg. The registry is sealed: later calls to
// reg.Register panic.
func New(reg *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	chain := Chain(d.middleware...)
	d.handlers = reg.seal()
	for m, h := range d.handlers {
		d.handlers[m] = chain(recoverer(h))
	}
	return d
}

// Dispatch handles one inbound message.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *jsonrpc.AnyMessage) Result {
	kind := msg.Kind()
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Kind:   kind.String(),
	})

	switch kind {
	case jsonrpc.KindResponse:
		// This role never issues requests, so any response is peer confusion.
		d.log.WarnContext(ctx, "dispatch.response.unexpected")
		return Result{}
	case jsonrpc.KindNotification:
		return d.handleNotification(ctx, msg)
	default:
		return d.handleRequest(ctx, msg)
	}
}

func (d *Dispatcher) handleNotification(ctx context.Context, msg *jsonrpc.AnyMessage) Result {
	h, ok := d.handlers[msg.Method]
	if !ok {
		// Notifications never produce error responses.
		d.log.DebugContext(ctx, "dispatch.notification.ignored")
		return Result{}
	}

	start := time.Now()
	_, err := d.invoke(ctx, h, msg)
	if err == nil {
		d.log.DebugContext(ctx, "dispatch.notification.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return Result{}
	}
	if errors.Is(err, ErrStop) {
		d.log.DebugContext(ctx, "dispatch.notification.stop")
		return Result{Stop: true}
	}

	derr := &DispatchError{Kind: classify(err), Method: msg.Method, Cause: err}
	d.logFailure(ctx, "dispatch.notification.err", err)
	return Result{Err: derr}
}

func (d *Dispatcher) handleRequest(ctx context.Context, msg *jsonrpc.AnyMessage) Result {
	h, ok := d.handlers[msg.Method]
	if !ok {
		d.log.DebugContext(ctx, "dispatch.request.not_found")
		return Result{
			Reply: jsonrpc.NewErrorResponse(msg.ID, jsonrpc.ErrorCodeMethodNotFound, "Method not found: "+msg.Method, nil),
			Err:   &DispatchError{Kind: KindNotFound, Method: msg.Method, ID: msg.ID},
		}
	}

	start := time.Now()
	res, err := d.invoke(ctx, h, msg)

	var stop bool
	if err != nil && errors.Is(err, ErrStop) {
		res, err, stop = nil, nil, true
	}

	if err == nil {
		reply, merr := jsonrpc.NewResultResponse(msg.ID, res)
		if merr != nil {
			d.logFailure(ctx, "dispatch.request.marshal.err", merr)
			return Result{
				Reply: internalError(msg.ID),
				Stop:  stop,
				Err:   &DispatchError{Kind: KindFault, Method: msg.Method, ID: msg.ID, Cause: merr},
			}
		}
		d.log.DebugContext(ctx, "dispatch.request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return Result{Reply: reply, Stop: stop}
	}

	derr := &DispatchError{Kind: classify(err), Method: msg.Method, ID: msg.ID, Cause: err}
	d.logFailure(ctx, "dispatch.request.err", err)

	var rpcErr *jsonrpc.Error
	if derr.Kind == KindDeclared && errors.As(err, &rpcErr) {
		code := rpcErr.Code
		if code == 0 {
			code = jsonrpc.ErrorCodeInternalError
		}
		return Result{Reply: jsonrpc.NewErrorResponse(msg.ID, code, rpcErr.Message, rpcErr.Data), Err: derr}
	}
	return Result{Reply: internalError(msg.ID), Err: derr}
}

// recoverer turns a panic in h into a *PanicError so that middleware observes
// it as an ordinary failure.
func recoverer(h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, params json.RawMessage) (res any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		return h(ctx, params)
	}
}

// invoke runs the chained handler. Panics raised by middleware are converted
// the same way as handler panics.
func (d *Dispatcher) invoke(ctx context.Context, h HandlerFunc, msg *jsonrpc.AnyMessage) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return h(ctx, msg.Params)
}

func (d *Dispatcher) logFailure(ctx context.Context, event string, err error) {
	attrs := []slog.Attr{slog.String("err", err.Error())}
	var pe *PanicError
	if errors.As(err, &pe) {
		attrs = append(attrs, slog.String("stack", strings.TrimSpace(string(pe.Stack))))
	}
	level := slog.LevelWarn
	if classify(err) == KindFault {
		level = slog.LevelError
	}
	d.log.LogAttrs(ctx, level, event, attrs...)
}

func classify(err error) ErrorKind {
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return KindDeclared
	}
	return KindFault
}

func internalError(id *jsonrpc.RequestID) *jsonrpc.Response {
	return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "Internal error", nil)
}
