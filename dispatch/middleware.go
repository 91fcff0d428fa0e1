package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"github.com/ggoodman/lsp-jsonrpc-go/internal/logctx"
	"github.com/ggoodman/lsp-jsonrpc-go/jsonrpc"
)

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middleware so that the first one is the outermost.
func Chain(mw ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(mw) - 1; i >= 0; i-- {
			if mw[i] != nil {
				next = mw[i](next)
			}
		}
		return next
	}
}

// Logging logs every handler invocation with its duration.
func Logging(log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, params json.RawMessage) (any, error) {
			start := time.Now()
			res, err := next(ctx, params)
			dur := slog.Int64("dur_ms", time.Since(start).Milliseconds())
			switch {
			case err == nil, errors.Is(err, ErrStop):
				log.InfoContext(ctx, "handler.ok", dur)
			default:
				log.WarnContext(ctx, "handler.err", dur, slog.String("err", err.Error()))
			}
			return res, err
		}
	}
}

// Timeout bounds each handler invocation. A handler still running when the
// deadline passes is abandoned and the call fails with a request-cancelled
// error; the handler's context is cancelled so it can return early.
//
// An abandoned handler is not waited for. It may still be running while the
// serve loop reads and dispatches the next message, so handlers used with
// Timeout must tolerate running concurrently with later calls.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, params json.RawMessage) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type outcome struct {
				res any
				err error
			}
			done := make(chan outcome, 1)
			go func() {
				var o outcome
				defer func() {
					if r := recover(); r != nil {
						o = outcome{err: &PanicError{Value: r, Stack: debug.Stack()}}
					}
					done <- o
				}()
				o.res, o.err = next(ctx, params)
			}()

			select {
			case o := <-done:
				return o.res, o.err
			case <-ctx.Done():
				return nil, jsonrpc.NewError(jsonrpc.ErrorCodeRequestCancelled, "request timed out")
			}
		}
	}
}

// RateLimit rejects calls beyond r per second using a token bucket shared by
// all methods. Calls to the exempt methods bypass the bucket and consume no
// tokens. A burst below 1 is raised to 1 so that a positive rate admits calls.
func RateLimit(r float64, burst int, exempt ...string) Middleware {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	skip := make(map[string]struct{}, len(exempt))
	for _, m := range exempt {
		skip[m] = struct{}{}
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, params json.RawMessage) (any, error) {
			if _, ok := skip[methodFrom(ctx)]; !ok && !limiter.Allow() {
				return nil, jsonrpc.NewError(jsonrpc.ErrorCodeRateLimited, "rate limit exceeded")
			}
			return next(ctx, params)
		}
	}
}

// methodFrom returns the method being dispatched, as recorded by Dispatch.
func methodFrom(ctx context.Context) string {
	if msg, ok := logctx.RPCMessageFrom(ctx); ok {
		return msg.Method
	}
	return ""
}
