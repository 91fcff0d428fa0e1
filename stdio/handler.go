package stdio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ggoodman/lsp-jsonrpc-go/dispatch"
	"github.com/ggoodman/lsp-jsonrpc-go/internal/logctx"
)

// DefaultMaxConsecutiveFrameErrors is how many recoverable frame errors in a
// row a Handler tolerates before giving up on the stream.
const DefaultMaxConsecutiveFrameErrors = 8

// ErrAlreadyServing is returned by Serve when called more than once.
var ErrAlreadyServing = errors.New("stdio: Serve called more than once")

// Handler is a single-connection transport that reads framed JSON-RPC
// messages from an io.Reader, dispatches them and writes replies to an
// io.Writer. By default it uses os.Stdin and os.Stdout.
//
// The handler is transport-only; it delegates all method semantics to the
// provided dispatch.Dispatcher.
type Handler struct {
	d *dispatch.Dispatcher
	r io.Reader
	w io.Writer
	l *slog.Logger

	maxContentLength int64
	maxFrameErrors   int

	serving atomic.Bool
}

// NewHandler constructs a Handler with defaults and applies options.
func NewHandler(d *dispatch.Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		d:                d,
		r:                os.Stdin,
		w:                os.Stdout,
		l:                slog.New(slog.DiscardHandler),
		maxContentLength: DefaultMaxContentLength,
		maxFrameErrors:   DefaultMaxConsecutiveFrameErrors,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve runs the event loop. The next frame is only read after the previous
// message has been dispatched and its reply written.
//
// Serve returns nil when the input reaches EOF or a handler asks to stop. It
// returns ctx.Err() on cancellation, the last frame error once too many
// recoverable ones occur in a row, and any fatal frame or I/O error. The
// writer is closed on return when it implements io.Closer. Serve may be called
// at most once per Handler.
func (h *Handler) Serve(ctx context.Context) error {
	if !h.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: uuid.NewString(), Role: "server"})

	ch := NewChannel(h.r, h.w, MaxContentLength(h.maxContentLength))
	defer func() {
		if err := ch.Close(); err != nil {
			h.l.DebugContext(ctx, "stdio.close.err", slog.String("err", err.Error()))
		}
	}()

	h.l.DebugContext(ctx, "stdio.serve.start")

	var consecutive int
	for {
		msg, err := ch.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, io.EOF) {
				h.l.DebugContext(ctx, "stdio.serve.eof")
				return nil
			}

			var fe *FrameError
			if errors.As(err, &fe) && fe.Recoverable() {
				consecutive++
				h.l.WarnContext(ctx, "stdio.frame.err",
					slog.String("err", err.Error()),
					slog.Int("consecutive", consecutive),
				)
				if consecutive >= h.maxFrameErrors {
					return fmt.Errorf("too many consecutive frame errors: %w", err)
				}
				continue
			}

			h.l.ErrorContext(ctx, "stdio.read.fatal", slog.String("err", err.Error()))
			return err
		}
		consecutive = 0

		res := h.d.Dispatch(ctx, msg)
		if res.Reply != nil {
			if err := ch.Write(res.Reply); err != nil {
				h.l.ErrorContext(ctx, "stdio.write.err", slog.String("err", err.Error()))
				return fmt.Errorf("failed to write reply: %w", err)
			}
		}
		if res.Stop {
			h.l.DebugContext(ctx, "stdio.serve.stop")
			return nil
		}
	}
}
