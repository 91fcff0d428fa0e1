package stdio

import (
	"io"
	"log/slog"
)

// Option customizes a Handler.
type Option func(*Handler)

// WithIO sets the reader and writer for the handler.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithReader overrides the input stream.
func WithReader(r io.Reader) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
	}
}

// WithWriter overrides the output stream.
func WithWriter(w io.Writer) Option {
	return func(h *Handler) {
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger. It must never write to the output stream.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithMaxContentLength bounds the accepted body size of inbound frames.
func WithMaxContentLength(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxContentLength = n
		}
	}
}

// WithMaxConsecutiveFrameErrors sets how many recoverable frame errors in a
// row end Serve.
func WithMaxConsecutiveFrameErrors(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxFrameErrors = n
		}
	}
}
