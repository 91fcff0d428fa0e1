package client

import "log/slog"

// Option customizes a Session.
type Option func(*Session)

// WithIDSeed sets the id of the first request. Later requests count up from it.
func WithIDSeed(seed int64) Option {
	return func(s *Session) {
		s.idSeed = seed
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithNotificationHandler sets the callback for peer notifications. It runs
// on the Run goroutine and must not block on the session's own calls.
func WithNotificationHandler(h NotificationHandler) Option {
	return func(s *Session) {
		if h != nil {
			s.onNotify = h
		}
	}
}

// WithTracer observes every message written and read.
func WithTracer(t Tracer) Option {
	return func(s *Session) {
		s.tracer = t
	}
}

// WithMaxContentLength bounds the accepted body size of inbound frames.
func WithMaxContentLength(n int64) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxContentLength = n
		}
	}
}
