package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-method call counts and latencies.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// selects prometheus.DefaultRegisterer. Collectors already registered by an
// earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	calls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsonrpc_calls_total",
			Help: "Total number of dispatched JSON-RPC calls",
		},
		[]string{"method", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jsonrpc_call_duration_seconds",
			Help:    "Duration of dispatched JSON-RPC calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	var err error
	if calls, err = register(reg, calls); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &Metrics{calls: calls, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

// Middleware returns a Middleware observing every call. Status is "ok",
// "error" for declared failures or "fault" for anything else.
func (m *Metrics) Middleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, params json.RawMessage) (any, error) {
			start := time.Now()
			res, err := next(ctx, params)

			method := methodFrom(ctx)
			status := "ok"
			if err != nil && !errors.Is(err, ErrStop) {
				status = "error"
				if classify(err) == KindFault {
					status = "fault"
				}
			}
			m.calls.WithLabelValues(method, status).Inc()
			m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
			return res, err
		}
	}
}
