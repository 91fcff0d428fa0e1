package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ggoodman/lsp-jsonrpc-go/jsonrpc"
)

// HandlerFunc handles one request or notification. The returned value is
// marshalled as the response result; it is discarded for notifications.
//
// Returning a *jsonrpc.Error (anywhere in the error chain) declares a failure
// whose code and message are sent to the peer. Any other error is treated as
// an unexpected fault and reported as a generic internal error.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Registry maps method names to handlers. It is populated before serving and
// becomes read-only once a Dispatcher is built from it.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	sealed   bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register adds a handler for method. It panics if method is empty, h is nil,
// the method is already registered or the registry has been sealed.
func (r *Registry) Register(method string, h HandlerFunc) {
	if method == "" {
		panic("dispatch: empty method name")
	}
	if h == nil {
		panic("dispatch: nil handler for " + method)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		panic("dispatch: Register called after the registry was sealed: " + method)
	}
	if _, dup := r.handlers[method]; dup {
		panic("dispatch: multiple registrations for " + method)
	}
	r.handlers[method] = h
}

// Lookup returns the handler registered for method.
func (r *Registry) Lookup(method string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[method]
	return h, ok
}

// Methods returns the registered method names in lexical order.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// seal freezes the registry and returns a snapshot of its handlers.
func (r *Registry) seal() map[string]HandlerFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	out := make(map[string]HandlerFunc, len(r.handlers))
	for m, h := range r.handlers {
		out[m] = h
	}
	return out
}

// Typed adapts a function taking decoded params into a HandlerFunc. Absent or
// null params decode to the zero value of P; params that do not decode yield
// an invalid-params failure.
func Typed[P any, R any](fn func(ctx context.Context, params P) (R, error)) HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p P
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("invalid params: %v", err))
			}
		}
		return fn(ctx, p)
	}
}
