package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/lsp-jsonrpc-go/jsonrpc"
)

// CancelRequestMethod is the LSP notification sent when a caller abandons a
// request.
const CancelRequestMethod = "$/cancelRequest"

// Transport abstracts how requests and cancellations are written to the peer.
type Transport interface {
	// SendRequest writes the request carrying the pre-allocated id.
	SendRequest(ctx context.Context, req *jsonrpc.Request) error
	// SendCancelled emits a $/cancelRequest notification for id.
	SendCancelled(ctx context.Context, id *jsonrpc.RequestID) error
}

// ErrDispatcherClosed indicates the dispatcher is closed.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// CancelParams is the payload of $/cancelRequest.
type CancelParams struct {
	ID *jsonrpc.RequestID `json:"id"`
}

type pendingCall struct {
	respCh chan *jsonrpc.Response
	errCh  chan error
}

// Dispatcher correlates outbound requests with their responses. It owns the
// table of outstanding requests and is transport-agnostic.
type Dispatcher struct {
	t Transport

	mu       sync.Mutex
	pending  map[string]*pendingCall // id.Key() -> call
	closeErr error

	nextID atomic.Int64
	closed atomic.Bool
}

// New constructs a Dispatcher. The first request uses id seed and every
// following one the next integer; ids are never reused.
func New(t Transport, seed int64) *Dispatcher {
	d := &Dispatcher{t: t, pending: make(map[string]*pendingCall)}
	d.nextID.Store(seed - 1)
	return d
}

// Call sends a request and waits for its response, for ctx to end or for the
// dispatcher to close. A response carrying an error member is returned as a
// response, not as an error. A response delivered while ctx is ending is still
// returned, and no cancellation is sent for it.
func (d *Dispatcher) Call(ctx context.Context, method string, params any) (*jsonrpc.Response, error) {
	if d.closed.Load() {
		return nil, d.err()
	}

	id := jsonrpc.NewRequestID(d.nextID.Add(1))
	key := id.Key()

	var paramsRaw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		paramsRaw = b
	}

	// Register before sending so a fast response is never missed.
	pc := &pendingCall{respCh: make(chan *jsonrpc.Response, 1), errCh: make(chan error, 1)}
	d.mu.Lock()
	if d.closed.Load() {
		d.mu.Unlock()
		return nil, d.err()
	}
	d.pending[key] = pc
	d.mu.Unlock()

	req := &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: method, Params: paramsRaw, ID: id}
	if err := d.t.SendRequest(ctx, req); err != nil {
		d.forget(key)
		return nil, err
	}

	select {
	case resp := <-pc.respCh:
		return resp, nil
	case err := <-pc.errCh:
		return nil, err
	case <-ctx.Done():
		if !d.forget(key) {
			// OnResponse or Close already claimed the call.
			select {
			case resp := <-pc.respCh:
				return resp, nil
			case err := <-pc.errCh:
				return nil, err
			}
		}
		// Best effort; the peer may already have answered.
		_ = d.t.SendCancelled(context.WithoutCancel(ctx), id)
		return nil, ctx.Err()
	}
}

// OnResponse delivers a response to the waiting call and reports whether one
// was found. Unmatched responses, including those with a null id, are left to
// the caller to report.
func (d *Dispatcher) OnResponse(resp *jsonrpc.Response) bool {
	if resp == nil || resp.ID.IsNil() {
		return false
	}
	key := resp.ID.Key()
	d.mu.Lock()
	pc, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if ok {
		pc.respCh <- resp
	}
	return ok
}

// Pending returns the number of outstanding requests.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close fails all pending calls with err and prevents new calls.
func (d *Dispatcher) Close(err error) {
	if err == nil {
		err = ErrDispatcherClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.closeErr = err
	for key, pc := range d.pending {
		delete(d.pending, key)
		pc.errCh <- err
	}
}

// forget removes key and reports whether it was still pending.
func (d *Dispatcher) forget(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	delete(d.pending, key)
	return ok
}

func (d *Dispatcher) err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closeErr != nil {
		return d.closeErr
	}
	return ErrDispatcherClosed
}
