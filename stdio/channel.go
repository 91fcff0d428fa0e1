package stdio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ggoodman/lsp-jsonrpc-go/jsonrpc"
)

// ErrChannelClosed is returned by Next after Close.
var ErrChannelClosed = errors.New("channel closed")

// ChannelOption customizes a Channel.
type ChannelOption func(*Channel)

// MaxContentLength bounds the body size accepted by the channel's decoder.
func MaxContentLength(n int64) ChannelOption {
	return func(c *Channel) {
		c.dec.MaxContentLength = n
	}
}

// Channel is a bidirectional framed JSON-RPC stream. It owns exclusive read
// access to its reader and serializes writers so that frames written from
// different goroutines never interleave.
type Channel struct {
	dec *Decoder
	rmu sync.Mutex

	wmu sync.Mutex
	bw  *bufio.Writer
	w   io.Writer

	pumpOnce sync.Once
	nmu      sync.Mutex
	inflight bool
	req      chan struct{}
	res      chan readResult

	closeOnce sync.Once
	done      chan struct{}
}

type readResult struct {
	msg *jsonrpc.AnyMessage
	err error
}

// NewChannel returns a Channel reading frames from r and writing frames to w.
func NewChannel(r io.Reader, w io.Writer, opts ...ChannelOption) *Channel {
	c := &Channel{
		dec:  NewDecoder(r),
		bw:   bufio.NewWriter(w),
		w:    w,
		req:  make(chan struct{}),
		res:  make(chan readResult, 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read decodes the next message. See Decoder.Decode for the error contract.
func (c *Channel) Read() (*jsonrpc.AnyMessage, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	return c.dec.Decode()
}

// Next is like Read but returns early when ctx is done. A read abandoned by a
// cancelled context stays in flight and its result is returned by the next
// call. The underlying Read is only started when Next is called, so a
// consumer that handles each message before calling Next again never reads
// ahead. Next must not be mixed with Read.
func (c *Channel) Next(ctx context.Context) (*jsonrpc.AnyMessage, error) {
	c.pumpOnce.Do(func() { go c.pump() })

	c.nmu.Lock()
	defer c.nmu.Unlock()

	if !c.inflight {
		select {
		case c.req <- struct{}{}:
			c.inflight = true
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrChannelClosed
		}
	}

	select {
	case r := <-c.res:
		c.inflight = false
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrChannelClosed
	}
}

func (c *Channel) pump() {
	for {
		select {
		case <-c.done:
			return
		case <-c.req:
		}
		msg, err := c.Read()
		c.res <- readResult{msg: msg, err: err}
	}
}

// Write encodes v as one frame and flushes it.
func (c *Channel) Write(v any) error {
	b, err := Frame(v)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := c.bw.Write(b); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if err := c.bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush frame: %w", err)
	}
	return nil
}

// Close stops the read pump and closes the writer if it is an io.Closer. The
// reader is left to its owner.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		// Not under wmu: closing unblocks a writer stuck on a full pipe.
		if wc, ok := c.w.(io.Closer); ok {
			err = wc.Close()
		}
	})
	return err
}
