// Package console prints a colored transcript of a JSON-RPC exchange for
// humans watching a probe run.
package console

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/ggoodman/lsp-jsonrpc-go/jsonrpc"
)

// Printer writes one line per message plus optional pretty-printed payloads.
// It satisfies client.Tracer and is safe for concurrent use.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	bodies bool

	out  *color.Color
	in   *color.Color
	step *color.Color
	ok   *color.Color
	bad  *color.Color
}

// Option configures a Printer.
type Option func(*Printer)

// WithColor forces colors on or off. By default fatih/color decides from the
// terminal and NO_COLOR.
func WithColor(on bool) Option {
	return func(p *Printer) {
		for _, c := range p.colors() {
			if on {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// WithBodies prints params, results and error data under each line.
func WithBodies(on bool) Option {
	return func(p *Printer) { p.bodies = on }
}

// New returns a Printer writing to w.
func New(w io.Writer, opts ...Option) *Printer {
	p := &Printer{
		w:    w,
		out:  color.New(color.FgCyan),
		in:   color.New(color.FgMagenta),
		step: color.New(color.FgYellow, color.Bold),
		ok:   color.New(color.FgGreen),
		bad:  color.New(color.FgRed),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Printer) colors() []*color.Color {
	return []*color.Color{p.out, p.in, p.step, p.ok, p.bad}
}

// Step prints a section header.
func (p *Printer) Step(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.step.Fprintf(p.w, "== %s\n", fmt.Sprintf(format, args...))
}

// Outgoing records a message written to the peer.
func (p *Printer) Outgoing(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		p.line(p.out, "→", fmt.Sprintf("unencodable %T: %v", v, err), nil)
		return
	}
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		p.line(p.out, "→", "raw", b)
		return
	}
	summary, body := describe(&msg)
	p.line(p.out, "→", summary, body)
}

// Incoming records a message read from the peer.
func (p *Printer) Incoming(msg *jsonrpc.AnyMessage) {
	if msg == nil {
		return
	}
	summary, body := describe(msg)
	c := p.in
	if msg.Error != nil {
		c = p.bad
	}
	p.line(c, "←", summary, body)
}

// Result prints the outcome of one scenario step.
func (p *Printer) Result(label string, v any) {
	var body []byte
	if v != nil {
		body, _ = json.Marshal(v)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ok.Fprintf(p.w, "   ✓ %s\n", label)
	if p.bodies && len(body) > 0 {
		p.writeBody(body)
	}
}

// Failure prints a failed scenario step.
func (p *Printer) Failure(label string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bad.Fprintf(p.w, "   ✗ %s: %v\n", label, err)
}

func (p *Printer) line(c *color.Color, arrow, summary string, body []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c.Fprintf(p.w, "%s %s\n", arrow, summary)
	if p.bodies && len(body) > 0 {
		p.writeBody(body)
	}
}

func (p *Printer) writeBody(body []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "     ", "  "); err != nil {
		buf.Reset()
		buf.Write(body)
	}
	fmt.Fprintf(p.w, "     %s\n", buf.String())
}

func describe(msg *jsonrpc.AnyMessage) (string, []byte) {
	switch msg.Kind() {
	case jsonrpc.KindRequest:
		return fmt.Sprintf("request %s id=%s", msg.Method, msg.ID), msg.Params
	case jsonrpc.KindNotification:
		return fmt.Sprintf("notification %s", msg.Method), msg.Params
	default:
		if msg.Error != nil {
			data, _ := json.Marshal(msg.Error)
			return fmt.Sprintf("response id=%s error %d %s", idString(msg.ID), msg.Error.Code, msg.Error.Message), data
		}
		return fmt.Sprintf("response id=%s ok", idString(msg.ID)), msg.Result
	}
}

func idString(id *jsonrpc.RequestID) string {
	if id == nil {
		return "null"
	}
	return id.String()
}
