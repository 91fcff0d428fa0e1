package stdio

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ggoodman/lsp-jsonrpc-go/jsonrpc"
)

// DefaultMaxContentLength bounds the body size accepted by a Decoder.
const DefaultMaxContentLength int64 = 64 << 20

// maxHeaderLine bounds a single header line. Longer lines are discarded and
// the frame is reported as malformed.
const maxHeaderLine = 8 << 10

// Frame error reasons. A *FrameError matches its reason with errors.Is.
var (
	ErrMalformedHeader      = errors.New("malformed header line")
	ErrTruncatedHeader      = errors.New("truncated header")
	ErrMissingContentLength = errors.New("missing or invalid Content-Length")
	ErrContentTooLarge      = errors.New("content length exceeds limit")
	ErrTruncatedBody        = errors.New("truncated body")
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrUnrecognizedShape    = errors.New("unrecognized message shape")
)

// FrameError reports a transport-level failure to decode one frame.
//
// A non-fatal FrameError leaves the stream positioned at the start of the next
// frame; the caller may keep decoding. A fatal one means the stream ended or
// can no longer be trusted.
type FrameError struct {
	Reason error
	Err    error
	Fatal  bool
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("frame error: %v: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("frame error: %v", e.Reason)
}

func (e *FrameError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// Recoverable reports whether decoding may continue after this error.
func (e *FrameError) Recoverable() bool { return !e.Fatal }

// Frame encodes v as one Content-Length delimited frame: the header block
// followed by the compact JSON body.
func Frame(v any) ([]byte, error) {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	b := bytes.TrimSuffix(body.Bytes(), []byte{'\n'})

	out := make([]byte, 0, len(b)+32)
	out = fmt.Appendf(out, "Content-Length: %d\r\n\r\n", len(b))
	out = append(out, b...)
	return out, nil
}

// Encode writes v to w as exactly one frame using a single Write call.
func Encode(w io.Writer, v any) error {
	b, err := Frame(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Decoder reads Content-Length framed JSON-RPC messages from a stream.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	r *bufio.Reader

	// MaxContentLength bounds the accepted body size. Zero or negative
	// selects DefaultMaxContentLength.
	MaxContentLength int64
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Decoder{r: br}
}

// Decode reads exactly one frame. It returns io.EOF when the stream ends
// cleanly before a new frame starts, a *FrameError for framing or payload
// failures, and any other read error unchanged.
func (d *Decoder) Decode() (*jsonrpc.AnyMessage, error) {
	body, err := d.readFrame()
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, &FrameError{Reason: ErrInvalidJSON}
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, &FrameError{Reason: ErrUnrecognizedShape, Err: err}
	}
	return &msg, nil
}

func (d *Decoder) readFrame() ([]byte, error) {
	var (
		length    int64 = -1
		lengthErr error
		malformed bool
		started   bool
	)

	for {
		line, tooLong, err := d.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if !started && !tooLong && strings.TrimSpace(line) == "" {
					return nil, io.EOF
				}
				return nil, &FrameError{Reason: ErrTruncatedHeader, Err: io.ErrUnexpectedEOF, Fatal: true}
			}
			return nil, err
		}

		if tooLong {
			started, malformed = true, true
			continue
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if !started {
				// Stray separators between frames.
				continue
			}
			break
		}
		started = true

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			malformed = true
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(key), "content-length") {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		switch {
		case err != nil:
			lengthErr = err
		case n < 0:
			lengthErr = fmt.Errorf("negative length %d", n)
		default:
			length, lengthErr = n, nil
		}
	}

	if malformed {
		// Skip a body we know the length of so the next frame stays aligned.
		if lengthErr == nil && length > 0 {
			if _, err := io.CopyN(io.Discard, d.r, length); err != nil {
				return nil, &FrameError{Reason: ErrTruncatedBody, Err: err, Fatal: true}
			}
		}
		return nil, &FrameError{Reason: ErrMalformedHeader}
	}
	if lengthErr != nil {
		return nil, &FrameError{Reason: ErrMissingContentLength, Err: lengthErr}
	}
	if length < 0 {
		return nil, &FrameError{Reason: ErrMissingContentLength}
	}

	limit := d.MaxContentLength
	if limit <= 0 {
		limit = DefaultMaxContentLength
	}
	if length > limit {
		if _, err := io.CopyN(io.Discard, d.r, length); err != nil {
			return nil, &FrameError{Reason: ErrTruncatedBody, Err: err, Fatal: true}
		}
		return nil, &FrameError{Reason: ErrContentTooLarge, Err: fmt.Errorf("%d > %d", length, limit)}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, &FrameError{Reason: ErrTruncatedBody, Err: err, Fatal: true}
	}
	return body, nil
}

// readLine returns one header line including its terminator. Lines longer
// than maxHeaderLine are consumed in full and reported via tooLong.
func (d *Decoder) readLine() (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, err := d.r.ReadSlice('\n')
		if len(buf)+len(chunk) > maxHeaderLine {
			tooLong = true
			buf = buf[:0]
		} else {
			buf = append(buf, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if tooLong {
			return "", true, err
		}
		return string(buf), false, err
	}
}
