package jsonrpc

import "fmt"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603

	// ErrorCodeRateLimited is a server-defined code reported when a request is
	// rejected by a rate limiter.
	ErrorCodeRateLimited ErrorCode = -32000

	// ErrorCodeServerNotInitialized is the LSP code for requests received before
	// the initialize handshake when lifecycle gating is enabled.
	ErrorCodeServerNotInitialized ErrorCode = -32002
	// ErrorCodeRequestCancelled is the LSP code for requests cancelled by the
	// server or the client.
	ErrorCodeRequestCancelled ErrorCode = -32800
)

// Error is a JSON-RPC error object. It implements the error interface so that
// handlers can return it as a declared failure and callers can inspect the
// code with errors.As.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// NewError builds an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// WithData returns a copy of e carrying the provided data member.
func (e *Error) WithData(data any) *Error {
	cp := *e
	cp.Data = data
	return &cp
}
