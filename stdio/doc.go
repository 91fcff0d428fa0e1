// Package stdio implements the LSP base protocol framing for JSON-RPC over a
// pair of byte streams, typically a child process's stdin and stdout.
//
// Every message is a header block followed by a JSON body:
//
//	Content-Length: 52\r\n
//	\r\n
//	{"jsonrpc":"2.0","id":1,"method":"initialize",...}
//
// Header keys are case-insensitive and only Content-Length is required; other
// headers such as Content-Type are ignored.
//
// The package has three layers:
//
//	Frame / Encode / Decoder : one message per call, no state beyond the stream
//	Channel                  : exclusive reader plus a mutex-serialized writer
//	Handler                  : a single-threaded serve loop over a dispatch.Dispatcher
//
// Example:
//
//	reg := dispatch.NewRegistry()
//	srv := lsp.NewServer()
//	srv.Register(reg)
//	h := stdio.NewHandler(dispatch.New(reg), stdio.WithLogger(logger))
//	if err := h.Serve(ctx); err != nil { log.Fatal(err) }
//
// The output stream carries protocol bytes only. Diagnostics go to the
// configured logger.
package stdio
