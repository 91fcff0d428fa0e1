// Package lsp implements a mock language server: the LSP lifecycle methods
// plus a handful of feature probes answered from canned fixtures.
//
// A Server registers its handlers into a dispatch.Registry; the transport is
// provided separately, usually by stdio.Handler.
package lsp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/lsp-jsonrpc-go/dispatch"
	"github.com/ggoodman/lsp-jsonrpc-go/internal/logctx"
	"github.com/ggoodman/lsp-jsonrpc-go/jsonrpc"
)

type lifecycle int

const (
	stateNew lifecycle = iota
	stateInitializing
	stateReady
	stateShutdown
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for lifecycle diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithStrictLifecycle enforces LSP ordering: requests before initialize fail
// with ServerNotInitialized, requests after shutdown fail with InvalidRequest
// and notifications other than exit are dropped in both phases.
func WithStrictLifecycle() Option {
	return func(s *Server) {
		s.strict = true
	}
}

// WithFixtures replaces the default canned payloads.
func WithFixtures(f Fixtures) Option {
	return func(s *Server) {
		s.fixtures.Store(&f)
	}
}

// Server is a mock language server. Its zero value is not usable; construct
// one with NewServer.
type Server struct {
	log      *slog.Logger
	strict   bool
	fixtures atomic.Pointer[Fixtures]

	mu                 sync.Mutex
	state              lifecycle
	clientInfo         *ClientInfo
	clientCapabilities json.RawMessage
	exitCode           int
}

// NewServer constructs a Server with default fixtures and applies options.
func NewServer(opts ...Option) *Server {
	s := &Server{
		log:      slog.New(slog.DiscardHandler),
		exitCode: 1,
	}
	f := DefaultFixtures()
	s.fixtures.Store(&f)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register installs the server's handlers into reg.
func (s *Server) Register(reg *dispatch.Registry) {
	reg.Register(MethodInitialize, s.guard(MethodInitialize, dispatch.Typed(s.initialize)))
	reg.Register(MethodInitialized, s.guard(MethodInitialized, s.initialized))
	reg.Register(MethodShutdown, s.guard(MethodShutdown, s.shutdown))
	reg.Register(MethodExit, s.guard(MethodExit, s.exit))
	reg.Register(MethodHover, s.guard(MethodHover, s.hover))
	reg.Register(MethodCompletion, s.guard(MethodCompletion, s.completion))
	reg.Register(MethodDefinition, s.guard(MethodDefinition, s.definition))
	reg.Register(MethodReferences, s.guard(MethodReferences, s.references))
	reg.Register(MethodDocumentSymbol, s.guard(MethodDocumentSymbol, s.documentSymbol))
	reg.Register(MethodSignatureHelp, s.guard(MethodSignatureHelp, s.signatureHelp))
}

// Fixtures returns the payloads currently served.
func (s *Server) Fixtures() Fixtures { return *s.fixtures.Load() }

// SetFixtures atomically replaces the payloads served.
func (s *Server) SetFixtures(f Fixtures) { s.fixtures.Store(&f) }

// ExitCode is the process exit status implied by the lifecycle: 0 when
// shutdown was requested before exit, 1 otherwise.
func (s *Server) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Ready reports whether the initialized notification has been received.
func (s *Server) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateReady
}

// ClientInfo returns the clientInfo sent with initialize, if any.
func (s *Server) ClientInfo() *ClientInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientInfo
}

// ClientCapabilities returns the raw capabilities sent with initialize.
func (s *Server) ClientCapabilities() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientCapabilities
}

// guard applies the lifecycle policy in front of h.
func (s *Server) guard(method string, h dispatch.HandlerFunc) dispatch.HandlerFunc {
	if method == MethodExit {
		return h
	}
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		if !s.strict {
			return h(ctx, params)
		}

		isRequest := true
		if msg, ok := logctx.RPCMessageFrom(ctx); ok {
			isRequest = msg.Kind == jsonrpc.KindRequest.String()
		}

		s.mu.Lock()
		state := s.state
		s.mu.Unlock()

		switch {
		case state == stateNew && method != MethodInitialize:
			if !isRequest {
				s.log.DebugContext(ctx, "lsp.lifecycle.dropped")
				return nil, nil
			}
			return nil, jsonrpc.NewError(jsonrpc.ErrorCodeServerNotInitialized, "Server not initialized")
		case state != stateNew && method == MethodInitialize:
			return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidRequest, "initialize may only be sent once")
		case state == stateShutdown:
			if !isRequest {
				s.log.DebugContext(ctx, "lsp.lifecycle.dropped")
				return nil, nil
			}
			return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidRequest, "Server is shutting down")
		}
		return h(ctx, params)
	}
}

func (s *Server) initialize(ctx context.Context, p InitializeParams) (InitializeResult, error) {
	s.mu.Lock()
	s.clientInfo = p.ClientInfo
	s.clientCapabilities = p.Capabilities
	if s.state == stateNew {
		s.state = stateInitializing
	}
	s.mu.Unlock()

	if p.ClientInfo != nil {
		s.log.InfoContext(ctx, "lsp.initialize",
			slog.String("client_name", p.ClientInfo.Name),
			slog.String("client_version", p.ClientInfo.Version),
		)
	}

	return InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync:   SyncFull,
			HoverProvider:      true,
			CompletionProvider: &CompletionOptions{ResolveProvider: false, TriggerCharacters: []string{"."}},
			DefinitionProvider: true,
			ReferencesProvider: true,

			DocumentSymbolProvider:          true,
			WorkspaceSymbolProvider:         true,
			CodeActionProvider:              true,
			DocumentFormattingProvider:      true,
			DocumentRangeFormattingProvider: true,
			DocumentOnTypeFormattingProvider: &DocumentOnTypeFormattingOptions{
				FirstTriggerCharacter: "}",
				MoreTriggerCharacter:  []string{";", "\n"},
			},
			RenameProvider:            true,
			DocumentHighlightProvider: true,
			SignatureHelpProvider:     &SignatureHelpOptions{TriggerCharacters: []string{"(", ","}},
		},
		ServerInfo: s.Fixtures().ServerInfo,
	}, nil
}

func (s *Server) initialized(ctx context.Context, _ json.RawMessage) (any, error) {
	s.mu.Lock()
	if s.state != stateShutdown {
		s.state = stateReady
	}
	s.mu.Unlock()
	s.log.DebugContext(ctx, "lsp.initialized")
	return nil, nil
}

func (s *Server) shutdown(ctx context.Context, _ json.RawMessage) (any, error) {
	s.mu.Lock()
	s.state = stateShutdown
	s.exitCode = 0
	s.mu.Unlock()
	s.log.InfoContext(ctx, "lsp.shutdown")
	return nil, nil
}

func (s *Server) exit(ctx context.Context, _ json.RawMessage) (any, error) {
	s.log.InfoContext(ctx, "lsp.exit", slog.Int("exit_code", s.ExitCode()))
	return nil, dispatch.ErrStop
}

// The feature handlers answer from fixtures whatever the params hold, including
// params that would not decode.
func (s *Server) hover(_ context.Context, _ json.RawMessage) (any, error) {
	return s.Fixtures().Hover, nil
}

func (s *Server) completion(_ context.Context, _ json.RawMessage) (any, error) {
	return s.Fixtures().Completion, nil
}

func (s *Server) definition(_ context.Context, _ json.RawMessage) (any, error) {
	return s.Fixtures().Definition, nil
}

func (s *Server) references(_ context.Context, _ json.RawMessage) (any, error) {
	refs := s.Fixtures().References
	if refs == nil {
		refs = []Location{}
	}
	return refs, nil
}

func (s *Server) documentSymbol(_ context.Context, _ json.RawMessage) (any, error) {
	syms := s.Fixtures().DocumentSymbols
	if syms == nil {
		syms = []DocumentSymbol{}
	}
	return syms, nil
}

func (s *Server) signatureHelp(_ context.Context, _ json.RawMessage) (any, error) {
	return s.Fixtures().SignatureHelp, nil
}
