package lsp

import "encoding/json"

// Method names served by Server.
const (
	MethodInitialize     = "initialize"
	MethodInitialized    = "initialized"
	MethodShutdown       = "shutdown"
	MethodExit           = "exit"
	MethodHover          = "textDocument/hover"
	MethodCompletion     = "textDocument/completion"
	MethodDefinition     = "textDocument/definition"
	MethodReferences     = "textDocument/references"
	MethodDocumentSymbol = "textDocument/documentSymbol"
	MethodSignatureHelp  = "textDocument/signatureHelp"
)

// LifecycleMethods returns the methods that move the server through its
// lifecycle. Throttling middleware must let them through.
func LifecycleMethods() []string {
	return []string{MethodInitialize, MethodInitialized, MethodShutdown, MethodExit}
}

// TextDocumentSyncKind values.
const (
	SyncNone        = 0
	SyncFull        = 1
	SyncIncremental = 2
)

// CompletionItemKind values used by the default fixtures.
const (
	CompletionKindFunction = 3
	CompletionKindVariable = 6
)

// SymbolKindFunction is the LSP SymbolKind for functions.
const SymbolKindFunction = 12

type Position struct {
	Line      int `json:"line" yaml:"line"`
	Character int `json:"character" yaml:"character"`
}

type Range struct {
	Start Position `json:"start" yaml:"start"`
	End   Position `json:"end" yaml:"end"`
}

type Location struct {
	URI   string `json:"uri" yaml:"uri"`
	Range Range  `json:"range" yaml:"range"`
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// TextDocumentPositionParams is the params shape shared by hover,
// completion, definition, references and signatureHelp.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type InitializeParams struct {
	ProcessID    *int            `json:"processId,omitempty"`
	RootURI      string          `json:"rootUri,omitempty"`
	ClientInfo   *ClientInfo     `json:"clientInfo,omitempty"`
	Capabilities json.RawMessage `json:"capabilities,omitempty"`
}

type ServerInfo struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

type CompletionOptions struct {
	ResolveProvider   bool     `json:"resolveProvider"`
	TriggerCharacters []string `json:"triggerCharacters"`
}

type DocumentOnTypeFormattingOptions struct {
	FirstTriggerCharacter string   `json:"firstTriggerCharacter"`
	MoreTriggerCharacter  []string `json:"moreTriggerCharacter"`
}

type SignatureHelpOptions struct {
	TriggerCharacters []string `json:"triggerCharacters"`
}

// ServerCapabilities advertises the features of the mock server.
type ServerCapabilities struct {
	TextDocumentSync                 int                              `json:"textDocumentSync"`
	HoverProvider                    bool                             `json:"hoverProvider"`
	CompletionProvider               *CompletionOptions               `json:"completionProvider,omitempty"`
	DefinitionProvider               bool                             `json:"definitionProvider"`
	ReferencesProvider               bool                             `json:"referencesProvider"`
	DocumentSymbolProvider           bool                             `json:"documentSymbolProvider"`
	WorkspaceSymbolProvider          bool                             `json:"workspaceSymbolProvider"`
	CodeActionProvider               bool                             `json:"codeActionProvider"`
	DocumentFormattingProvider       bool                             `json:"documentFormattingProvider"`
	DocumentRangeFormattingProvider  bool                             `json:"documentRangeFormattingProvider"`
	DocumentOnTypeFormattingProvider *DocumentOnTypeFormattingOptions `json:"documentOnTypeFormattingProvider,omitempty"`
	RenameProvider                   bool                             `json:"renameProvider"`
	DocumentHighlightProvider        bool                             `json:"documentHighlightProvider"`
	SignatureHelpProvider            *SignatureHelpOptions            `json:"signatureHelpProvider,omitempty"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   ServerInfo         `json:"serverInfo"`
}

type MarkupContent struct {
	Kind  string `json:"kind" yaml:"kind"`
	Value string `json:"value" yaml:"value"`
}

type Hover struct {
	Contents MarkupContent `json:"contents" yaml:"contents"`
}

type CompletionItem struct {
	Label         string `json:"label" yaml:"label"`
	Kind          int    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Detail        string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Documentation string `json:"documentation,omitempty" yaml:"documentation,omitempty"`
}

type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete" yaml:"isIncomplete"`
	Items        []CompletionItem `json:"items" yaml:"items"`
}

type DocumentSymbol struct {
	Name           string `json:"name" yaml:"name"`
	Detail         string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Kind           int    `json:"kind" yaml:"kind"`
	Range          Range  `json:"range" yaml:"range"`
	SelectionRange Range  `json:"selectionRange" yaml:"selectionRange"`
}

type ParameterInformation struct {
	Label string `json:"label" yaml:"label"`
}

type SignatureInformation struct {
	Label         string                 `json:"label" yaml:"label"`
	Documentation string                 `json:"documentation,omitempty" yaml:"documentation,omitempty"`
	Parameters    []ParameterInformation `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

type SignatureHelp struct {
	Signatures      []SignatureInformation `json:"signatures" yaml:"signatures"`
	ActiveSignature int                    `json:"activeSignature" yaml:"activeSignature"`
	ActiveParameter int                    `json:"activeParameter" yaml:"activeParameter"`
}
