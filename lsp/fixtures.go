package lsp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Fixtures holds the canned payloads returned by the feature probes.
type Fixtures struct {
	ServerInfo      ServerInfo       `json:"serverInfo" yaml:"serverInfo"`
	Hover           Hover            `json:"hover" yaml:"hover"`
	Completion      CompletionList   `json:"completion" yaml:"completion"`
	Definition      Location         `json:"definition" yaml:"definition"`
	References      []Location       `json:"references,omitempty" yaml:"references,omitempty"`
	DocumentSymbols []DocumentSymbol `json:"documentSymbols,omitempty" yaml:"documentSymbols,omitempty"`
	SignatureHelp   SignatureHelp    `json:"signatureHelp" yaml:"signatureHelp"`
}

// DefaultFixtures returns the payloads served when no fixtures file is given.
func DefaultFixtures() Fixtures {
	def := Location{
		URI: "file:///test/mock_file.zig",
		Range: Range{
			Start: Position{Line: 0, Character: 0},
			End:   Position{Line: 0, Character: 10},
		},
	}
	return Fixtures{
		ServerInfo: ServerInfo{Name: "Mock LSP Server", Version: "1.0.0"},
		Hover: Hover{Contents: MarkupContent{
			Kind:  "markdown",
			Value: "**Mock Hover Information**\n\nThis is a test hover response from the mock LSP server.",
		}},
		Completion: CompletionList{
			IsIncomplete: false,
			Items: []CompletionItem{
				{
					Label:         "test_function",
					Kind:          CompletionKindFunction,
					Detail:        "fn test_function() void",
					Documentation: "A test function for completion",
				},
				{
					Label:         "test_variable",
					Kind:          CompletionKindVariable,
					Detail:        "var test_variable: i32",
					Documentation: "A test variable for completion",
				},
			},
		},
		Definition: def,
		References: []Location{def},
		DocumentSymbols: []DocumentSymbol{{
			Name:           "test_function",
			Detail:         "fn test_function() void",
			Kind:           SymbolKindFunction,
			Range:          Range{Start: Position{Line: 0, Character: 0}, End: Position{Line: 2, Character: 1}},
			SelectionRange: Range{Start: Position{Line: 0, Character: 3}, End: Position{Line: 0, Character: 16}},
		}},
		SignatureHelp: SignatureHelp{
			Signatures: []SignatureInformation{{
				Label:         "test_function(a: i32, b: i32) void",
				Documentation: "A test function for completion",
				Parameters:    []ParameterInformation{{Label: "a: i32"}, {Label: "b: i32"}},
			}},
		},
	}
}

// LoadFixtures reads a YAML or JSON fixtures file. Fields absent from the
// file keep their default values; unknown fields are an error.
func LoadFixtures(path string) (Fixtures, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(b)
}

// ParseFixtures decodes fixtures from YAML or JSON text on top of the
// defaults.
func ParseFixtures(b []byte) (Fixtures, error) {
	f := DefaultFixtures()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Fixtures{}, fmt.Errorf("parse fixtures: %w", err)
	}
	return f, nil
}

// FixturesSchema returns the JSON Schema describing a fixtures file.
func FixturesSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(Fixtures))
	s.Title = "Mock LSP server fixtures"
	return s
}
