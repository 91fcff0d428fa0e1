package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownServer is returned when a server name is not in the servers file.
var ErrUnknownServer = errors.New("unknown server")

// Duration is a time.Duration written as a string such as "5s" in YAML.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// ServerSpec describes how to launch one language server.
type ServerSpec struct {
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	Languages []string          `yaml:"languages"`
	Env       map[string]string `yaml:"env,omitempty"`
	StopGrace Duration          `yaml:"stop_grace,omitempty"`
}

// Servers is the content of a servers file:
//
//	{"servers": {"zls": {"command": "zls", "args": [], "languages": ["zig"]}}}
//
// JSON and YAML spellings are both accepted.
type Servers struct {
	Servers map[string]ServerSpec `yaml:"servers"`
}

// DefaultServers returns the built-in server table.
func DefaultServers() *Servers {
	return &Servers{Servers: map[string]ServerSpec{
		"zls":           {Command: "zls", Args: []string{}, Languages: []string{"zig"}},
		"rust-analyzer": {Command: "rust-analyzer", Args: []string{}, Languages: []string{"rust"}},
		"gopls":         {Command: "gopls", Args: []string{}, Languages: []string{"go"}},
		"mock":          {Command: "mock-lsp-server", Args: []string{}, Languages: []string{"zig"}},
	}}
}

// LoadServers reads a servers file.
func LoadServers(path string) (*Servers, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read servers file: %w", err)
	}
	s, err := ParseServers(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseServers decodes and validates servers file content.
func ParseServers(b []byte) (*Servers, error) {
	var s Servers
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse servers: %w", err)
	}
	if len(s.Servers) == 0 {
		return nil, errors.New("no servers defined")
	}
	for name, spec := range s.Servers {
		if spec.Command == "" {
			return nil, fmt.Errorf("server %q: missing command", name)
		}
	}
	return &s, nil
}

// Names returns the configured server names in lexical order.
func (s *Servers) Names() []string {
	names := make([]string, 0, len(s.Servers))
	for n := range s.Servers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the server registered under name.
func (s *Servers) Lookup(name string) (ServerSpec, error) {
	spec, ok := s.Servers[name]
	if !ok {
		return ServerSpec{}, fmt.Errorf("%w %q (known: %v)", ErrUnknownServer, name, s.Names())
	}
	return spec, nil
}

// ForLanguage returns the first server, by name, that handles lang.
func (s *Servers) ForLanguage(lang string) (string, ServerSpec, bool) {
	for _, name := range s.Names() {
		spec := s.Servers[name]
		if slices.Contains(spec.Languages, lang) {
			return name, spec, true
		}
	}
	return "", ServerSpec{}, false
}
