// Package fgroups loads the ordered functional-group library used by the
// structural tagger.  A library is a YAML mapping from group name to SMARTS;
// document order is preserved because it decides which group an atom reports
// when groups overlap.
package fgroups

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/torsion-fragmenter/internal/chem/smarts"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

//go:embed fgroup_smarts.yml
var defaultYAML []byte

// Entry is one named SMARTS pattern.
type Entry struct {
	Name   string `json:"name"`
	SMARTS string `json:"smarts"`
}

// Compiled is an entry whose SMARTS compiled.
type Compiled struct {
	Name    string
	Pattern *smarts.Pattern
}

// Skipped is an entry whose SMARTS failed to compile.
type Skipped struct {
	Name   string
	SMARTS string
	Err    error
}

// Library is an ordered, immutable set of entries.  Compilation happens once
// and is shared by every caller.
type Library struct {
	source  string
	entries []Entry

	once     sync.Once
	compiled []Compiled
	skipped  []Skipped
}

// New builds a library from entries in the given order.
func New(source string, entries []Entry) (*Library, error) {
	if len(entries) == 0 {
		return nil, errors.New(errors.ErrCodeChemLibraryEmpty, errors.DefaultMessageForCode(errors.ErrCodeChemLibraryEmpty)).
			WithDetail(source)
	}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return nil, errors.New(errors.ErrCodeChemLibraryLoad, "functional group without a name").WithDetail(source)
		}
		if seen[e.Name] {
			return nil, errors.New(errors.ErrCodeChemLibraryLoad, "duplicate functional group").
				WithDetail(fmt.Sprintf("%s: %s", source, e.Name))
		}
		seen[e.Name] = true
	}
	return &Library{source: source, entries: append([]Entry(nil), entries...)}, nil
}

// Parse reads a YAML mapping of name → SMARTS.
func Parse(source string, data []byte) (*Library, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeChemLibraryLoad, errors.DefaultMessageForCode(errors.ErrCodeChemLibraryLoad)).
			WithDetail(source)
	}
	if len(doc.Content) == 0 {
		return New(source, nil)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New(errors.ErrCodeChemLibraryLoad, "functional group library must be a mapping").
			WithDetail(source)
	}
	entries := make([]Entry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, errors.New(errors.ErrCodeChemLibraryLoad, "SMARTS must be a string").
				WithDetail(fmt.Sprintf("%s: %s (line %d)", source, k.Value, v.Line))
		}
		entries = append(entries, Entry{Name: k.Value, SMARTS: v.Value})
	}
	return New(source, entries)
}

// Load reads a library file.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeChemLibraryLoad, errors.DefaultMessageForCode(errors.ErrCodeChemLibraryLoad)).
			WithDetail(path)
	}
	return Parse(path, data)
}

var (
	defaultOnce sync.Once
	defaultLib  *Library
)

// Default returns the embedded library.
func Default() *Library {
	defaultOnce.Do(func() {
		lib, err := Parse("embedded:fgroup_smarts.yml", defaultYAML)
		if err != nil {
			panic(err)
		}
		defaultLib = lib
	})
	return defaultLib
}

// LoadOrDefault loads path, or returns the embedded library when path is empty.
func LoadOrDefault(path string) (*Library, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Source names where the library came from.
func (l *Library) Source() string { return l.source }

// Len returns the number of entries.
func (l *Library) Len() int { return len(l.entries) }

// Entries returns the entries in library order.
func (l *Library) Entries() []Entry { return append([]Entry(nil), l.entries...) }

// Compile returns the compiled patterns in library order plus the entries
// that failed to compile.
func (l *Library) Compile() ([]Compiled, []Skipped) {
	l.once.Do(func() {
		for _, e := range l.entries {
			p, err := smarts.Compile(e.SMARTS)
			if err != nil {
				l.skipped = append(l.skipped, Skipped{Name: e.Name, SMARTS: e.SMARTS, Err: err})
				continue
			}
			l.compiled = append(l.compiled, Compiled{Name: e.Name, Pattern: p})
		}
	})
	return l.compiled, l.skipped
}
