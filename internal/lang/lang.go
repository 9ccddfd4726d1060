// Package lang describes the comment syntax of the languages laic can scan.
package lang

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Profile holds the comment delimiter rules of a language.
type Profile struct {
	Name       string   `yaml:"name"`
	Extensions []string `yaml:"extensions"`

	// LinePrefixes start a comment that runs to end of line. Longer
	// prefixes are tried first.
	LinePrefixes []string `yaml:"line"`
	BlockStart   string   `yaml:"block_start"`
	BlockEnd     string   `yaml:"block_end"`

	// Quotes are the characters that open and close string literals.
	Quotes string `yaml:"quotes"`
	// Chars open character literals such as 'a' or '\n'. An unclosed one,
	// like a digit separator or a lifetime, is ordinary code.
	Chars string `yaml:"chars,omitempty"`
	// RawQuotes open literals that have no escapes and may span lines.
	RawQuotes string `yaml:"raw_quotes,omitempty"`

	// LineSplice reports whether a backslash before a newline continues
	// a line comment onto the next line, as in C and C++.
	LineSplice bool `yaml:"line_splice"`
}

// HasBlock reports whether the language has block comments.
func (p *Profile) HasBlock() bool { return p.BlockStart != "" && p.BlockEnd != "" }

var cFamily = []string{".c", ".h", ".cc", ".cpp", ".cxx", ".hpp", ".hh", ".hxx", ".cu", ".cuh", ".ino", ".m", ".mm"}

// slashes returns the line prefixes of the // family, with the /// and //!
// doc comment forms.
func slashes() []string { return []string{"///", "//!", "//"} }

var builtin = []Profile{
	{Name: "c", Extensions: cFamily, LinePrefixes: slashes(), BlockStart: "/*", BlockEnd: "*/", Quotes: `"`, Chars: `'`, LineSplice: true},
	{Name: "go", Extensions: []string{".go", ".gno"}, LinePrefixes: slashes(), BlockStart: "/*", BlockEnd: "*/", Quotes: `"`, Chars: `'`, RawQuotes: "`"},
	{Name: "java", Extensions: []string{".java", ".kt", ".kts", ".scala", ".groovy"}, LinePrefixes: slashes(), BlockStart: "/*", BlockEnd: "*/", Quotes: `"`, Chars: `'`},
	{Name: "javascript", Extensions: []string{".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx"}, LinePrefixes: slashes(), BlockStart: "/*", BlockEnd: "*/", Quotes: "\"'`"},
	{Name: "csharp", Extensions: []string{".cs"}, LinePrefixes: slashes(), BlockStart: "/*", BlockEnd: "*/", Quotes: `"`, Chars: `'`},
	{Name: "rust", Extensions: []string{".rs"}, LinePrefixes: slashes(), BlockStart: "/*", BlockEnd: "*/", Quotes: `"`, Chars: `'`},
	{Name: "swift", Extensions: []string{".swift"}, LinePrefixes: slashes(), BlockStart: "/*", BlockEnd: "*/", Quotes: `"`},
	{Name: "glsl", Extensions: []string{".glsl", ".vert", ".frag", ".hlsl", ".metal"}, LinePrefixes: slashes(), BlockStart: "/*", BlockEnd: "*/", Quotes: `"`, LineSplice: true},
	{Name: "python", Extensions: []string{".py", ".pyi"}, LinePrefixes: []string{"#"}, Quotes: `"'`},
	{Name: "shell", Extensions: []string{".sh", ".bash", ".zsh"}, LinePrefixes: []string{"#"}, Quotes: `"'`},
	{Name: "ruby", Extensions: []string{".rb"}, LinePrefixes: []string{"#"}, Quotes: `"'`},
	{Name: "r", Extensions: []string{".r", ".R"}, LinePrefixes: []string{"#"}, Quotes: `"'`},
	{Name: "julia", Extensions: []string{".jl"}, LinePrefixes: []string{"#"}, BlockStart: "#=", BlockEnd: "=#", Quotes: `"`},
	{Name: "config", Extensions: []string{".yaml", ".yml", ".toml", ".cmake"}, LinePrefixes: []string{"#"}, Quotes: `"'`},
	{Name: "lua", Extensions: []string{".lua"}, LinePrefixes: []string{"--"}, BlockStart: "--[[", BlockEnd: "]]", Quotes: `"'`},
	{Name: "sql", Extensions: []string{".sql"}, LinePrefixes: []string{"--"}, BlockStart: "/*", BlockEnd: "*/", Quotes: `'`},
	{Name: "haskell", Extensions: []string{".hs"}, LinePrefixes: []string{"--"}, BlockStart: "{-", BlockEnd: "-}", Quotes: `"`},
	{Name: "matlab", Extensions: []string{".mat", ".octave"}, LinePrefixes: []string{"%"}, BlockStart: "%{", BlockEnd: "%}", Quotes: `'`},
}

// Registry maps file extensions to profiles.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Profile
	byExt  map[string]*Profile
}

// Default returns a registry populated with the builtin profiles.
func Default() *Registry {
	r := &Registry{
		byName: make(map[string]*Profile),
		byExt:  make(map[string]*Profile),
	}
	for i := range builtin {
		p := builtin[i]
		r.Register(&p)
	}
	return r
}

// Register adds p, replacing any profile with the same name and taking
// over its extensions.
func (r *Registry) Register(p *Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.Slice(p.LinePrefixes, func(i, j int) bool {
		return len(p.LinePrefixes[i]) > len(p.LinePrefixes[j])
	})
	if old, ok := r.byName[p.Name]; ok {
		for _, ext := range old.Extensions {
			if r.byExt[ext] == old {
				delete(r.byExt, ext)
			}
		}
	}
	r.byName[p.Name] = p
	for _, ext := range p.Extensions {
		r.byExt[ext] = p
	}
}

// Lookup returns the profile with the given name.
func (r *Registry) Lookup(name string) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// ForFile returns the profile for filename's extension.
func (r *Registry) ForFile(filename string) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext := filepath.Ext(filename)
	if p, ok := r.byExt[ext]; ok {
		return p, true
	}
	p, ok := r.byExt[strings.ToLower(ext)]
	return p, ok
}

// Extensions returns every registered extension, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
