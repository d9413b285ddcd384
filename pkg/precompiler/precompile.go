// Package precompiler expands the shader directive language: #if/#elseif/
// #else/#endif blocks selected by boolean flags, #{name} value substitution
// and #include of other files. Source is tokenized line by line, parsed into
// an AST and rendered back to text; includes run the same pipeline
// recursively with the same flags and values.
//
// The package keeps no state between calls. Flags and Values must not be
// mutated while a call that uses them is running.
package precompiler

import (
	"fmt"
	"log/slog"
)

// Precompile expands text, which was read from filePath. filePath is used for
// error locations and as the base for relative includes.
func Precompile(text, filePath string, flags Flags, values Values) (string, error) {
	s := Session{Flags: flags, Values: values}
	exp, err := s.Expand(text, filePath)
	if err != nil {
		return "", err
	}
	return exp.Text, nil
}

// PrecompileFile reads path from the file system and expands it.
func PrecompileFile(path string, flags Flags, values Values) (string, error) {
	s := Session{Flags: flags, Values: values}
	exp, err := s.ExpandFile(path)
	if err != nil {
		return "", err
	}
	return exp.Text, nil
}

// Session bundles the inputs shared by every file expanded in one
// precompilation: the flags, the values and where includes are read from.
type Session struct {
	Flags  Flags
	Values Values
	// Loader reads included files; nil means the OS file system.
	Loader Loader
	// MaxIncludeDepth defaults to DefaultMaxIncludeDepth.
	MaxIncludeDepth int
	Logger          *slog.Logger
}

func (s *Session) loader() Loader {
	if s.Loader == nil {
		return FileLoader{}
	}
	return s.Loader
}

// ReadFile reads path through the session loader without expanding it.
func (s *Session) ReadFile(path string) (string, error) {
	src, err := s.loader().Load(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return src, nil
}

// Parse tokenizes and parses text without rendering it.
func (s *Session) Parse(text, file string) (*Document, error) {
	return Parse(TokenizeSource(text, file), file, s.Flags)
}

// Expand precompiles text and returns the output with its source map.
func (s *Session) Expand(text, file string) (*Expansion, error) {
	doc, err := s.Parse(text, file)
	if err != nil {
		return nil, err
	}
	r := Renderer{
		Loader:   s.loader(),
		Flags:    s.Flags,
		Values:   s.Values,
		MaxDepth: s.MaxIncludeDepth,
		Logger:   s.Logger,
	}
	exp, err := r.Render(doc)
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Debug("precompiled", "file", file, "lines", len(exp.Origins))
	}
	return exp, nil
}

// ExpandFile reads path through the session loader and expands it.
func (s *Session) ExpandFile(path string) (*Expansion, error) {
	src, err := s.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.Expand(src, path)
}
