package precompiler

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Loader reads the text of a source file by path.
type Loader interface {
	Load(path string) (string, error)
}

// FileLoader reads from the operating system file system.
type FileLoader struct{}

func (FileLoader) Load(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FSLoader reads from an fs.FS, e.g. an embedded shader tree. Absolute paths
// are taken relative to the root of the FS.
type FSLoader struct {
	FS fs.FS
}

func (l FSLoader) Load(path string) (string, error) {
	name := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "/")
	b, err := fs.ReadFile(l.FS, name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MemoryLoader serves sources from a map keyed by cleaned path.
type MemoryLoader map[string]string

func (m MemoryLoader) Load(path string) (string, error) {
	if s, ok := m[filepath.Clean(path)]; ok {
		return s, nil
	}
	return "", ErrFileNotFound{path}
}

type ErrFileNotFound struct{ Path string }

func (e ErrFileNotFound) Error() string { return "file not found: " + e.Path }

// ResolveInclude returns the path an #include refers to: path itself when it
// is absolute, otherwise path relative to the directory of base.
func ResolveInclude(path, base string) string {
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return filepath.Clean(path)
	}
	return filepath.Join(filepath.Dir(base), path)
}
