// Package cache stores compiled shader programs on disk, keyed by the
// expanded sources they were compiled from.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/neurodesk/shaderprep/pkg/shader"
)

// Cache is a persistent store of compiled programs. Each entry is a small
// JSON metadata file plus one data file per stage.
type Cache struct {
	Dir string

	hits   atomic.Int64
	misses atomic.Int64
}

func New(dir string) *Cache {
	return &Cache{Dir: dir}
}

type meta struct {
	Key          string    `json:"key"`
	Compiler     string    `json:"compiler"`
	VertexFile   string    `json:"vertex_file"`
	FragmentFile string    `json:"fragment_file"`
	Created      time.Time `json:"created"`
}

// Key hashes the compiler identity and both expanded stages.
func Key(compiler, vertex, fragment string) string {
	h := sha256.New()
	for _, part := range []string{compiler, vertex, fragment} {
		fmt.Fprintf(h, "%d:", len(part))
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached program for key. A missing or damaged entry is a
// miss, not an error.
func (c *Cache) Get(key string) (*shader.Program, bool) {
	b, err := os.ReadFile(c.metaPath(key))
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	var m meta
	if err := json.Unmarshal(b, &m); err != nil || m.Key != key {
		c.misses.Add(1)
		return nil, false
	}
	vertex, err := os.ReadFile(filepath.Join(c.Dir, m.VertexFile))
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	fragment, err := os.ReadFile(filepath.Join(c.Dir, m.FragmentFile))
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return &shader.Program{Vertex: vertex, Fragment: fragment}, true
}

// Put stores prog under key. Data files are written before the metadata so
// that a reader never sees a half-written entry.
func (c *Cache) Put(key, compiler string, prog *shader.Program) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	m := meta{
		Key:          key,
		Compiler:     compiler,
		VertexFile:   key + ".vert.spv",
		FragmentFile: key + ".frag.spv",
		Created:      time.Now().UTC(),
	}
	if err := writeFile(filepath.Join(c.Dir, m.VertexFile), prog.Vertex); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(c.Dir, m.FragmentFile), prog.Fragment); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(c.metaPath(key), b)
}

// Stats reports the hits and misses since the cache was created.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) metaPath(key string) string {
	return filepath.Join(c.Dir, key+".json")
}

// writeFile replaces path atomically. Concurrent writers of the same entry
// each use their own temporary file.
func writeFile(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Compiler wraps another compiler and reuses cached programs for sources it
// has already compiled. Failures are never cached.
type Compiler struct {
	Cache *Cache
	Inner shader.Compiler
	// ID distinguishes compilers or compiler settings that produce
	// different output for the same sources.
	ID     string
	Logger *slog.Logger
}

func (c *Compiler) Compile(ctx context.Context, vertex, fragment string) (*shader.Program, error) {
	key := Key(c.ID, vertex, fragment)
	if prog, ok := c.Cache.Get(key); ok {
		if c.Logger != nil {
			c.Logger.Debug("compile cache hit", "key", key[:12])
		}
		return prog, nil
	}

	prog, err := c.Inner.Compile(ctx, vertex, fragment)
	if err != nil {
		return nil, err
	}
	if prog == nil {
		prog = &shader.Program{}
	}
	if err := c.Cache.Put(key, c.ID, prog); err != nil && c.Logger != nil {
		c.Logger.Warn("writing compile cache", "error", err)
	}
	return prog, nil
}
