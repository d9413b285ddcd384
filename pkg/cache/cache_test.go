package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/neurodesk/shaderprep/pkg/shader"
)

func TestKey(t *testing.T) {
	a := Key("naga", "v", "f")
	if a != Key("naga", "v", "f") {
		t.Fatalf("key is not deterministic")
	}
	for _, other := range []string{Key("naga", "vf", ""), Key("naga", "", "vf"), Key("other", "v", "f")} {
		if other == a {
			t.Fatalf("distinct inputs produced the same key")
		}
	}
}

func TestGetPut(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "cache"))
	key := Key("test", "v", "f")

	if _, ok := c.Get(key); ok {
		t.Fatalf("empty cache reported a hit")
	}
	if err := c.Put(key, "test", &shader.Program{Vertex: []byte("V"), Fragment: []byte("F")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	prog, ok := c.Get(key)
	if !ok {
		t.Fatalf("expected a hit")
	}
	if string(prog.Vertex) != "V" || string(prog.Fragment) != "F" {
		t.Fatalf("got %q / %q", prog.Vertex, prog.Fragment)
	}
	if hits, misses := c.Stats(); hits != 1 || misses != 1 {
		t.Fatalf("stats = %d hits, %d misses", hits, misses)
	}
}

func TestDamagedEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	key := Key("test", "v", "f")
	if err := c.Put(key, "test", &shader.Program{Vertex: []byte("V"), Fragment: []byte("F")}); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, key+".frag.spv")); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(key); ok {
		t.Fatalf("entry with a missing data file reported a hit")
	}
	if err := os.WriteFile(filepath.Join(dir, key+".json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(key); ok {
		t.Fatalf("entry with corrupt metadata reported a hit")
	}
}

func TestCompiler(t *testing.T) {
	calls := 0
	inner := shader.CompilerFunc(func(_ context.Context, vertex, fragment string) (*shader.Program, error) {
		calls++
		if fragment == "bad" {
			return nil, errors.New("Compilation failed: fragment: 1: bad")
		}
		return &shader.Program{Vertex: []byte(vertex), Fragment: []byte(fragment)}, nil
	})
	c := &Compiler{Cache: New(t.TempDir()), Inner: inner, ID: "fake"}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		prog, err := c.Compile(ctx, "v", "f")
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		if string(prog.Fragment) != "f" {
			t.Fatalf("got %q", prog.Fragment)
		}
	}
	if calls != 1 {
		t.Fatalf("inner compiler called %d times, want 1", calls)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Compile(ctx, "v", "bad"); err == nil {
			t.Fatalf("expected failure")
		}
	}
	if calls != 3 {
		t.Fatalf("failures must not be cached: %d calls", calls)
	}
}
