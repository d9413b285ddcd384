package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestLoopDebouncesBursts(t *testing.T) {
	events := make(chan fsnotify.Event)
	errs := make(chan error)
	calls := make(chan []string, 4)

	w := &Watcher{
		Debounce: 20 * time.Millisecond,
		OnChange: func(_ context.Context, paths []string) error {
			calls <- paths
			return nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.loop(ctx, events, errs, nil) }()

	events <- fsnotify.Event{Name: "b.frag", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "a.vert", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "b.frag", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "ignored", Op: fsnotify.Chmod}
	errs <- errors.New("overflow")

	select {
	case got := <-calls:
		want := []string{"a.vert", "b.frag"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("paths = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("OnChange was not called")
	}

	select {
	case got := <-calls:
		t.Fatalf("unexpected second call with %v", got)
	case <-time.After(60 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("loop returned %v", err)
	}
}

func TestLoopKeepsRunningAfterCallbackError(t *testing.T) {
	events := make(chan fsnotify.Event)
	calls := make(chan []string, 4)
	w := &Watcher{
		Debounce: 5 * time.Millisecond,
		OnChange: func(_ context.Context, paths []string) error {
			calls <- paths
			return errors.New("compile failed")
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.loop(ctx, events, nil, nil)

	for _, name := range []string{"one", "two"} {
		events <- fsnotify.Event{Name: name, Op: fsnotify.Create}
		select {
		case got := <-calls:
			if !reflect.DeepEqual(got, []string{name}) {
				t.Fatalf("paths = %v, want [%s]", got, name)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("OnChange was not called for %s", name)
		}
	}
}

func TestLoopStopsWhenEventsClose(t *testing.T) {
	events := make(chan fsnotify.Event)
	close(events)
	if err := (&Watcher{}).loop(context.Background(), events, nil, nil); err != nil {
		t.Fatalf("loop returned %v", err)
	}
}

func TestLoopAddsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "lib")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	events := make(chan fsnotify.Event)
	added := make(chan string, 1)
	w := &Watcher{Recursive: true, Debounce: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.loop(ctx, events, nil, func(d string) error {
		added <- d
		return nil
	})

	events <- fsnotify.Event{Name: filepath.Join(dir, "file.glsl"), Op: fsnotify.Create}
	events <- fsnotify.Event{Name: sub, Op: fsnotify.Create}
	select {
	case got := <-added:
		if got != sub {
			t.Fatalf("added %q, want %q", got, sub)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("new directory was not added")
	}
}

func TestRunSeesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "basic.frag")
	if err := os.WriteFile(path, []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	calls := make(chan []string, 8)
	w := &Watcher{
		Debounce: 10 * time.Millisecond,
		OnChange: func(_ context.Context, paths []string) error {
			calls <- paths
			return nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, []string{dir}) }()

	deadline := time.After(5 * time.Second)
	for {
		// The watch may not be registered yet; keep writing until seen.
		if err := os.WriteFile(path, []byte("b\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		select {
		case got := <-calls:
			if len(got) != 1 || got[0] != path {
				t.Fatalf("paths = %v, want [%s]", got, path)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Run returned %v", err)
			}
			return
		case <-deadline:
			t.Fatalf("no change reported")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestRunMissingDir(t *testing.T) {
	err := (&Watcher{}).Run(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Fatalf("expected an error for a missing directory")
	}
}

func TestDirs(t *testing.T) {
	got := Dirs("shaders/a.vert", "shaders/a.frag", "", "shaders/lib/light.glsl")
	want := []string{"shaders", "shaders/lib"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Dirs = %v, want %v", got, want)
	}
}

func TestIgnored(t *testing.T) {
	w := &Watcher{Ignore: []string{"", filepath.Join("build", "out")}}
	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join("build", "out"), true},
		{filepath.Join("build", "out", "basic.low.frag"), true},
		{filepath.Join("build", "outer", "x"), false},
		{filepath.Join("build", "basic.frag"), false},
		{"shaders", false},
	}
	for _, tt := range tests {
		if got := w.ignored(tt.path); got != tt.want {
			t.Errorf("ignored(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLoopRefreshAddsNewDirectories(t *testing.T) {
	events := make(chan fsnotify.Event)
	added := make(chan string, 4)
	refreshed := make(chan struct{}, 4)

	dirs := []string{"shaders"}
	w := &Watcher{
		Debounce: 5 * time.Millisecond,
		OnChange: func(_ context.Context, paths []string) error {
			dirs = []string{"shaders", "lib", "out"}
			return nil
		},
		Refresh: func() []string {
			defer func() { refreshed <- struct{}{} }()
			return dirs
		},
		Ignore: []string{"out"},
	}
	w.markWatched("shaders")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.loop(ctx, events, nil, func(d string) error {
		added <- d
		return nil
	})

	for i := 0; i < 2; i++ {
		events <- fsnotify.Event{Name: filepath.Join("shaders", "basic.frag"), Op: fsnotify.Write}
		select {
		case <-refreshed:
		case <-time.After(2 * time.Second):
			t.Fatalf("Refresh was not called")
		}
	}

	select {
	case got := <-added:
		if got != "lib" {
			t.Fatalf("added %q, want lib", got)
		}
	default:
		t.Fatalf("lib was not added")
	}
	select {
	case got := <-added:
		t.Fatalf("unexpected second add of %q", got)
	default:
	}
}

func TestSkip(t *testing.T) {
	w := &Watcher{Skip: func(p string) bool { return strings.HasSuffix(p, ".spv") }}
	if !w.ignored("out/basic.low.frag.spv") {
		t.Fatalf("skipped file was not ignored")
	}
	if w.ignored("shaders/basic.frag") {
		t.Fatalf("source file was ignored")
	}
}
