// Package watch reruns a build when shader sources change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 100 * time.Millisecond

// Watcher calls OnChange once per burst of file system events in the
// watched directories. A burst ends when no event arrived for Debounce.
type Watcher struct {
	Debounce time.Duration
	// Recursive also watches subdirectories, including ones created later.
	Recursive bool
	// Ignore lists directories whose contents never trigger a rebuild,
	// such as the build output.
	Ignore []string
	// Skip, when set, drops events for individual files, such as build
	// outputs written next to their sources.
	Skip func(path string) bool
	// OnChange receives the sorted, de-duplicated changed paths. Its error
	// is logged and does not stop the watcher.
	OnChange func(ctx context.Context, paths []string) error
	// Refresh, when set, is asked for the directories to watch after every
	// OnChange call. Directories not yet watched are added; none are
	// removed.
	Refresh func() []string
	Logger  *slog.Logger

	watched map[string]struct{}
}

// Run watches dirs until ctx is done.
func (w *Watcher) Run(ctx context.Context, dirs []string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Close()

	for _, dir := range dirs {
		if err := w.add(fw, dir); err != nil {
			return err
		}
	}
	w.logger().Info("watching", "dirs", dirs)
	return w.loop(ctx, fw.Events, fw.Errors, func(dir string) error { return w.add(fw, dir) })
}

func (w *Watcher) add(fw *fsnotify.Watcher, dir string) error {
	if !w.Recursive {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		w.markWatched(dir)
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		w.markWatched(path)
		return nil
	})
}

func (w *Watcher) markWatched(dir string) {
	if w.watched == nil {
		w.watched = map[string]struct{}{}
	}
	w.watched[filepath.Clean(dir)] = struct{}{}
}

func (w *Watcher) isWatched(dir string) bool {
	_, ok := w.watched[filepath.Clean(dir)]
	return ok
}

// refresh adds the directories Refresh reports that are not watched yet.
func (w *Watcher) refresh(addDir func(string) error, log *slog.Logger) {
	if w.Refresh == nil || addDir == nil {
		return
	}
	for _, dir := range w.Refresh() {
		if dir == "" || w.isWatched(dir) || w.ignored(dir) {
			continue
		}
		if err := addDir(dir); err != nil {
			log.Warn("watching directory", "path", dir, "error", err)
			continue
		}
		w.markWatched(dir)
		log.Info("watching", "dir", dir)
	}
}

func (w *Watcher) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

// loop debounces events into OnChange calls. addDir is called for
// directories created while watching recursively.
func (w *Watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, addDir func(string) error) error {
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	log := w.logger()

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := map[string]struct{}{}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !relevant(event) || w.ignored(event.Name) {
				continue
			}
			if w.Recursive && event.Has(fsnotify.Create) && addDir != nil {
				if isDir(event.Name) {
					if err := addDir(event.Name); err != nil {
						log.Warn("watching new directory", "path", event.Name, "error", err)
					} else {
						w.markWatched(event.Name)
					}
				}
			}
			log.Debug("file changed", "path", event.Name, "op", event.Op.String())
			pending[event.Name] = struct{}{}
			timer.Reset(debounce)

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			log.Warn("file watcher error", "error", err)

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			pending = map[string]struct{}{}

			if w.OnChange == nil {
				continue
			}
			if err := w.OnChange(ctx, paths); err != nil {
				log.Error("rebuild failed", "error", err)
			}
			w.refresh(addDir, log)
		}
	}
}

func (w *Watcher) ignored(path string) bool {
	if w.Skip != nil && w.Skip(path) {
		return true
	}
	for _, dir := range w.Ignore {
		if dir == "" {
			continue
		}
		rel, err := filepath.Rel(dir, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func relevant(e fsnotify.Event) bool {
	return e.Has(fsnotify.Write) || e.Has(fsnotify.Create) || e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Dirs returns the sorted, de-duplicated directories containing files.
func Dirs(files ...string) []string {
	seen := map[string]struct{}{}
	for _, f := range files {
		if f == "" {
			continue
		}
		seen[filepath.Dir(f)] = struct{}{}
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}
