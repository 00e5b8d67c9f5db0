// Package watch turns file system notifications under a project root into
// hot-update file changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/Avinash-1994/Nexxo-sub001/hmr"
	"github.com/Avinash-1994/Nexxo-sub001/internal/ctxlog"
	"github.com/Avinash-1994/Nexxo-sub001/internal/ignore"
)

// Watcher watches every non-ignored directory below a root.
type Watcher struct {
	root   string
	ignore *ignore.Matcher
	fsw    *fsnotify.Watcher
	events chan hmr.FileChange
}

// New creates a watcher on root. A nil matcher loads the defaults and the
// root's ignore file. A given matcher must be rooted at root.
func New(root string, m *ignore.Matcher) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if m == nil {
		m, err = ignore.LoadFromDir(absRoot)
		if err != nil {
			return nil, fmt.Errorf("loading ignore patterns: %w", err)
		}
	}
	if mr, err := filepath.Abs(m.Root()); err != nil || filepath.Clean(mr) != absRoot {
		return nil, fmt.Errorf("ignore rules rooted at %q, not %q", m.Root(), absRoot)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		root:   absRoot,
		ignore: m,
		fsw:    fsw,
		events: make(chan hmr.FileChange, 64),
	}
	if err := w.addTree(absRoot); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Events delivers file changes with absolute paths. It is closed when Run
// returns.
func (w *Watcher) Events() <-chan hmr.FileChange { return w.events }

// Run forwards notifications until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	log := ctxlog.FromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			for _, change := range w.translate(ev) {
				select {
				case w.events <- change:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// translate maps one notification to zero or more changes. A created
// directory is watched and its existing files are reported as created.
func (w *Watcher) translate(ev fsnotify.Event) []hmr.FileChange {
	rel, ok := w.rel(ev.Name)
	if !ok {
		return nil
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if w.ignore.Match(rel, true) {
				return nil
			}
			var out []hmr.FileChange
			_ = w.walk(ev.Name, func(path string, d fs.DirEntry) {
				if d.IsDir() {
					_ = w.fsw.Add(path)
					return
				}
				out = append(out, hmr.FileChange{Path: path, Kind: hmr.Created})
			})
			return out
		}
		if w.ignore.Match(rel, false) {
			return nil
		}
		return []hmr.FileChange{{Path: ev.Name, Kind: hmr.Created}}

	case ev.Has(fsnotify.Write):
		if w.ignore.Match(rel, false) {
			return nil
		}
		return []hmr.FileChange{{Path: ev.Name, Kind: hmr.Updated}}

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if w.ignore.Match(rel, false) {
			return nil
		}
		return []hmr.FileChange{{Path: ev.Name, Kind: hmr.Deleted}}
	}
	return nil
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) addTree(dir string) error {
	var addErr error
	err := w.walk(dir, func(path string, d fs.DirEntry) {
		if d.IsDir() && addErr == nil {
			if err := w.fsw.Add(path); err != nil {
				addErr = fmt.Errorf("watching %s: %w", path, err)
			}
		}
	})
	return errors.Join(err, addErr)
}

// walk visits every non-ignored entry below dir, dir included.
func (w *Watcher) walk(dir string, visit func(path string, d fs.DirEntry)) error {
	return w.ignore.Walk(dir, func(path, _ string, d fs.DirEntry) error {
		visit(path, d)
		return nil
	})
}
