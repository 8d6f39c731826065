// Package watcher reports file changes under a project root so watch mode
// can re-ingest incrementally. Raw fsnotify events are coalesced per path
// within a debounce window, then emitted as one batch per quiet period.
package watcher

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ragweaver/ragweaver/internal/gitignore"
)

// DefaultDebounce is the quiet period before a batch is emitted.
const DefaultDebounce = 500 * time.Millisecond

// Op classifies what happened to a path.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one coalesced change. Path is relative to the watched root.
type Event struct {
	Path string
	Op   Op
}

// Watcher watches a directory tree and delivers debounced event batches.
type Watcher struct {
	root     string
	debounce time.Duration
	ignore   *gitignore.Matcher
	logger   *slog.Logger

	fsw     *fsnotify.Watcher
	batches chan []Event
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a batch is emitted.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIgnore adds gitignore-style patterns to skip.
func WithIgnore(patterns ...string) Option {
	return func(w *Watcher) {
		for _, p := range patterns {
			w.ignore.AddPattern(p)
		}
	}
}

// WithLogger sets the logger for watch registration warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New builds a watcher rooted at root. The root's .gitignore, when present,
// contributes skip rules on top of any WithIgnore patterns.
func New(root string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     abs,
		debounce: DefaultDebounce,
		ignore:   gitignore.New(),
		logger:   slog.Default(),
		batches:  make(chan []Event, 16),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.ignore.AddFromFile(filepath.Join(abs, ".gitignore"), ""); err != nil &&
		!errors.Is(err, fs.ErrNotExist) {
		w.logger.Warn("gitignore_load_failed", "error", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w.fsw = fsw
	return w, nil
}

// Start registers the directory tree and begins delivering batches. It
// returns once registration is done; events flow until Close is called.
func (w *Watcher) Start() error {
	if err := w.addTree(w.root); err != nil {
		w.fsw.Close()
		return err
	}
	go w.run()
	return nil
}

// Batches returns the stream of coalesced event batches. The channel closes
// when the watcher is closed.
func (w *Watcher) Batches() <-chan []Event {
	return w.batches
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// addTree registers every non-ignored directory under path.
func (w *Watcher) addTree(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.skip(p, true) && p != w.root {
			return fs.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			w.logger.Warn("watch_add_failed", "path", p, "error", err)
		}
		return nil
	})
}

// skip reports whether a path is outside ingestion scope: hidden files and
// directories, or anything the ignore rules match.
func (w *Watcher) skip(path string, isDir bool) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return w.ignore.Match(rel, isDir)
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// run owns the pending map: it folds raw events into it and flushes a batch
// once the debounce window passes without new activity.
func (w *Watcher) run() {
	defer close(w.batches)

	pending := make(map[string]Op)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				w.flush(pending)
				return
			}
			if w.handle(ev, pending) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.flush(pending)
				return
			}
			w.logger.Warn("watch_error", "error", err)

		case <-timer.C:
			if !w.flush(pending) {
				// Receiver is behind. Keep coalescing and retry.
				timer.Reset(w.debounce)
				continue
			}
			pending = make(map[string]Op)
		}
	}
}

// handle folds one raw event into pending and reports whether anything
// changed. New directories are registered and their existing files emitted
// as creates, since they may have been written before the watch landed.
func (w *Watcher) handle(ev fsnotify.Event, pending map[string]Op) bool {
	var op Op
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return false
	}

	if op == OpCreate {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.skip(ev.Name, true) {
				return false
			}
			return w.addCreatedDir(ev.Name, pending)
		}
	}
	if w.skip(ev.Name, false) {
		return false
	}

	coalesce(pending, w.rel(ev.Name), op)
	return true
}

// addCreatedDir watches a directory that appeared after startup and records
// creates for the files already inside it.
func (w *Watcher) addCreatedDir(dir string, pending map[string]Op) bool {
	changed := false
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if w.skip(p, true) && p != dir {
				return fs.SkipDir
			}
			if err := w.fsw.Add(p); err != nil {
				w.logger.Warn("watch_add_failed", "path", p, "error", err)
			}
			return nil
		}
		if d.Type().IsRegular() && !w.skip(p, false) {
			coalesce(pending, w.rel(p), OpCreate)
			changed = true
		}
		return nil
	})
	if err != nil {
		w.logger.Warn("watch_add_failed", "path", dir, "error", err)
	}
	return changed
}

// flush sends the pending batch. It reports false when the receiver is not
// keeping up, so the caller can retry after another window.
func (w *Watcher) flush(pending map[string]Op) bool {
	if len(pending) == 0 {
		return true
	}
	batch := make([]Event, 0, len(pending))
	for path, op := range pending {
		batch = append(batch, Event{Path: path, Op: op})
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	select {
	case w.batches <- batch:
		return true
	default:
		return false
	}
}

// coalesce folds a new operation into the pending state for a path:
//
//	create + modify = create   (file is still new)
//	create + delete = nothing  (file never really existed)
//	modify + delete = delete   (file is gone)
//	delete + create = modify   (file was replaced)
func coalesce(pending map[string]Op, path string, op Op) {
	old, ok := pending[path]
	if !ok {
		pending[path] = op
		return
	}
	switch {
	case old == OpCreate && op == OpModify:
		// keep create
	case old == OpCreate && op == OpDelete:
		delete(pending, path)
	case old == OpDelete && op == OpCreate:
		pending[path] = OpModify
	default:
		pending[path] = op
	}
}
