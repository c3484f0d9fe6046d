package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the watcher waits after the last event
// before flushing. Editors fire bursts of writes per save; one flush
// covers the burst.
const DefaultDebounce = 500 * time.Millisecond

// ChangeHandler receives the batch of changed files once the debounce
// window closes. Paths are relative to the watched root.
type ChangeHandler func(ctx context.Context, root string, relPaths []string)

// Watcher watches a project tree for Go file changes and reports them
// debounced. Directories added while watching are picked up.
type Watcher struct {
	root     string
	debounce time.Duration
	handler  ChangeHandler
	log      zerolog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// New creates a watcher for the project at root. debounce <= 0 uses the
// default.
func New(root string, debounce time.Duration, handler ChangeHandler, log zerolog.Logger) (*Watcher, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		handler:  handler,
		log:      log,
		pending:  make(map[string]struct{}),
	}, nil
}

// Root returns the watched project root.
func (w *Watcher) Root() string { return w.root }

// Run watches until ctx is cancelled. Blocks.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = fsw.Close()
	}()

	if err := addRecursive(fsw, w.root); err != nil {
		return err
	}
	w.log.Debug().Str("root", w.root).Msg("watcher started")

	for {
		select {
		case <-ctx.Done():
			w.flush(context.WithoutCancel(ctx))
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !skipDir(filepath.Base(event.Name)) {
				_ = addRecursive(fsw, event.Name)
			}
			return
		}
	}
	if !strings.HasSuffix(event.Name, ".go") {
		return
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[relPath] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.flush(ctx)
	})
}

// flush hands the accumulated paths to the handler.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	w.log.Debug().Int("files", len(paths)).Msg("flushing file changes")
	w.handler(ctx, w.root, paths)
}

func addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != dir && skipDir(info.Name()) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func skipDir(name string) bool {
	return name == "vendor" || strings.HasPrefix(name, ".")
}
