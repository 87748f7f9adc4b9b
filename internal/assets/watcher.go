package assets

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/clock"
	"github.com/fsnotify/fsnotify"
)

// Watcher reports when missing assets reappear on the host file system.
// Each missing path is watched through its nearest existing ancestor
// directory; bursts of events are coalesced for the debounce window before
// onAppear runs.
type Watcher struct {
	fsw      *fsnotify.Watcher
	clock    clock.Clock
	debounce time.Duration
	onAppear func(paths []string)
	logger   *slog.Logger

	mu      sync.Mutex
	targets map[string]struct{}
	dirs    map[string]struct{}
	pending map[string]struct{}
	timer   clock.Timer
	closed  bool

	wg sync.WaitGroup
}

// NewWatcher starts an fsnotify watcher. onAppear receives the missing paths
// that now exist.
func NewWatcher(clk clock.Clock, debounce time.Duration, onAppear func(paths []string), logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	w := &Watcher{
		fsw:      fsw,
		clock:    clk,
		debounce: debounce,
		onAppear: onAppear,
		logger:   logger,
		targets:  make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
		pending:  make(map[string]struct{}),
	}
	w.wg.Add(1)
	go w.processEvents()
	return w, nil
}

// Watch replaces the set of missing paths being watched.
func (w *Watcher) Watch(paths []string) error {
	wantDirs := make(map[string]struct{})
	targets := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		p = filepath.Clean(p)
		targets[p] = struct{}{}
		if dir, ok := nearestExistingDir(filepath.Dir(p)); ok {
			wantDirs[dir] = struct{}{}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.targets = targets

	for dir := range w.dirs {
		if _, keep := wantDirs[dir]; keep {
			continue
		}
		if err := w.fsw.Remove(dir); err != nil {
			w.logger.Debug("failed to remove watch", "dir", dir, "error", err)
		}
		delete(w.dirs, dir)
	}
	for dir := range wantDirs {
		if _, ok := w.dirs[dir]; ok {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			w.logger.Warn("failed to watch asset directory", "dir", dir, "error", err)
			continue
		}
		w.dirs[dir] = struct{}{}
	}
	return nil
}

// Watched returns the watched directories, sorted.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	dirs := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// Close stops the watcher and drops pending notifications.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("asset watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) == 0 {
		return
	}
	name := filepath.Clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	matched, ancestor := false, false
	for target := range w.targets {
		switch {
		case target == name:
			matched = true
		case strings.HasPrefix(target, name+string(filepath.Separator)):
			matched, ancestor = true, true
		default:
			continue
		}
		w.pending[target] = struct{}{}
	}
	if !matched {
		return
	}
	if _, watched := w.dirs[name]; ancestor && !watched {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			if err := w.fsw.Add(name); err == nil {
				w.dirs[name] = struct{}{}
			}
		}
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = w.clock.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	var appeared []string
	for p := range w.pending {
		if _, err := os.Stat(p); err == nil {
			appeared = append(appeared, p)
		}
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	// A created parent directory is not enough; keep waiting for the file.
	if len(appeared) == 0 {
		return
	}
	sort.Strings(appeared)
	w.logger.Info("missing assets reappeared", "count", len(appeared))
	if w.onAppear != nil {
		w.onAppear(appeared)
	}
}

func nearestExistingDir(dir string) (string, bool) {
	for {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
