// Package autosave writes the project document to disk shortly after it
// changes.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/clock"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
	"github.com/cespare/xxhash/v2"
)

var (
	// ErrNoPath indicates the project has never been given a file.
	ErrNoPath = errors.New("project has no save path")
	// ErrSaveInProgress indicates another save is running.
	ErrSaveInProgress = errors.New("save already in progress")
	// ErrClosed indicates the pipeline was closed.
	ErrClosed = errors.New("autosave closed")
)

// Writer persists bytes to a path.
type Writer interface {
	WriteFile(ctx context.Context, path string, data []byte) error
}

// Config tunes the pipeline.
type Config struct {
	Enabled bool
	Delay   time.Duration
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{Enabled: true, Delay: 500 * time.Millisecond}
}

// SaveResult describes one save attempt.
type SaveResult struct {
	Path     string
	Version  uint64
	Checksum uint64
	Bytes    int
	// Skipped is set when the bytes matched the last write to Path.
	Skipped bool
	Manual  bool
	Err     error
}

// Pipeline debounces document changes into saves. It keeps at most one live
// timer; every document change while dirty restarts it.
type Pipeline struct {
	store  *document.Store
	codec  document.Codec
	writer Writer
	clock  clock.Clock
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	timer       clock.Timer
	seq         uint64
	lastPath    string
	lastSum     uint64
	written     bool
	hooks       []func(SaveResult)
	closed      bool
	unsubscribe func()
	wg          sync.WaitGroup
}

// New creates a pipeline subscribed to store.
func New(store *document.Store, codec document.Codec, writer Writer, clk clock.Clock, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultConfig().Delay
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		store:  store,
		codec:  codec,
		writer: writer,
		clock:  clk,
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	p.unsubscribe = store.Subscribe(p.onChange)
	return p
}

// OnSaved registers a hook called after every save attempt.
func (p *Pipeline) OnSaved(fn func(SaveResult)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, fn)
}

// Scheduled reports whether an autosave is pending.
func (p *Pipeline) Scheduled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Save writes the document now. Unlike autosave it returns every error.
func (p *Pipeline) Save(ctx context.Context) (SaveResult, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return SaveResult{}, ErrClosed
	}
	p.stopTimerLocked()
	p.mu.Unlock()

	res := p.save(ctx, true)
	return res, res.Err
}

// SaveAs establishes path as the project file and saves to it.
func (p *Pipeline) SaveAs(ctx context.Context, path string) (SaveResult, error) {
	if path == "" {
		return SaveResult{}, ErrNoPath
	}
	p.store.SetPath(path)
	return p.Save(ctx)
}

// Close stops the timer, unsubscribes and waits for a running autosave.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.stopTimerLocked()
	p.mu.Unlock()

	p.unsubscribe()
	p.cancel()
	p.wg.Wait()
}

func (p *Pipeline) onChange(c document.Change) {
	if !p.cfg.Enabled || !c.State.IsDirty {
		return
	}
	if c.WasDirty && !c.DocumentChanged() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.stopTimerLocked()
	seq := p.seq
	p.timer = p.clock.AfterFunc(p.cfg.Delay, func() { p.fire(seq) })
}

func (p *Pipeline) fire(seq uint64) {
	p.mu.Lock()
	if p.closed || seq != p.seq {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	if !p.store.State().IsDirty {
		return
	}
	res := p.save(p.ctx, false)
	switch {
	case res.Err == nil:
	case errors.Is(res.Err, ErrSaveInProgress):
		p.logger.Debug("autosave deferred", "reason", res.Err)
		p.retry()
	case errors.Is(res.Err, ErrNoPath):
		p.logger.Debug("autosave skipped", "reason", res.Err)
	default:
		p.logger.Error("autosave failed", "path", res.Path, "error", res.Err)
	}
}

// retry reschedules a timer that found another save running.
func (p *Pipeline) retry() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.timer != nil {
		return
	}
	seq := p.seq
	p.timer = p.clock.AfterFunc(p.cfg.Delay, func() { p.fire(seq) })
}

func (p *Pipeline) save(ctx context.Context, manual bool) SaveResult {
	doc, path, version, ok := p.store.BeginSave()
	if !ok {
		return SaveResult{Manual: manual, Err: ErrSaveInProgress}
	}
	res := SaveResult{Path: path, Version: version, Manual: manual}
	if path == "" {
		res.Err = ErrNoPath
		p.store.FinishSave(version, res.Err)
		return res
	}

	data, err := p.codec.Serialize(doc)
	if err != nil {
		res.Err = fmt.Errorf("serializing project: %w", err)
		p.store.FinishSave(version, res.Err)
		p.report(res)
		return res
	}
	res.Bytes = len(data)
	res.Checksum = xxhash.Sum64(data)

	p.mu.Lock()
	res.Skipped = p.written && p.lastPath == path && p.lastSum == res.Checksum
	p.mu.Unlock()

	if !res.Skipped {
		if err := p.writer.WriteFile(ctx, path, data); err != nil {
			res.Err = fmt.Errorf("writing project: %w", err)
		}
	}
	p.store.FinishSave(version, res.Err)

	if res.Err == nil {
		p.mu.Lock()
		p.written, p.lastPath, p.lastSum = true, path, res.Checksum
		p.mu.Unlock()
		p.logger.Info("project saved", "path", path, "bytes", res.Bytes, "skipped", res.Skipped, "manual", manual)
	}
	p.report(res)
	return res
}

func (p *Pipeline) report(res SaveResult) {
	p.mu.Lock()
	hooks := slices.Clone(p.hooks)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(res)
	}
}

// stopTimerLocked also invalidates a timer that already fired but has not
// taken the lock yet.
func (p *Pipeline) stopTimerLocked() {
	p.seq++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
