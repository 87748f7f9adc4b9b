package scene

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/clock"
	"golang.org/x/time/rate"
)

var (
	// ErrRebuildInProgress indicates a rebuild request was dropped because
	// another is running.
	ErrRebuildInProgress = errors.New("viewer rebuild in progress")
	// ErrRetriggerThrottled indicates an external retrigger arrived too soon.
	ErrRetriggerThrottled = errors.New("retrigger throttled")
	// ErrClosed indicates the recovery machine was closed.
	ErrClosed = errors.New("recovery closed")
)

// State is the device state of the viewer.
type State int

const (
	StateReady State = iota
	StateLost
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateLost:
		return "lost"
	case StateRecovering:
		return "recovering"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transition is reported to observers on every state change.
type Transition struct {
	From       State
	To         State
	Generation uint64
	Err        error
}

// RecoveryConfig tunes device-loss recovery.
type RecoveryConfig struct {
	SettleDelay    time.Duration
	RetriggerEvery time.Duration
	RetriggerBurst int
}

// DefaultRecoveryConfig returns the standard timings.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		SettleDelay:    time.Second,
		RetriggerEvery: 2 * time.Second,
		RetriggerBurst: 1,
	}
}

// RecoveryDeps are the collaborators of the recovery machine.
type RecoveryDeps struct {
	Host       Host
	Factory    Factory
	Bus        *Bus
	Reconciler *Reconciler
	Reclaimer  *Reclaimer
	Ready      *Ready
	Clock      clock.Clock
}

// Recovery owns the viewer lifecycle: the initial build, teardown on device
// loss, and rebuild after the settle delay or a restore signal. A failed
// rebuild leaves the machine Lost until Retrigger.
type Recovery struct {
	deps    RecoveryDeps
	cfg     RecoveryConfig
	logger  *slog.Logger
	limiter *rate.Limiter

	current atomic.Pointer[Viewer]

	mu          sync.Mutex
	state       State
	loading     bool
	closed      bool
	started     bool
	generation  uint64
	settle      clock.Timer
	lostSurface string
	lostWatch   func()
	observers   []func(Transition)
	unsubscribe func()
	baseCtx     context.Context
	cancelBase  context.CancelFunc

	wg sync.WaitGroup
}

// NewRecovery creates the machine in state Ready with no viewer.
func NewRecovery(deps RecoveryDeps, cfg RecoveryConfig, logger *slog.Logger) *Recovery {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Reclaimer == nil {
		deps.Reclaimer = NewReclaimer(logger)
	}
	if deps.Ready == nil {
		deps.Ready = NewReady()
		deps.Ready.Resolve(nil)
	}
	if cfg.RetriggerBurst <= 0 {
		cfg.RetriggerBurst = 1
	}
	limit := rate.Inf
	if cfg.RetriggerEvery > 0 {
		limit = rate.Every(cfg.RetriggerEvery)
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	r := &Recovery{
		deps:       deps,
		cfg:        cfg,
		logger:     logger,
		limiter:    rate.NewLimiter(limit, cfg.RetriggerBurst),
		state:      StateReady,
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
	r.unsubscribe = deps.Bus.Subscribe(r.handle)
	return r
}

// Current returns the live viewer, or nil while there is none.
func (r *Recovery) Current() *Viewer {
	return r.current.Load()
}

// State returns the current state.
func (r *Recovery) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OnTransition registers an observer. Observers run without locks held.
func (r *Recovery) OnTransition(fn func(Transition)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Start waits for host readiness and builds the first viewer. Calling Start
// again once a viewer exists is a no-op.
func (r *Recovery) Start(ctx context.Context) error {
	if err := r.deps.Ready.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for host: %w", err)
	}
	r.mu.Lock()
	if r.started && r.current.Load() != nil {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.mu.Unlock()
	return r.rebuild(ctx, "start")
}

// Retrigger requests a rebuild from outside, e.g. on window refocus. It is
// a no-op unless the machine is Lost.
func (r *Recovery) Retrigger(ctx context.Context) error {
	if !r.limiter.Allow() {
		return ErrRetriggerThrottled
	}
	if r.State() != StateLost {
		return nil
	}
	return r.rebuild(ctx, "retrigger")
}

// Close stops timers, waits for a running rebuild, and tears the viewer
// down.
func (r *Recovery) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.stopSettleLocked()
	unsubscribe := r.unsubscribe
	r.mu.Unlock()

	unsubscribe()
	r.stopRestoreWatch()
	r.cancelBase()
	r.wg.Wait()

	if v := r.current.Swap(nil); v != nil {
		r.teardown(v)
	}
	r.deps.Reconciler.Close()

	r.mu.Lock()
	r.loading = false
	r.mu.Unlock()
}

func (r *Recovery) handle(e Event) {
	switch ev := e.(type) {
	case DeviceLost:
		r.onLost(ev)
	case DeviceRestored:
		r.onRestored(ev)
	}
}

func (r *Recovery) onLost(ev DeviceLost) {
	v := r.current.Load()
	if v == nil || v.Surface == nil || v.Surface.ID() != ev.SurfaceID {
		r.logger.Debug("ignoring device loss from stale surface", "surface", ev.SurfaceID)
		return
	}

	if ev.PreventDefault != nil {
		ev.PreventDefault()
	}

	r.mu.Lock()
	if r.closed || r.state == StateLost {
		r.mu.Unlock()
		return
	}
	if !r.current.CompareAndSwap(v, nil) {
		r.mu.Unlock()
		return
	}
	from := r.state
	r.state = StateLost
	r.lostSurface = ev.SurfaceID
	r.stopSettleLocked()
	r.settle = r.deps.Clock.AfterFunc(r.cfg.SettleDelay, func() { r.rebuildAfterLoss("settle") })
	r.mu.Unlock()

	r.logger.Warn("device lost, tearing down viewer", "generation", v.Generation, "surface", ev.SurfaceID)
	r.teardown(v)
	r.watchRestore(v.Surface)
	r.notify(Transition{From: from, To: StateLost, Generation: v.Generation})
}

func (r *Recovery) onRestored(ev DeviceRestored) {
	r.mu.Lock()
	lost := r.state == StateLost && (ev.SurfaceID == "" || ev.SurfaceID == r.lostSurface)
	r.mu.Unlock()
	if !lost {
		return
	}
	r.rebuildAfterLoss("restored")
}

// watchRestore keeps listening to a lost surface for its restore signal.
func (r *Recovery) watchRestore(s Surface) {
	unlisten := s.Listen(func(e Event) {
		if restored, ok := e.(DeviceRestored); ok {
			r.deps.Bus.Publish(restored)
		}
	})
	r.mu.Lock()
	prev := r.lostWatch
	r.lostWatch = unlisten
	closed := r.closed
	r.mu.Unlock()
	if prev != nil {
		prev()
	}
	if closed {
		r.stopRestoreWatch()
	}
}

func (r *Recovery) stopRestoreWatch() {
	r.mu.Lock()
	unlisten := r.lostWatch
	r.lostWatch = nil
	r.mu.Unlock()
	if unlisten != nil {
		unlisten()
	}
}

func (r *Recovery) rebuildAfterLoss(reason string) {
	// Failures are logged by rebuild and leave the machine Lost.
	_ = r.rebuild(r.baseCtx, reason)
}

// rebuild creates a fresh surface and renderer and reconciles the current
// document into it.
func (r *Recovery) rebuild(ctx context.Context, reason string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.loading {
		r.mu.Unlock()
		r.logger.Debug("dropping rebuild request", "reason", reason)
		return ErrRebuildInProgress
	}
	r.loading = true
	r.wg.Add(1)
	r.stopSettleLocked()
	r.generation++
	gen := r.generation
	from := r.state
	recovering := from == StateLost
	if recovering {
		r.state = StateRecovering
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.loading = false
		r.mu.Unlock()
		r.wg.Done()
	}()
	r.stopRestoreWatch()

	if recovering {
		r.notify(Transition{From: from, To: StateRecovering, Generation: gen})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.baseCtx, cancel)
	defer stop()

	v, err := r.build(ctx, gen)
	if err == nil {
		r.deps.Reconciler.Reset()
		r.current.Store(v)
		_, err = r.deps.Reconciler.Reconcile(ctx, v)
		if err != nil && r.current.CompareAndSwap(v, nil) {
			r.teardown(v)
		}
	}

	r.mu.Lock()
	if r.current.Load() != v || v == nil {
		if err == nil {
			err = errors.New("viewer lost during rebuild")
		}
	}
	prev := r.state
	if err != nil {
		r.state = StateLost
	} else {
		r.state = StateReady
	}
	next := r.state
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("viewer build failed", "reason", reason, "generation", gen, "error", err)
		if prev != StateLost {
			r.notify(Transition{From: prev, To: StateLost, Generation: gen, Err: err})
		}
		return fmt.Errorf("rebuilding viewer: %w", err)
	}
	if prev != next {
		r.notify(Transition{From: prev, To: next, Generation: gen})
	}
	r.logger.Info("viewer ready", "reason", reason, "generation", gen)
	return nil
}

func (r *Recovery) build(ctx context.Context, gen uint64) (*Viewer, error) {
	surface, err := r.deps.Host.CreateSurface(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating surface: %w", err)
	}
	renderer, err := r.deps.Factory.NewRenderer(ctx, surface)
	if err != nil {
		r.deps.Host.RemoveSurface(surface)
		return nil, fmt.Errorf("creating renderer: %w", err)
	}
	v := NewViewer(r.baseCtx, gen, surface, renderer)
	v.AddListener(surface.Listen(r.deps.Bus.Publish))
	v.AddListener(renderer.Listen(stampSurface(surface.ID(), r.deps.Bus.Publish)))
	return v, nil
}

// stampSurface fills in the surface id on device signals the renderer
// forwards without one.
func stampSurface(id string, publish func(Event)) func(Event) {
	return func(e Event) {
		switch ev := e.(type) {
		case DeviceLost:
			if ev.SurfaceID == "" {
				ev.SurfaceID = id
				e = ev
			}
		case DeviceRestored:
			if ev.SurfaceID == "" {
				ev.SurfaceID = id
				e = ev
			}
		}
		publish(e)
	}
}

// teardown detaches listeners, cancels in-flight work, unloads everything,
// disposes the renderer and its root node, and removes the surface.
func (r *Recovery) teardown(v *Viewer) {
	v.Shutdown()
	r.deps.Reclaimer.UnloadAll(v)
	if v.Renderer != nil {
		var root Node
		r.deps.Reclaimer.step("", "root", func() { root = v.Renderer.Graph().Root() })
		r.deps.Reclaimer.disposeTree("", root)
		r.deps.Reclaimer.step("", "dispose renderer", v.Renderer.Dispose)
	}
	if v.Surface != nil {
		r.deps.Reclaimer.step("", "remove surface", func() { r.deps.Host.RemoveSurface(v.Surface) })
	}
}

func (r *Recovery) notify(t Transition) {
	r.mu.Lock()
	observers := slices.Clone(r.observers)
	r.mu.Unlock()
	for _, fn := range observers {
		fn(t)
	}
}

func (r *Recovery) stopSettleLocked() {
	if r.settle != nil {
		r.settle.Stop()
		r.settle = nil
	}
}
