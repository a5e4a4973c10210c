// SPDX-License-Identifier: MIT

/*
Package enhancer coordinates the dynamic enhancement feature: the
processing graph, the analysis loop, the activation gate and the
preference store. It owns the state machine

	Bypassed → Activating → Connecting → Connected
	    ▲          │            │
	    └──────────┴────────────┘ (failure or disable)

and guarantees that every transition leaves audio flowing: on any
failure the graph lands on the bypass path, never silence.
*/
package enhancer

import (
	"context"
	"errors"
	"sync"
	"time"

	"enhancer/internal/analysis"
	"enhancer/internal/graph"
	applog "enhancer/internal/log"
	"enhancer/internal/platform"
	"enhancer/internal/prefs"
	"enhancer/internal/profile"
	"enhancer/internal/transport"
	"enhancer/pkg/bitint"
)

// DefaultFFTSize is the analysis window when config does not override it.
const DefaultFFTSize = 2048

// DefaultSettleDelay is how long a toggle waits after rewiring before
// resuming playback, letting the host's ramps settle.
const DefaultSettleDelay = 50 * time.Millisecond

var (
	// ErrBusy is returned when a toggle or settings change arrives while
	// a previous transition is still in flight.
	ErrBusy = errors.New("enhancer: transition in progress")
	// ErrUnavailable is returned once the enhancer has been permanently
	// degraded for this session (context creation failed or the source's
	// capture tap is owned elsewhere).
	ErrUnavailable = errors.New("enhancer: unavailable")
)

// Playback is the transport the enhancer choreographs around a toggle:
// pause, rewire, restore position, resume.
type Playback interface {
	Pause()
	Resume()
	Seek(pos time.Duration)
	Position() time.Duration
	IsPlaying() bool
}

// PrefStore persists the listener's enabled flag and level.
type PrefStore interface {
	Read() (prefs.Values, error)
	Write(enabled bool, level int) error
}

type state int

const (
	stateBypassed state = iota
	stateActivating
	stateConnecting
	stateConnected
)

func (s state) String() string {
	switch s {
	case stateActivating:
		return "activating"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	default:
		return "bypassed"
	}
}

// Config wires an Enhancer's collaborators. ContextFactory, Prefs and
// Playback are required; Observers is optional.
type Config struct {
	ContextFactory   ContextFactory
	Prefs            PrefStore
	Playback         Playback
	Observers        transport.Transport
	FFTSize          int
	AnalysisInterval time.Duration
	SettleDelay      time.Duration
	ImpulseOverride  []float64
}

// Enhancer is the feature coordinator. All public methods are safe for
// concurrent use; transitions are serialized by the Busy guard rather
// than by blocking.
type Enhancer struct {
	mu sync.Mutex

	gate      *Gate
	graph     *graph.Graph
	loop      *analysis.Loop
	prefStore PrefStore
	playback  Playback
	observers transport.Transport

	fftSize          int
	analysisInterval time.Duration
	settleDelay      time.Duration
	irOverride       []float64

	st                 state
	enabled            bool
	level              profile.Level
	available          bool
	requiresActivation bool
	source             platform.Source
}

// New creates an Enhancer and seeds enabled/level from the preference
// store. Unset preferences fall back to disabled at the balanced level.
func New(cfg Config) (*Enhancer, error) {
	if cfg.ContextFactory == nil {
		return nil, errors.New("enhancer: context factory cannot be nil")
	}
	if cfg.Prefs == nil {
		return nil, errors.New("enhancer: preference store cannot be nil")
	}
	if cfg.Playback == nil {
		return nil, errors.New("enhancer: playback transport cannot be nil")
	}
	if cfg.FFTSize == 0 {
		cfg.FFTSize = DefaultFFTSize
	}
	if !bitint.IsPowerOfTwo(cfg.FFTSize) {
		return nil, errors.New("enhancer: fft size must be a power of 2")
	}
	if cfg.AnalysisInterval <= 0 {
		cfg.AnalysisInterval = analysis.DefaultInterval
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}

	e := &Enhancer{
		gate:             NewGate(cfg.ContextFactory),
		prefStore:        cfg.Prefs,
		playback:         cfg.Playback,
		observers:        cfg.Observers,
		fftSize:          cfg.FFTSize,
		analysisInterval: cfg.AnalysisInterval,
		settleDelay:      cfg.SettleDelay,
		irOverride:       cfg.ImpulseOverride,
		st:               stateBypassed,
		level:            profile.LevelBalanced,
		available:        true,
	}

	stored, err := cfg.Prefs.Read()
	if err != nil {
		applog.Warnf("Enhancer: preference read failed, using defaults: %v", err)
	} else {
		if stored.EnhancerEnabled != nil {
			e.enabled = *stored.EnhancerEnabled
		}
		if stored.Level != nil {
			e.level = profile.Clamp(*stored.Level)
		}
	}
	applog.Infof("Enhancer: created (enabled=%t level=%d)", e.enabled, e.level)
	return e, nil
}

// Gate exposes the activation gate so the shell can feed it gestures
// directly.
func (e *Enhancer) Gate() *Gate { return e.gate }

// Toggle flips the enabled flag and performs the full transition
// choreography: pause playback, rewire, persist, settle, restore
// position and resume. Wiring failures are absorbed (the graph falls
// back to bypass); only re-entrant calls and permanent unavailability
// surface as errors.
func (e *Enhancer) Toggle(ctx context.Context) error {
	e.mu.Lock()
	if !e.available {
		e.mu.Unlock()
		return ErrUnavailable
	}
	if e.st == stateActivating || e.st == stateConnecting {
		e.mu.Unlock()
		return ErrBusy
	}
	e.enabled = !e.enabled
	target := e.enabled
	if !target {
		// Disabling needs no activation; drop any pending enable.
		e.requiresActivation = false
	}
	e.st = stateActivating
	e.mu.Unlock()

	wasPlaying := e.playback.IsPlaying()
	pos := e.playback.Position()
	e.playback.Pause()
	applog.Infof("Enhancer: toggle -> %t (position %s)", target, pos)

	if target {
		ready, err := e.gate.EnsureReady(ctx)
		if err != nil {
			e.handleGateError(err)
			e.restorePlayback(pos, wasPlaying)
			e.pushStatus()
			return nil
		}
		if !ready {
			// Deferred until the first user gesture. The flip stays in
			// memory but nothing is persisted yet.
			e.mu.Lock()
			e.requiresActivation = true
			e.st = stateBypassed
			e.mu.Unlock()
			applog.Infof("Enhancer: activation deferred until user gesture")
			e.restorePlayback(pos, wasPlaying)
			e.pushStatus()
			return nil
		}
		if err := e.engage(); err != nil {
			applog.Errorf("Enhancer: engage failed, running bypassed: %v", err)
		}
	} else {
		if err := e.disengage(); err != nil {
			applog.Errorf("Enhancer: disengage failed: %v", err)
		}
	}

	e.persist()
	e.settle(ctx)
	e.restorePlayback(pos, wasPlaying)
	e.pushStatus()
	return nil
}

// SetLevel selects the enhancement profile. Out-of-range values clamp.
// A connected graph gets the new parameters immediately; the level is
// persisted regardless of connection state.
func (e *Enhancer) SetLevel(n int) {
	lvl := profile.Clamp(n)

	e.mu.Lock()
	e.level = lvl
	connected := e.st == stateConnected
	g := e.graph
	e.mu.Unlock()

	if connected && g != nil {
		if err := g.Apply(profile.ForLevel(lvl)); err != nil {
			applog.Warnf("Enhancer: profile application failed: %v", err)
		}
	}
	e.persist()
	e.pushStatus()
}

// Level returns the current enhancement level.
func (e *Enhancer) Level() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(e.level)
}

// Enabled reports the in-memory enabled flag, which may be ahead of the
// wired state while activation is pending.
func (e *Enhancer) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// HandleUserGesture records the gesture and completes any enable that
// was deferred waiting for it.
func (e *Enhancer) HandleUserGesture(ctx context.Context) {
	e.gate.OnUserGesture()

	e.mu.Lock()
	pending := e.requiresActivation && e.enabled
	busy := e.st == stateActivating || e.st == stateConnecting
	e.mu.Unlock()
	if busy {
		return
	}

	ready, err := e.gate.EnsureReady(ctx)
	if err != nil {
		e.handleGateError(err)
		e.pushStatus()
		return
	}
	if !ready {
		return
	}

	e.mu.Lock()
	e.requiresActivation = false
	e.mu.Unlock()

	if pending {
		applog.Infof("Enhancer: completing deferred activation")
		if err := e.engage(); err != nil {
			applog.Errorf("Enhancer: deferred engage failed: %v", err)
		}
		e.persist()
	}
	e.pushStatus()
}

// HandleSourceLoaded binds the enhancer to a new media source. Per
// source capture state resets; if the enhancer is enabled, the chain is
// rebuilt for the new source once the context is ready.
func (e *Enhancer) HandleSourceLoaded(ctx context.Context, src platform.Source) {
	e.mu.Lock()
	e.source = src
	e.available = true
	g := e.graph
	enabled := e.enabled
	if e.st == stateConnected {
		e.st = stateBypassed
	}
	loop := e.loop
	e.mu.Unlock()

	applog.Infof("Enhancer: source loaded: %s", src.ID())
	if loop != nil {
		loop.Stop()
	}
	if g != nil {
		g.Attach(src)
	}

	if !enabled {
		e.pushStatus()
		return
	}
	ready, err := e.gate.EnsureReady(ctx)
	if err != nil {
		e.handleGateError(err)
		e.pushStatus()
		return
	}
	if !ready {
		e.mu.Lock()
		e.requiresActivation = true
		e.mu.Unlock()
		e.pushStatus()
		return
	}
	if err := e.engage(); err != nil {
		applog.Errorf("Enhancer: rewire for new source failed: %v", err)
	}
	e.pushStatus()
}

// HandleSettingsChanged reacts to the enabled flag changing in the
// settings store. No transport choreography and no write-back: the
// store already holds the new value.
func (e *Enhancer) HandleSettingsChanged(ctx context.Context, enabled bool) error {
	e.mu.Lock()
	if e.st == stateActivating || e.st == stateConnecting {
		e.mu.Unlock()
		return ErrBusy
	}
	if e.enabled == enabled {
		e.mu.Unlock()
		return nil
	}
	e.enabled = enabled
	if !enabled {
		e.requiresActivation = false
	}
	e.mu.Unlock()

	if enabled {
		ready, err := e.gate.EnsureReady(ctx)
		if err != nil {
			e.handleGateError(err)
			e.pushStatus()
			return nil
		}
		if !ready {
			e.mu.Lock()
			e.requiresActivation = true
			e.mu.Unlock()
			e.pushStatus()
			return nil
		}
		if err := e.engage(); err != nil {
			applog.Errorf("Enhancer: engage from settings failed: %v", err)
		}
	} else {
		if err := e.disengage(); err != nil {
			applog.Errorf("Enhancer: disengage from settings failed: %v", err)
		}
	}
	e.pushStatus()
	return nil
}

// HandlePlaybackError drops to bypass unconditionally. Whatever the
// playback layer hit, the safest graph is the trivial one.
func (e *Enhancer) HandlePlaybackError(cause error) {
	applog.Warnf("Enhancer: playback error, dropping to bypass: %v", cause)

	e.stopLoop()
	e.mu.Lock()
	g := e.graph
	e.mu.Unlock()
	if g != nil {
		if err := g.WireBypass(); err != nil {
			applog.Errorf("Enhancer: bypass after playback error failed: %v", err)
		}
	}
	e.mu.Lock()
	e.st = stateBypassed
	e.mu.Unlock()
	e.pushStatus()
}

// Close stops analysis, tears down the graph and closes the platform
// context if one was created.
func (e *Enhancer) Close() error {
	e.stopLoop()

	e.mu.Lock()
	g := e.graph
	e.graph = nil
	e.st = stateBypassed
	e.mu.Unlock()

	if g != nil {
		g.Detach()
	}
	if pc := e.gate.Context(); pc != nil {
		return pc.Close()
	}
	return nil
}

// engage wires the enhanced chain, applies the current profile and
// starts analysis. On wiring failure the graph has already fallen back
// to bypass; the error is returned for logging.
func (e *Enhancer) engage() error {
	e.mu.Lock()
	if e.graph == nil {
		pc := e.gate.Context()
		if pc == nil {
			e.mu.Unlock()
			return ErrUnavailable
		}
		e.graph = graph.New(pc, e.fftSize)
		if e.irOverride != nil {
			e.graph.SetImpulseOverride(e.irOverride)
		}
		if e.source != nil {
			e.graph.Attach(e.source)
		}
	}
	g := e.graph
	lvl := e.level
	e.st = stateConnecting
	e.mu.Unlock()

	p := profile.ForLevel(lvl)
	if err := g.WireEnhanced(p); err != nil {
		e.mu.Lock()
		e.st = stateBypassed
		if errors.Is(err, graph.ErrCaptureUnavailable) {
			// The tap belongs to someone else; enhancement is off the
			// table for this source.
			e.available = false
		}
		e.mu.Unlock()
		return err
	}
	if err := g.Apply(p); err != nil {
		applog.Warnf("Enhancer: initial parameter application failed: %v", err)
	}
	e.startLoop(g)

	e.mu.Lock()
	e.st = stateConnected
	e.mu.Unlock()
	applog.Infof("Enhancer: connected (profile %s)", p.Name)
	return nil
}

// disengage stops analysis and wires the bypass path.
func (e *Enhancer) disengage() error {
	e.mu.Lock()
	g := e.graph
	e.st = stateConnecting
	e.mu.Unlock()

	e.stopLoop()

	var err error
	if g != nil {
		err = g.WireBypass()
	}

	e.mu.Lock()
	e.st = stateBypassed
	if errors.Is(err, graph.ErrCaptureUnavailable) {
		e.available = false
	}
	e.mu.Unlock()
	applog.Infof("Enhancer: bypassed")
	return err
}

// startLoop creates the analysis loop on first use and starts it. The
// bypassed probe reads the live topology so a later bypass forces
// "original" snapshots without restarting anything.
func (e *Enhancer) startLoop(g *graph.Graph) {
	tap := g.Analyser()
	if tap == nil {
		return
	}

	e.mu.Lock()
	loop := e.loop
	if loop == nil {
		pc := e.gate.Context()
		if pc == nil {
			e.mu.Unlock()
			return
		}
		created, err := analysis.NewLoop(tap, pc.SampleRate(), e.analysisInterval, e.observers, func() bool {
			e.mu.Lock()
			gr := e.graph
			e.mu.Unlock()
			return gr == nil || gr.Topology() == graph.TopologyBypass
		})
		if err != nil {
			e.mu.Unlock()
			applog.Errorf("Enhancer: analysis loop creation failed: %v", err)
			return
		}
		e.loop = created
		loop = created
	}
	e.mu.Unlock()

	loop.Start()
}

func (e *Enhancer) stopLoop() {
	e.mu.Lock()
	loop := e.loop
	e.mu.Unlock()
	if loop != nil {
		loop.Stop()
	}
}

// handleGateError folds a gate failure into availability state. Only
// permanent context failures degrade the session; resume errors leave
// the enhancer retryable.
func (e *Enhancer) handleGateError(err error) {
	e.mu.Lock()
	e.st = stateBypassed
	if errors.Is(err, platform.ErrContextUnavailable) {
		e.available = false
	}
	e.mu.Unlock()
	applog.Errorf("Enhancer: context not ready: %v", err)
}

// persist writes the in-memory enabled flag and level. Failures are
// logged, never surfaced; preferences are best-effort.
func (e *Enhancer) persist() {
	e.mu.Lock()
	enabled := e.enabled
	level := int(e.level)
	e.mu.Unlock()

	if err := e.prefStore.Write(enabled, level); err != nil {
		applog.Errorf("Enhancer: preference write failed: %v", err)
	}
}

// settle waits for the host's parameter ramps before playback resumes.
func (e *Enhancer) settle(ctx context.Context) {
	t := time.NewTimer(e.settleDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// restorePlayback puts the transport back where the toggle found it.
func (e *Enhancer) restorePlayback(pos time.Duration, wasPlaying bool) {
	e.playback.Seek(pos)
	if wasPlaying {
		e.playback.Resume()
	}
}
