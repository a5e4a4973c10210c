// SPDX-License-Identifier: MIT
/*
Package graph owns the enhancer's processing topology. Exactly one of
two wirings is live at any moment:

	bypass:    capture ──────────────────────────────▶ destination

	enhanced:  capture ▶ compressor ▶ band₁ … band₁₀ ▶ makeup ─┬▶ mix ▶ destination
	                                                           ├▶ convolver ▶ wet ▶ mix
	                                                           └▶ analyser

The wet path sums into the mix node before the destination. Every wiring
operation tears down all prior edges first, and a failure mid-wiring
falls back to bypass so the graph never terminates in a silent state.
*/
package graph

import (
	"errors"
	"fmt"
	"sync"

	"enhancer/internal/impulse"
	applog "enhancer/internal/log"
	"enhancer/internal/platform"
	"enhancer/internal/profile"
)

// Topology identifies which wiring is live.
type Topology int

const (
	TopologyBypass Topology = iota
	TopologyEnhanced
)

// String returns the string representation of the Topology.
func (t Topology) String() string {
	if t == TopologyEnhanced {
		return "enhanced"
	}
	return "bypass"
}

// maxFanout is the largest outgoing edge count any owned node may have.
// The makeup gain feeds the mix, the convolver and the analyser.
const maxFanout = 3

var (
	// ErrNoSource is returned when a wiring operation runs before Attach.
	ErrNoSource = errors.New("graph: no source attached")
	// ErrCaptureUnavailable is returned once a capture attempt has failed
	// fatally for the attached source. The failure is permanent for the
	// source's lifetime.
	ErrCaptureUnavailable = errors.New("graph: capture unavailable for source")
)

// Graph owns the processing nodes for one attached source. All node
// references live here; other components reach the capture tap only
// through this API.
type Graph struct {
	mu  sync.Mutex
	ctx platform.Context

	source  platform.Source
	capture platform.Node

	compressor platform.CompressorNode
	bands      []platform.BandFilterNode
	makeup     platform.GainNode
	convolver  platform.ConvolverNode
	wet        platform.GainNode
	mix        platform.GainNode
	analyser   platform.AnalyserNode

	topology      Topology
	wired         bool
	captureFailed bool
	fftSize       int
	irOverride    []float64
}

// New creates a graph bound to a processing context. fftSize sets the
// analysis tap's window and must be a power of two (validated upstream
// by config).
func New(ctx platform.Context, fftSize int) *Graph {
	return &Graph{ctx: ctx, fftSize: fftSize}
}

// SetImpulseOverride installs a measured impulse response used instead
// of the synthetic one on the next enhanced wiring. Nil reverts to
// synthetic rendering.
func (g *Graph) SetImpulseOverride(ir []float64) {
	g.mu.Lock()
	g.irOverride = ir
	g.mu.Unlock()
}

// Attach binds the graph to a new source. Any previous wiring is torn
// down and per-source state (capture tap, failure latch) is reset.
func (g *Graph) Attach(src platform.Source) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disconnectAllLocked()
	g.capture = nil
	g.captureFailed = false
	g.wired = false
	g.topology = TopologyBypass
	g.source = src
}

// Detach tears down all wiring and drops every node reference.
func (g *Graph) Detach() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disconnectAllLocked()
	g.source = nil
	g.capture = nil
	g.compressor = nil
	g.bands = nil
	g.makeup = nil
	g.convolver = nil
	g.wet = nil
	g.mix = nil
	g.analyser = nil
	g.wired = false
	g.captureFailed = false
}

// EnsureCapture returns the capture tap for the attached source,
// creating it on first use. The tap is cached for the source's lifetime;
// a second call never reaches the platform again, so the one-capture
// rule cannot be violated by this graph. A platform-reported capture
// conflict latches as permanent for this source.
func (g *Graph) EnsureCapture() (platform.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ensureCaptureLocked()
}

func (g *Graph) ensureCaptureLocked() (platform.Node, error) {
	if g.source == nil {
		return nil, ErrNoSource
	}
	if g.captureFailed {
		return nil, ErrCaptureUnavailable
	}
	if g.capture != nil {
		return g.capture, nil
	}

	capture, err := g.ctx.NewCapture(g.source)
	if err != nil {
		if errors.Is(err, platform.ErrSourceCaptured) {
			g.captureFailed = true
			applog.Errorf("Graph: source %s already captured, enhancer disabled for this source", g.source.ID())
			return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
		}
		return nil, fmt.Errorf("graph: create capture: %w", err)
	}
	g.capture = capture
	applog.Debugf("Graph: capture tap created for source %s", g.source.ID())
	return capture, nil
}

// WireBypass connects capture directly to the destination. All prior
// edges are torn down first. Repeated calls settle on the same topology.
func (g *Graph) WireBypass() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	capture, err := g.ensureCaptureLocked()
	if err != nil {
		return err
	}

	g.disconnectAllLocked()
	if err := capture.Connect(g.ctx.Destination()); err != nil {
		return fmt.Errorf("graph: bypass wiring: %w", err)
	}
	g.topology = TopologyBypass
	g.wired = true
	applog.Debugf("Graph: wired bypass")
	return nil
}

// WireEnhanced builds the full processing chain for the given profile.
// All prior edges are torn down first. The reverb impulse is built from
// the profile at wiring time; later parameter application does not
// rebuild it. On any failure the graph falls back to bypass before
// returning the error.
func (g *Graph) WireEnhanced(p profile.Profile) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	capture, err := g.ensureCaptureLocked()
	if err != nil {
		return err
	}

	g.ensureNodesLocked()
	g.disconnectAllLocked()

	if err := g.connectEnhancedLocked(capture); err != nil {
		// Never leave a partial graph behind: force the bypass path so
		// audio keeps flowing, then surface the original error.
		g.disconnectAllLocked()
		if bErr := capture.Connect(g.ctx.Destination()); bErr != nil {
			applog.Errorf("Graph: bypass fallback failed after wiring error: %v", bErr)
		}
		g.topology = TopologyBypass
		g.wired = true
		return fmt.Errorf("graph: enhanced wiring: %w", err)
	}

	ir := g.irOverride
	if ir == nil {
		ir = impulse.Render(p.Reverb.RoomSize, p.Reverb.Damping, g.ctx.SampleRate())
	}
	g.convolver.SetImpulse(ir)

	g.topology = TopologyEnhanced
	g.wired = true
	applog.Debugf("Graph: wired enhanced chain (profile %s, ir %d samples)", p.Name, len(ir))
	return nil
}

// connectEnhancedLocked adds every edge of the enhanced topology. The
// caller has already torn down all prior connections.
func (g *Graph) connectEnhancedLocked(capture platform.Node) error {
	if err := capture.Connect(g.compressor); err != nil {
		return err
	}
	prev := platform.Node(g.compressor)
	for _, band := range g.bands {
		if err := prev.Connect(band); err != nil {
			return err
		}
		prev = band
	}
	if err := prev.Connect(g.makeup); err != nil {
		return err
	}

	// Dry leg into the mix, wet leg through the convolver, analysis tap.
	if err := g.makeup.Connect(g.mix); err != nil {
		return err
	}
	if err := g.makeup.Connect(g.convolver); err != nil {
		return err
	}
	if err := g.makeup.Connect(g.analyser); err != nil {
		return err
	}
	if err := g.convolver.Connect(g.wet); err != nil {
		return err
	}
	if err := g.wet.Connect(g.mix); err != nil {
		return err
	}
	if err := g.mix.Connect(g.ctx.Destination()); err != nil {
		return err
	}

	if g.makeup.Outputs() > maxFanout {
		return fmt.Errorf("makeup gain fanout %d exceeds %d", g.makeup.Outputs(), maxFanout)
	}
	return nil
}

// ensureNodesLocked lazily creates the processing nodes. They are
// context-scoped, not source-scoped, so they survive source changes.
func (g *Graph) ensureNodesLocked() {
	if g.compressor != nil {
		return
	}
	g.compressor = g.ctx.NewCompressor()
	g.bands = make([]platform.BandFilterNode, profile.BandCount)
	for i := range g.bands {
		g.bands[i] = g.ctx.NewBandFilter()
	}
	g.makeup = g.ctx.NewGain()
	g.convolver = g.ctx.NewConvolver()
	g.wet = g.ctx.NewGain()
	g.mix = g.ctx.NewGain()
	g.analyser = g.ctx.NewAnalyser(g.fftSize)
}

// disconnectAllLocked tears down every outgoing edge of every owned
// node. Disconnect is idempotent, so unwired nodes are harmless.
func (g *Graph) disconnectAllLocked() {
	if g.capture != nil {
		g.capture.Disconnect()
	}
	if g.compressor != nil {
		g.compressor.Disconnect()
	}
	for _, band := range g.bands {
		band.Disconnect()
	}
	if g.makeup != nil {
		g.makeup.Disconnect()
	}
	if g.convolver != nil {
		g.convolver.Disconnect()
	}
	if g.wet != nil {
		g.wet.Disconnect()
	}
	if g.mix != nil {
		g.mix.Disconnect()
	}
	if g.analyser != nil {
		g.analyser.Disconnect()
	}
	g.wired = false
}

// Topology returns the current live topology.
func (g *Graph) Topology() Topology {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.topology
}

// Wired reports whether a wiring operation has completed since Attach.
func (g *Graph) Wired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.wired
}

// Analyser returns the analysis tap, or nil before the first enhanced
// wiring.
func (g *Graph) Analyser() platform.AnalyserNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.analyser
}

// Source returns the attached source, or nil.
func (g *Graph) Source() platform.Source {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.source
}
