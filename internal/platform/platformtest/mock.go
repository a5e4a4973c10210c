// SPDX-License-Identifier: MIT

// Package platformtest provides an in-memory platform.Context for tests.
// Nodes record the parameters pushed onto them and the mock context keeps
// per-source capture bookkeeping, so suites can assert on topology and
// parameter application without a real audio host.
package platformtest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"enhancer/internal/platform"
)

// Source is a mock media element.
type Source struct {
	Name string
	Rate float64
}

func (s *Source) ID() string          { return s.Name }
func (s *Source) SampleRate() float64 { return s.Rate }

// NewSource creates a mock source at 48 kHz.
func NewSource(name string) *Source {
	return &Source{Name: name, Rate: 48000}
}

// Context is an in-memory platform.Context. Zero value is not usable;
// create with NewContext.
type Context struct {
	mu       sync.Mutex
	state    platform.State
	rate     float64
	dest     *Node
	captures map[string]*CaptureNode

	// Failure injection for error-path tests.
	ResumeErr   error
	CaptureErr  error
	ResumeCount int

	// FailConnectKind makes every node of that kind fail Connect calls.
	FailConnectKind string

	nodes []*Node
}

// NewContext creates a suspended mock context at 48 kHz.
func NewContext() *Context {
	return &Context{
		state:    platform.StateSuspended,
		rate:     48000,
		dest:     &Node{Kind: "destination"},
		captures: make(map[string]*CaptureNode),
	}
}

func (c *Context) State() platform.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Context) Resume(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ResumeCount++
	if c.ResumeErr != nil {
		return c.ResumeErr
	}
	if c.state == platform.StateClosed {
		return platform.ErrContextClosed
	}
	c.state = platform.StateRunning
	return nil
}

func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = platform.StateClosed
	return nil
}

func (c *Context) SampleRate() float64 { return c.rate }

func (c *Context) Destination() platform.Node { return c.dest }

// NewCapture enforces the one-tap-per-source rule the way a real host
// does: a second capture attempt for the same source fails.
func (c *Context) NewCapture(src platform.Source) (platform.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CaptureErr != nil {
		return nil, c.CaptureErr
	}
	if c.state == platform.StateClosed {
		return nil, platform.ErrContextClosed
	}
	if _, taken := c.captures[src.ID()]; taken {
		return nil, fmt.Errorf("%w: %s", platform.ErrSourceCaptured, src.ID())
	}
	capture := &CaptureNode{Node: c.newNode("capture"), Src: src}
	c.register(&capture.Node)
	c.captures[src.ID()] = capture
	return capture, nil
}

func (c *Context) NewCompressor() platform.CompressorNode {
	n := &CompressorNode{Node: c.newNode("compressor")}
	c.track(&n.Node)
	return n
}

func (c *Context) NewBandFilter() platform.BandFilterNode {
	n := &BandFilterNode{Node: c.newNode("band")}
	c.track(&n.Node)
	return n
}

func (c *Context) NewConvolver() platform.ConvolverNode {
	n := &ConvolverNode{Node: c.newNode("convolver")}
	c.track(&n.Node)
	return n
}

func (c *Context) NewGain() platform.GainNode {
	n := &GainNode{Node: c.newNode("gain"), Value: 1.0}
	c.track(&n.Node)
	return n
}

func (c *Context) NewAnalyser(fftSize int) platform.AnalyserNode {
	a := &AnalyserNode{Node: c.newNode("analyser"), Size: fftSize}
	a.samples = make([]float64, fftSize)
	c.track(&a.Node)
	return a
}

func (c *Context) newNode(kind string) Node {
	if c.FailConnectKind == kind {
		return Node{Kind: kind, ConnectErr: fmt.Errorf("platformtest: connect refused for %s", kind)}
	}
	return Node{Kind: kind}
}

func (c *Context) track(n *Node) {
	c.mu.Lock()
	c.register(n)
	c.mu.Unlock()
}

// register appends without locking; NewCapture already holds the mutex.
func (c *Context) register(n *Node) {
	c.nodes = append(c.nodes, n)
}

// EdgesInto counts edges from any created node into dst. The topology
// invariant tests use it to prove exactly one path reaches the
// destination.
func (c *Context) EdgesInto(dst platform.Node) int {
	c.mu.Lock()
	nodes := append([]*Node(nil), c.nodes...)
	c.mu.Unlock()

	count := 0
	for _, n := range nodes {
		for _, target := range n.Targets() {
			if target == dst {
				count++
			}
		}
	}
	return count
}

// CaptureCount returns how many sources have live capture taps.
func (c *Context) CaptureCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.captures)
}

// Node is the base mock node; it embeds the shared edge tracking.
type Node struct {
	platform.NodeCore
	Kind       string
	ConnectErr error
}

// Connect fails when a connect error is injected, otherwise records the
// edge through the shared core.
func (n *Node) Connect(dst platform.Node) error {
	if n.ConnectErr != nil {
		return n.ConnectErr
	}
	return n.NodeCore.Connect(dst)
}

// CaptureNode remembers which source it taps.
type CaptureNode struct {
	Node
	Src platform.Source
}

// CompressorNode records the last dynamics pushed onto it.
type CompressorNode struct {
	Node
	mu       sync.Mutex
	Dynamics platform.Dynamics
	SetCalls int
}

func (n *CompressorNode) SetDynamics(d platform.Dynamics) {
	n.mu.Lock()
	n.Dynamics = d
	n.SetCalls++
	n.mu.Unlock()
}

// LastDynamics returns the most recently applied dynamics.
func (n *CompressorNode) LastDynamics() platform.Dynamics {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Dynamics
}

// BandFilterNode records its band parameters.
type BandFilterNode struct {
	Node
	mu     sync.Mutex
	FreqHz float64
	GainDB float64
}

func (n *BandFilterNode) SetBand(freqHz, gainDB float64) {
	n.mu.Lock()
	n.FreqHz = freqHz
	n.GainDB = gainDB
	n.mu.Unlock()
}

// Band returns the recorded frequency and gain.
func (n *BandFilterNode) Band() (freqHz, gainDB float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.FreqHz, n.GainDB
}

// ConvolverNode records the impulse response set on it.
type ConvolverNode struct {
	Node
	mu       sync.Mutex
	Impulse  []float64
	SetCalls int
}

func (n *ConvolverNode) SetImpulse(ir []float64) {
	n.mu.Lock()
	n.Impulse = append([]float64(nil), ir...)
	n.SetCalls++
	n.mu.Unlock()
}

// ImpulseLen returns the length of the recorded impulse.
func (n *ConvolverNode) ImpulseLen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Impulse)
}

// GainNode records its gain value.
type GainNode struct {
	Node
	mu    sync.Mutex
	Value float64
}

func (n *GainNode) SetGain(v float64) {
	n.mu.Lock()
	n.Value = v
	n.mu.Unlock()
}

// Gain returns the recorded gain.
func (n *GainNode) Gain() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Value
}

// AnalyserNode serves a settable sample block.
type AnalyserNode struct {
	Node
	Size    int
	mu      sync.Mutex
	samples []float64
	ReadErr error
}

func (n *AnalyserNode) FFTSize() int { return n.Size }

func (n *AnalyserNode) Samples(dst []float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ReadErr != nil {
		return n.ReadErr
	}
	if len(dst) != len(n.samples) {
		return fmt.Errorf("platformtest: dst length %d, want %d", len(dst), len(n.samples))
	}
	copy(dst, n.samples)
	return nil
}

// FillSine loads a sine wave into the analyser's sample block.
func (n *AnalyserNode) FillSine(freq, sampleRate, amplitude float64) {
	n.mu.Lock()
	for i := range n.samples {
		t := float64(i) / sampleRate
		n.samples[i] = amplitude * math.Sin(2*math.Pi*freq*t)
	}
	n.mu.Unlock()
}

// FillConstant loads a constant value into the analyser's sample block.
func (n *AnalyserNode) FillConstant(v float64) {
	n.mu.Lock()
	for i := range n.samples {
		n.samples[i] = v
	}
	n.mu.Unlock()
}

// Transport is a mock playback transport recording the choreography the
// state machine performs around a toggle.
type Transport struct {
	mu       sync.Mutex
	playing  bool
	position time.Duration
	Pauses   int
	Resumes  int
	Seeks    []time.Duration
}

// NewTransport creates a transport in the playing state at position zero.
func NewTransport(playing bool) *Transport {
	return &Transport{playing: playing}
}

func (t *Transport) Pause() {
	t.mu.Lock()
	t.playing = false
	t.Pauses++
	t.mu.Unlock()
}

func (t *Transport) Resume() {
	t.mu.Lock()
	t.playing = true
	t.Resumes++
	t.mu.Unlock()
}

func (t *Transport) Seek(pos time.Duration) {
	t.mu.Lock()
	t.position = pos
	t.Seeks = append(t.Seeks, pos)
	t.mu.Unlock()
}

func (t *Transport) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

func (t *Transport) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}
