// SPDX-License-Identifier: MIT
/*
Package platform defines the abstraction over the host audio engine that
the enhancer wires against. A Context owns the processing lifecycle and
hands out nodes; nodes only model topology (connections) and parameters.
The actual signal processing is the host's business.

Two implementations exist: the PortAudio-backed one in internal/audio and
the in-memory one in platformtest used by the test suites.
*/
package platform

import (
	"context"
	"errors"
	"time"
)

// State describes the lifecycle of a processing context.
type State int

const (
	// StateSuspended means the context exists but the host has not yet
	// allowed processing to run (typically pending a user gesture).
	StateSuspended State = iota
	// StateRunning means the context is processing audio.
	StateRunning
	// StateClosed means the context has been torn down for good.
	StateClosed
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sentinel errors shared by all Context implementations.
var (
	// ErrSourceCaptured is returned when a source already has an exclusive
	// capture tap owned by someone else. This is fatal for the source.
	ErrSourceCaptured = errors.New("platform: source already captured")
	// ErrContextClosed is returned for operations on a closed context.
	ErrContextClosed = errors.New("platform: context closed")
	// ErrContextUnavailable is returned when the host denies audio
	// processing entirely. Recoverable only by creating a new context.
	ErrContextUnavailable = errors.New("platform: processing context unavailable")
)

// Source is an opaque handle to the host's playable media element.
type Source interface {
	ID() string
	SampleRate() float64
}

// Node is a single processing node. Connect adds an outgoing edge to dst;
// Disconnect tears down every outgoing edge of this node. Nodes never own
// their inputs, only their outputs, which keeps teardown single-sided.
type Node interface {
	Connect(dst Node) error
	Disconnect()
	Outputs() int
}

// Dynamics bundles the compressor parameters pushed in one call so the
// host can ramp them together.
type Dynamics struct {
	ThresholdDB float64
	Ratio       float64
	Attack      time.Duration
	Release     time.Duration
}

// CompressorNode is a dynamics compressor stage.
type CompressorNode interface {
	Node
	SetDynamics(d Dynamics)
}

// BandFilterNode is a single peaking equalizer band. Gain is in decibels.
type BandFilterNode interface {
	Node
	SetBand(freqHz, gainDB float64)
}

// ConvolverNode is a convolution reverb stage. SetImpulse replaces the
// impulse response; an empty slice clears it.
type ConvolverNode interface {
	Node
	SetImpulse(ir []float64)
}

// GainNode is a scalar gain stage (linear, 1.0 = unity).
type GainNode interface {
	Node
	SetGain(v float64)
}

// AnalyserNode is a read-only tap exposing the most recent block of
// time-domain samples, sized to its FFT window.
type AnalyserNode interface {
	Node
	FFTSize() int
	Samples(dst []float64) error
}

// Context is the host processing context. A fresh context starts
// suspended; Resume may only succeed once the host permits processing.
type Context interface {
	State() State
	Resume(ctx context.Context) error
	Close() error
	SampleRate() float64

	Destination() Node
	NewCapture(src Source) (Node, error)
	NewCompressor() CompressorNode
	NewBandFilter() BandFilterNode
	NewConvolver() ConvolverNode
	NewGain() GainNode
	NewAnalyser(fftSize int) AnalyserNode
}
