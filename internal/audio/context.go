// SPDX-License-Identifier: MIT
/*
Package audio implements the platform processing context on top of
PortAudio. The node graph is software DSP running inside the stream
callback:
- Lock-free audio capture feeding the graph block by block
- Pre-allocated buffers to avoid GC in the hot path
- Locks OS thread during audio processing

The context starts suspended, mirroring host autoplay policy: Resume
opens and starts the input stream, nothing flows before that.
*/
package audio

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"enhancer/internal/config"
	applog "enhancer/internal/log"
	"enhancer/internal/platform"
)

// DeviceSource is a live input device acting as the media source.
type DeviceSource struct {
	DeviceID int
	Name     string
	Rate     float64
}

func (s *DeviceSource) ID() string          { return fmt.Sprintf("device-%d:%s", s.DeviceID, s.Name) }
func (s *DeviceSource) SampleRate() float64 { return s.Rate }

// NewDeviceSource resolves the configured input device into a source.
func NewDeviceSource(cfg config.AudioConfig) (*DeviceSource, error) {
	info, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}
	return &DeviceSource{
		DeviceID: cfg.InputDevice,
		Name:     info.Name,
		Rate:     cfg.SampleRate,
	}, nil
}

// Context is the PortAudio-backed platform.Context. One stream feeds
// all capture taps; the graph runs in the stream callback.
type Context struct {
	mu    sync.Mutex
	state platform.State
	cfg   config.AudioConfig

	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	stream       *portaudio.Stream

	dest     *destNode
	captures map[string]*captureNode
	feeds    []*captureNode // snapshot for the callback, rebuilt on capture changes

	// Pre-allocated conversion buffer; the callback writes the first
	// channel of each frame into it.
	monoInput []float64
	inputPeak float64
}

// NewContext creates a suspended context for the configured device.
// PortAudio must be initialized by the caller.
func NewContext(cfg config.AudioConfig) (*Context, error) {
	inputDevice, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, fmt.Errorf("audio: resolve input device: %w", err)
	}

	c := &Context{
		state:       platform.StateSuspended,
		cfg:         cfg,
		inputDevice: inputDevice,
		dest:        &destNode{dspNode: dspNode{kind: "destination"}},
		captures:    make(map[string]*captureNode),
		monoInput:   make([]float64, cfg.FramesPerBuffer),
	}

	if cfg.LowLatency {
		c.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		c.inputLatency = inputDevice.DefaultHighInputLatency
	}

	return c, nil
}

func (c *Context) State() platform.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Context) SampleRate() float64 { return c.cfg.SampleRate }

func (c *Context) Destination() platform.Node { return c.dest }

// Resume opens and starts the input stream. Idempotent while running.
func (c *Context) Resume(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case platform.StateClosed:
		return platform.ErrContextClosed
	case platform.StateRunning:
		return nil
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: c.cfg.InputChannels,
			Device:   c.inputDevice,
			Latency:  c.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0,
			Device:   nil,
		},
		FramesPerBuffer: c.cfg.FramesPerBuffer,
		SampleRate:      c.cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, c.processInputStream)
	if err != nil {
		return fmt.Errorf("audio: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("audio: start stream: %w", err)
	}
	c.stream = stream
	c.state = platform.StateRunning
	applog.Infof("Audio: stream running (%s, %.0f Hz, %d frames)",
		c.inputDevice.Name, c.cfg.SampleRate, c.cfg.FramesPerBuffer)
	return nil
}

// Close stops the stream and closes the context for good.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == platform.StateClosed {
		return nil
	}
	c.state = platform.StateClosed

	if c.stream != nil {
		if err := c.stream.Stop(); err != nil {
			applog.Warnf("Audio: stream stop: %v", err)
		}
		if err := c.stream.Close(); err != nil {
			return fmt.Errorf("audio: close stream: %w", err)
		}
		c.stream = nil
	}
	applog.Infof("Audio: context closed")
	return nil
}

// NewCapture creates the single capture tap for a source. A second tap
// for the same source fails, matching host one-tap semantics.
func (c *Context) NewCapture(src platform.Source) (platform.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == platform.StateClosed {
		return nil, platform.ErrContextClosed
	}
	if _, taken := c.captures[src.ID()]; taken {
		return nil, fmt.Errorf("%w: %s", platform.ErrSourceCaptured, src.ID())
	}

	capture := &captureNode{dspNode: dspNode{kind: "capture"}, src: src}
	c.captures[src.ID()] = capture
	c.feeds = append([]*captureNode(nil), c.feeds...)
	c.feeds = append(c.feeds, capture)
	applog.Debugf("Audio: capture tap created for %s", src.ID())
	return capture, nil
}

func (c *Context) NewCompressor() platform.CompressorNode {
	return &compressorNode{
		dspNode:    dspNode{kind: "compressor"},
		sampleRate: c.cfg.SampleRate,
	}
}

func (c *Context) NewBandFilter() platform.BandFilterNode {
	n := &bandNode{
		dspNode:    dspNode{kind: "band"},
		sampleRate: c.cfg.SampleRate,
	}
	n.SetBand(0, 0) // pass-through until parameterized
	return n
}

func (c *Context) NewConvolver() platform.ConvolverNode {
	return &convolverNode{dspNode: dspNode{kind: "convolver"}}
}

func (c *Context) NewGain() platform.GainNode {
	return &gainNode{dspNode: dspNode{kind: "gain"}, gain: 1.0}
}

func (c *Context) NewAnalyser(fftSize int) platform.AnalyserNode {
	return &analyserNode{
		dspNode: dspNode{kind: "analyser"},
		size:    fftSize,
		ring:    make([]float64, fftSize),
	}
}

// InputPeak returns and resets the raw input peak since the last read.
func (c *Context) InputPeak() float64 {
	c.mu.Lock()
	p := c.inputPeak
	c.inputPeak = 0
	c.mu.Unlock()
	return p
}

// OutputPeak returns and resets the processed output peak.
func (c *Context) OutputPeak() float64 {
	return c.dest.Peak()
}

// processInputStream is the core audio callback.
// Performance critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the steady state
func (c *Context) processInputStream(in []int32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c.mu.Lock()
	feeds := c.feeds
	channels := c.cfg.InputChannels

	// First channel of each frame, scaled to [-1, 1]. Branchless
	// abs/max keeps the peak meter out of the branch predictor.
	var maxAmplitude int32
	frames := len(in) / channels
	if frames > len(c.monoInput) {
		frames = len(c.monoInput)
	}
	for i := 0; i < frames; i++ {
		sample := in[i*channels]
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		diff := amplitude - maxAmplitude
		maxAmplitude += (diff & (diff >> 31)) ^ diff
		c.monoInput[i] = float64(sample) / float64(math.MaxInt32)
	}
	block := c.monoInput[:frames]
	if peak := float64(maxAmplitude) / float64(math.MaxInt32); peak > c.inputPeak {
		c.inputPeak = peak
	}
	c.mu.Unlock()

	c.dest.beginCycle(frames)
	for _, capture := range feeds {
		capture.accept(block)
	}
	c.dest.endCycle()
}

var _ platform.Context = (*Context)(nil)
var _ platform.Source = (*DeviceSource)(nil)
