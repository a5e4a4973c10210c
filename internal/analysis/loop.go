// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	applog "enhancer/internal/log"
	"enhancer/internal/transport"
	"enhancer/pkg/bitint"
)

// DefaultInterval is the analysis cadence when the config does not
// override it.
const DefaultInterval = 500 * time.Millisecond

// Tap is the read side of the graph's analysis node. Samples fills dst
// with the most recent time-domain block, sized to FFTSize.
type Tap interface {
	FFTSize() int
	Samples(dst []float64) error
}

// Pre-allocated buffers for the per-tick FFT.
type loopWorkspace struct {
	input     []float64
	fftOutput []complex128
	magnitude []float64
	window    []float64
}

// Loop periodically reads the analysis tap, computes a normalized
// spectrum and publishes a classified Snapshot. Lifecycle is
// Start/Stop; a stopped loop schedules no further ticks.
type Loop struct {
	tap        Tap
	sampleRate float64
	interval   time.Duration
	sink       transport.Transport
	bypassed   func() bool

	fftCalculator *fourier.FFT
	fftSize       int
	workspace     loopWorkspace

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex

	latestMu sync.RWMutex
	latest   Snapshot
	haveTick bool
}

// NewLoop creates a loop over the given tap. sink may be nil when no
// observer transport is wired; bypassed reports whether the graph is
// currently on the bypass path, which forces the "original" quality.
func NewLoop(tap Tap, sampleRate float64, interval time.Duration, sink transport.Transport, bypassed func() bool) (*Loop, error) {
	if tap == nil {
		return nil, fmt.Errorf("analysis: tap cannot be nil")
	}
	fftSize := tap.FFTSize()
	if !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("analysis: fft size must be a power of 2, got %d", fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("analysis: sample rate must be positive, got %f", sampleRate)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if bypassed == nil {
		bypassed = func() bool { return false }
	}

	windowCoeffs := make([]float64, fftSize)
	for i := range windowCoeffs {
		windowCoeffs[i] = 1.0
	}
	window.Hann(windowCoeffs)

	magnitudeSize := fftSize/2 + 1

	return &Loop{
		tap:           tap,
		sampleRate:    sampleRate,
		interval:      interval,
		sink:          sink,
		bypassed:      bypassed,
		fftCalculator: fourier.NewFFT(fftSize),
		fftSize:       fftSize,
		workspace: loopWorkspace{
			input:     make([]float64, fftSize),
			fftOutput: make([]complex128, magnitudeSize),
			magnitude: make([]float64, magnitudeSize),
			window:    windowCoeffs,
		},
	}, nil
}

// Start begins ticking. Safe to call more than once; a running loop
// ignores subsequent starts.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.ticker != nil {
		l.mu.Unlock()
		applog.Warnf("Analysis: Start called but loop already running")
		return
	}

	l.ticker = time.NewTicker(l.interval)
	l.doneChan = make(chan struct{})
	l.stopOnce = sync.Once{}

	ticker := l.ticker
	doneChan := l.doneChan
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		applog.Debugf("Analysis: loop started (interval %s)", l.interval)
		for {
			select {
			case <-ticker.C:
				l.tick()
			case <-doneChan:
				applog.Debugf("Analysis: loop received stop signal")
				return
			}
		}
	}()
}

// Stop terminates the loop and waits for the goroutine to exit. No tick
// runs after Stop returns. Safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.ticker == nil {
		l.mu.Unlock()
		return
	}
	l.stopOnce.Do(func() {
		close(l.doneChan)
		l.ticker.Stop()
		l.ticker = nil
	})
	l.mu.Unlock()

	l.wg.Wait()
}

// Running reports whether the loop is currently ticking.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticker != nil
}

// Latest returns the most recent snapshot and whether one exists yet.
func (l *Loop) Latest() (Snapshot, bool) {
	l.latestMu.RLock()
	defer l.latestMu.RUnlock()
	return l.latest, l.haveTick
}

// tick computes one snapshot. Exported behavior is covered through
// TickOnce in tests; the goroutine calls this directly.
func (l *Loop) tick() {
	snap := l.computeSnapshot()

	l.latestMu.Lock()
	l.latest = snap
	l.haveTick = true
	l.latestMu.Unlock()

	if l.sink != nil {
		if err := l.sink.Send(snap); err != nil {
			applog.Errorf("Analysis: failed to publish snapshot: %v", err)
		}
	}
}

// TickOnce runs a single analysis pass synchronously. Tests use it to
// avoid timing dependence; the running loop does the same work on its
// own cadence.
func (l *Loop) TickOnce() Snapshot {
	l.tick()
	snap, _ := l.Latest()
	return snap
}

func (l *Loop) computeSnapshot() Snapshot {
	if l.bypassed() {
		return Snapshot{SampleRate: l.sampleRate, Quality: QualityOriginal}
	}

	if err := l.tap.Samples(l.workspace.input); err != nil {
		applog.Warnf("Analysis: tap read failed: %v", err)
		return Snapshot{SampleRate: l.sampleRate, Quality: QualityLow}
	}

	for i := range l.workspace.input {
		l.workspace.input[i] *= l.workspace.window[i]
	}
	l.fftCalculator.Coefficients(l.workspace.fftOutput, l.workspace.input)

	maxMag := 0.0
	for i, c := range l.workspace.fftOutput {
		m := cmplx.Abs(c)
		l.workspace.magnitude[i] = m
		if m > maxMag {
			maxMag = m
		}
	}

	spectrum := make([]float64, len(l.workspace.magnitude))
	if maxMag > 0 {
		for i, m := range l.workspace.magnitude {
			spectrum[i] = m / maxMag
		}
	}

	dynamicRange, noiseLevel, quality := Classify(spectrum)
	return Snapshot{
		Spectrum:     spectrum,
		DynamicRange: dynamicRange,
		NoiseLevel:   noiseLevel,
		SampleRate:   l.sampleRate,
		Quality:      quality,
	}
}
