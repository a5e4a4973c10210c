// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"sync"

	"enhancer/internal/platform"
)

// maxConvolverTaps bounds the direct-form convolution cost. Longer
// impulses are truncated; the tail below -60 dB is inaudible anyway.
const maxConvolverTaps = 4096

// blockSink is the push side of the software graph: a node receives a
// block, transforms it and forwards the result along its edges. All
// accept calls happen on the stream callback goroutine.
type blockSink interface {
	accept(block []float64)
}

// dspNode is the shared base of all software nodes.
type dspNode struct {
	platform.NodeCore
	kind string
}

// forward pushes a processed block to every connected target.
func (n *dspNode) forward(block []float64) {
	for _, t := range n.Targets() {
		if sink, ok := t.(blockSink); ok {
			sink.accept(block)
		}
	}
}

// captureNode is the entry point of the graph, fed by the input stream.
type captureNode struct {
	dspNode
	src platform.Source
}

func (n *captureNode) accept(block []float64) {
	n.forward(block)
}

// compressorNode is a feed-forward compressor with a peak envelope
// follower. Parameter changes take effect on the next block.
type compressorNode struct {
	dspNode
	mu           sync.Mutex
	sampleRate   float64
	thresholdLin float64
	slope        float64 // 1 - 1/ratio
	attackCoef   float64
	releaseCoef  float64
	env          float64
	out          []float64
}

func (n *compressorNode) SetDynamics(d platform.Dynamics) {
	ratio := d.Ratio
	if ratio < 1 {
		ratio = 1
	}
	n.mu.Lock()
	n.thresholdLin = math.Pow(10, d.ThresholdDB/20)
	n.slope = 1 - 1/ratio
	n.attackCoef = envCoef(d.Attack.Seconds(), n.sampleRate)
	n.releaseCoef = envCoef(d.Release.Seconds(), n.sampleRate)
	n.mu.Unlock()
}

// envCoef converts a time constant to a one-pole smoothing coefficient.
func envCoef(seconds, sampleRate float64) float64 {
	if seconds <= 0 || sampleRate <= 0 {
		return 0
	}
	return math.Exp(-1 / (seconds * sampleRate))
}

func (n *compressorNode) accept(block []float64) {
	n.mu.Lock()
	if cap(n.out) < len(block) {
		n.out = make([]float64, len(block))
	}
	n.out = n.out[:len(block)]

	for i, x := range block {
		a := math.Abs(x)
		if a > n.env {
			n.env = n.attackCoef*n.env + (1-n.attackCoef)*a
		} else {
			n.env = n.releaseCoef*n.env + (1-n.releaseCoef)*a
		}

		gain := 1.0
		if n.thresholdLin > 0 && n.env > n.thresholdLin {
			gain = math.Pow(n.env/n.thresholdLin, -n.slope)
		}
		n.out[i] = x * gain
	}
	out := n.out
	n.mu.Unlock()

	n.forward(out)
}

// bandNode is a peaking EQ biquad. SetBand recomputes the coefficients
// from the RBJ cookbook with a fixed octave-band Q.
type bandNode struct {
	dspNode
	mu         sync.Mutex
	sampleRate float64
	b0, b1, b2 float64
	a1, a2     float64
	x1, x2     float64
	y1, y2     float64
	out        []float64
}

const bandQ = math.Sqrt2

func (n *bandNode) SetBand(freqHz, gainDB float64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if freqHz <= 0 || freqHz >= n.sampleRate/2 {
		// Band outside the representable range: pass through.
		n.b0, n.b1, n.b2, n.a1, n.a2 = 1, 0, 0, 0, 0
		return
	}

	amp := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freqHz / n.sampleRate
	alpha := math.Sin(w0) / (2 * bandQ)
	cosW0 := math.Cos(w0)

	a0 := 1 + alpha/amp
	n.b0 = (1 + alpha*amp) / a0
	n.b1 = -2 * cosW0 / a0
	n.b2 = (1 - alpha*amp) / a0
	n.a1 = -2 * cosW0 / a0
	n.a2 = (1 - alpha/amp) / a0
}

func (n *bandNode) accept(block []float64) {
	n.mu.Lock()
	if cap(n.out) < len(block) {
		n.out = make([]float64, len(block))
	}
	n.out = n.out[:len(block)]

	for i, x := range block {
		y := n.b0*x + n.b1*n.x1 + n.b2*n.x2 - n.a1*n.y1 - n.a2*n.y2
		n.x2, n.x1 = n.x1, x
		n.y2, n.y1 = n.y1, y
		n.out[i] = y
	}
	out := n.out
	n.mu.Unlock()

	n.forward(out)
}

// gainNode scales the signal. Downstream summation makes it double as
// the mix point: every block it forwards adds into the destination.
type gainNode struct {
	dspNode
	mu   sync.Mutex
	gain float64
	out  []float64
}

func (n *gainNode) SetGain(v float64) {
	n.mu.Lock()
	n.gain = v
	n.mu.Unlock()
}

func (n *gainNode) accept(block []float64) {
	n.mu.Lock()
	if cap(n.out) < len(block) {
		n.out = make([]float64, len(block))
	}
	n.out = n.out[:len(block)]
	for i, x := range block {
		n.out[i] = x * n.gain
	}
	out := n.out
	n.mu.Unlock()

	n.forward(out)
}

// convolverNode convolves the signal with its impulse response using a
// direct-form FIR over a sample history ring.
type convolverNode struct {
	dspNode
	mu      sync.Mutex
	ir      []float64
	history []float64
	pos     int
	out     []float64
}

func (n *convolverNode) SetImpulse(ir []float64) {
	if len(ir) > maxConvolverTaps {
		ir = ir[:maxConvolverTaps]
	}
	n.mu.Lock()
	n.ir = append(n.ir[:0], ir...)
	n.history = make([]float64, len(n.ir))
	n.pos = 0
	n.mu.Unlock()
}

func (n *convolverNode) accept(block []float64) {
	n.mu.Lock()
	if len(n.ir) == 0 {
		n.mu.Unlock()
		n.forward(block)
		return
	}
	if cap(n.out) < len(block) {
		n.out = make([]float64, len(block))
	}
	n.out = n.out[:len(block)]

	taps := len(n.ir)
	for i, x := range block {
		n.history[n.pos] = x
		acc := 0.0
		idx := n.pos
		for k := 0; k < taps; k++ {
			acc += n.ir[k] * n.history[idx]
			idx--
			if idx < 0 {
				idx = taps - 1
			}
		}
		n.out[i] = acc
		n.pos++
		if n.pos == taps {
			n.pos = 0
		}
	}
	out := n.out
	n.mu.Unlock()

	n.forward(out)
}

// analyserNode keeps a ring of the most recent samples for the analysis
// loop to read on its own cadence.
type analyserNode struct {
	dspNode
	size int
	mu   sync.Mutex
	ring []float64
	pos  int
}

func (n *analyserNode) FFTSize() int { return n.size }

func (n *analyserNode) accept(block []float64) {
	n.mu.Lock()
	for _, x := range block {
		n.ring[n.pos] = x
		n.pos++
		if n.pos == n.size {
			n.pos = 0
		}
	}
	n.mu.Unlock()
	// Terminal for audio: the analyser only observes.
}

// Samples copies the newest window into dst in time order.
func (n *analyserNode) Samples(dst []float64) error {
	if len(dst) != n.size {
		return fmt.Errorf("audio: analyser window is %d samples, dst is %d", n.size, len(dst))
	}
	n.mu.Lock()
	head := copy(dst, n.ring[n.pos:])
	copy(dst[head:], n.ring[:n.pos])
	n.mu.Unlock()
	return nil
}

// destNode terminates the graph. Incoming blocks within one stream
// callback sum, which is what lets the dry and wet legs mix.
type destNode struct {
	dspNode
	mu   sync.Mutex
	sum  []float64
	peak float64
}

func (n *destNode) accept(block []float64) {
	n.mu.Lock()
	if cap(n.sum) < len(block) {
		old := n.sum
		n.sum = make([]float64, len(block))
		copy(n.sum, old)
	}
	n.sum = n.sum[:len(block)]
	for i, x := range block {
		n.sum[i] += x
	}
	n.mu.Unlock()
}

// beginCycle clears the accumulator before a new stream callback.
func (n *destNode) beginCycle(size int) {
	n.mu.Lock()
	if cap(n.sum) < size {
		n.sum = make([]float64, size)
	}
	n.sum = n.sum[:size]
	for i := range n.sum {
		n.sum[i] = 0
	}
	n.mu.Unlock()
}

// endCycle folds the summed output into the running peak meter.
func (n *destNode) endCycle() {
	n.mu.Lock()
	for _, x := range n.sum {
		if a := math.Abs(x); a > n.peak {
			n.peak = a
		}
	}
	n.mu.Unlock()
}

// Peak returns and resets the output peak since the last read.
func (n *destNode) Peak() float64 {
	n.mu.Lock()
	p := n.peak
	n.peak = 0
	n.mu.Unlock()
	return p
}

// Interface conformance for the software nodes.
var (
	_ platform.Node           = (*captureNode)(nil)
	_ platform.CompressorNode = (*compressorNode)(nil)
	_ platform.BandFilterNode = (*bandNode)(nil)
	_ platform.ConvolverNode  = (*convolverNode)(nil)
	_ platform.GainNode       = (*gainNode)(nil)
	_ platform.AnalyserNode   = (*analyserNode)(nil)
)
