// SPDX-License-Identifier: MIT

// Package impulse builds and stores convolution reverb impulse responses.
// The synthetic impulse is exponentially decaying noise shaped by a
// one-pole damping filter; measured responses can be loaded from WAV.
package impulse

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// renderSeed keeps synthetic impulses reproducible: rebuilding with the
// same parameters yields the same response, so rewiring never changes
// the reverb character mid-session.
const renderSeed = 0x5eed

// Render generates a synthetic impulse response. roomSize sets the tail
// length, damping in [0,1] controls high-frequency rolloff (0 = bright,
// 1 = dark), sampleRate is in Hz.
func Render(roomSize time.Duration, damping float64, sampleRate float64) []float64 {
	length := int(roomSize.Seconds() * sampleRate)
	if length <= 0 {
		return nil
	}
	if damping < 0 {
		damping = 0
	}
	if damping > 1 {
		damping = 1
	}

	rng := rand.New(rand.NewSource(renderSeed))
	ir := make([]float64, length)

	// Decay constant chosen so the tail falls to -60 dB at the end of
	// the room; the one-pole lowpass applies the damping.
	decay := math.Log(1000) / float64(length)
	alpha := 1 - 0.9*damping
	var lp float64
	for i := range ir {
		noise := 2*rng.Float64() - 1
		lp += alpha * (noise - lp)
		ir[i] = lp * math.Exp(-decay*float64(i))
	}

	// Leading unit tap keeps the direct sound aligned.
	ir[0] = 1
	return ir
}

// WriteWAV renders the impulse response to a mono 16-bit WAV file,
// mainly for inspecting a profile's reverb outside the running engine.
func WriteWAV(path string, ir []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("impulse: create %s: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   make([]int, len(ir)),
	}
	for i, v := range ir {
		if v > 1 {
			v = 1
		}
		if v < -1 {
			v = -1
		}
		buf.Data[i] = int(v * math.MaxInt16)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("impulse: write %s: %w", path, err)
	}
	return enc.Close()
}

// ReadWAV loads a measured impulse response from a WAV file. Multi-channel
// files are mixed down to mono. Returns the samples normalized to [-1,1]
// and the file's sample rate.
func ReadWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("impulse: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("impulse: decode %s: %w", path, err)
	}
	if buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("impulse: %s contains no audio", path)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	frames := len(buf.Data) / channels

	scale := 1.0 / float64(int(1)<<(dec.BitDepth-1))
	ir := make([]float64, frames)
	for frame := 0; frame < frames; frame++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[frame*channels+ch])
		}
		ir[frame] = sum / float64(channels) * scale
	}
	return ir, buf.Format.SampleRate, nil
}
