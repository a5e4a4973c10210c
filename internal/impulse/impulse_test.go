// SPDX-License-Identifier: MIT
package impulse

import (
	"math"
	"path/filepath"
	"testing"
	"time"
)

func TestRenderLength(t *testing.T) {
	tests := []struct {
		roomSize   time.Duration
		sampleRate float64
		expected   int
	}{
		{time.Second, 48000, 48000},
		{500 * time.Millisecond, 44100, 22050},
		{0, 48000, 0},
		{-time.Second, 48000, 0},
	}

	for _, tt := range tests {
		ir := Render(tt.roomSize, 0.5, tt.sampleRate)
		if len(ir) != tt.expected {
			t.Errorf("Render(%s, 0.5, %.0f) length = %d, expected %d",
				tt.roomSize, tt.sampleRate, len(ir), tt.expected)
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	a := Render(200*time.Millisecond, 0.4, 48000)
	b := Render(200*time.Millisecond, 0.4, 48000)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("impulse differs at sample %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestRenderDecays(t *testing.T) {
	ir := Render(time.Second, 0.5, 48000)
	if ir[0] != 1 {
		t.Errorf("direct tap = %f, expected 1", ir[0])
	}

	// RMS of the last tenth must be well below the first tenth.
	tenth := len(ir) / 10
	head := rms(ir[1 : 1+tenth])
	tail := rms(ir[len(ir)-tenth:])
	if tail >= head*0.1 {
		t.Errorf("tail rms %f not decayed relative to head rms %f", tail, head)
	}
}

func TestRenderBounded(t *testing.T) {
	for _, damping := range []float64{-1, 0, 0.5, 1, 2} {
		ir := Render(100*time.Millisecond, damping, 48000)
		for i, v := range ir {
			if math.Abs(v) > 1 {
				t.Fatalf("damping %.1f: sample %d = %f exceeds unity", damping, i, v)
			}
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ir.wav")
	ir := Render(100*time.Millisecond, 0.5, 48000)

	if err := WriteWAV(path, ir, 48000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}

	got, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if rate != 48000 {
		t.Errorf("sample rate = %d, expected 48000", rate)
	}
	if len(got) != len(ir) {
		t.Fatalf("length = %d, expected %d", len(got), len(ir))
	}

	// 16-bit quantization bounds the round-trip error.
	for i := range ir {
		if math.Abs(got[i]-ir[i]) > 1.0/16384 {
			t.Fatalf("sample %d drifted: wrote %f, read %f", i, ir[i], got[i])
		}
	}
}

func TestReadWAVMissing(t *testing.T) {
	if _, _, err := ReadWAV(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Error("expected error for missing file")
	}
}

func rms(samples []float64) float64 {
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
