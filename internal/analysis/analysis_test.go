// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"
	"time"

	"enhancer/internal/platform/platformtest"
	"enhancer/pkg/utils"
)

const (
	testFFTSize    = 1024
	testSampleRate = 48000.0
)

func newTestLoop(t *testing.T, bypassed func() bool) (*Loop, *platformtest.AnalyserNode) {
	t.Helper()
	ctx := platformtest.NewContext()
	tap := ctx.NewAnalyser(testFFTSize).(*platformtest.AnalyserNode)
	loop, err := NewLoop(tap, testSampleRate, DefaultInterval, nil, bypassed)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	return loop, tap
}

func TestNewLoopValidation(t *testing.T) {
	ctx := platformtest.NewContext()

	if _, err := NewLoop(nil, testSampleRate, DefaultInterval, nil, nil); err == nil {
		t.Error("expected error for nil tap")
	}

	badTap := ctx.NewAnalyser(1000).(*platformtest.AnalyserNode) // not a power of 2
	if _, err := NewLoop(badTap, testSampleRate, DefaultInterval, nil, nil); err == nil {
		t.Error("expected error for non-power-of-2 fft size")
	}

	tap := ctx.NewAnalyser(testFFTSize).(*platformtest.AnalyserNode)
	if _, err := NewLoop(tap, 0, DefaultInterval, nil, nil); err == nil {
		t.Error("expected error for zero sample rate")
	}

	// Invalid interval falls back to the default rather than failing.
	loop, err := NewLoop(tap, testSampleRate, -time.Second, nil, nil)
	if err != nil {
		t.Fatalf("NewLoop with bad interval: %v", err)
	}
	if loop.interval != DefaultInterval {
		t.Errorf("interval = %s, expected default %s", loop.interval, DefaultInterval)
	}
}

func TestClassifyThresholds(t *testing.T) {
	tests := []struct {
		desc     string
		spectrum []float64
		expected Quality
	}{
		{
			"wide range, quiet lows",
			buildSpectrum(1024, 0.02, 0.9, 0.05),
			QualityHigh,
		},
		{
			"moderate range, some noise",
			buildSpectrum(1024, 0.15, 0.65, 0.15),
			QualityMedium,
		},
		{
			"flat spectrum",
			buildSpectrum(1024, 0.5, 0.55, 0.5),
			QualityLow,
		},
		{
			"wide range but noisy lows",
			buildSpectrum(1024, 0.3, 0.95, 0.25),
			QualityLow,
		},
		{
			"empty spectrum",
			nil,
			QualityLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, _, q := Classify(tt.spectrum)
			if q != tt.expected {
				dr, nl, _ := Classify(tt.spectrum)
				t.Errorf("quality = %s (range %.3f, noise %.3f), expected %s", q, dr, nl, tt.expected)
			}
		})
	}
}

func TestClassifyIgnoresNearZeroBins(t *testing.T) {
	// All bins below the noise floor: dynamic range must be zero, not
	// the raw max-min of the tiny values.
	spectrum := make([]float64, 512)
	for i := range spectrum {
		spectrum[i] = 0.005
	}
	dr, _, q := Classify(spectrum)
	if dr != 0 {
		t.Errorf("dynamic range = %f over sub-floor bins, expected 0", dr)
	}
	if q != QualityLow {
		t.Errorf("quality = %s, expected low", q)
	}
}

func TestSnapshotFromSineTap(t *testing.T) {
	loop, tap := newTestLoop(t, nil)
	tap.FillSine(1000, testSampleRate, 0.8)

	snap := loop.TickOnce()

	if snap.Quality == QualityOriginal {
		t.Error("enhanced-path snapshot classified as original")
	}
	if len(snap.Spectrum) != testFFTSize/2+1 {
		t.Fatalf("spectrum bins = %d, expected %d", len(snap.Spectrum), testFFTSize/2+1)
	}
	for i, m := range snap.Spectrum {
		if m < 0 || m > 1 {
			t.Fatalf("bin %d = %f outside [0,1]", i, m)
		}
	}

	// The 1 kHz peak must land in the right bin.
	binWidth := testSampleRate / testFFTSize
	expectedBin := int(1000 / binWidth)
	peak := utils.FindPeakBin(snap.Spectrum, 0, len(snap.Spectrum)-1)
	if peak < expectedBin-2 || peak > expectedBin+2 {
		t.Errorf("peak bin = %d, expected near %d", peak, expectedBin)
	}
	if snap.SampleRate != testSampleRate {
		t.Errorf("sample rate = %f, expected %f", snap.SampleRate, testSampleRate)
	}
}

func TestBypassForcesOriginal(t *testing.T) {
	loop, tap := newTestLoop(t, func() bool { return true })
	tap.FillSine(440, testSampleRate, 0.8)

	snap := loop.TickOnce()
	if snap.Quality != QualityOriginal {
		t.Errorf("quality = %s on bypass, expected original", snap.Quality)
	}
	if len(snap.Spectrum) != 0 {
		t.Errorf("bypass snapshot carries %d spectrum bins, expected none", len(snap.Spectrum))
	}
}

func TestSnapshotPublishedToSink(t *testing.T) {
	ctx := platformtest.NewContext()
	tap := ctx.NewAnalyser(testFFTSize).(*platformtest.AnalyserNode)
	tap.FillSine(440, testSampleRate, 0.5)

	sink := &utils.MockTransport{}
	loop, err := NewLoop(tap, testSampleRate, DefaultInterval, sink, nil)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	loop.TickOnce()
	snap, ok := sink.LastData.(Snapshot)
	if !ok {
		t.Fatalf("sink received %T, expected Snapshot", sink.LastData)
	}
	if snap.Quality == "" {
		t.Error("published snapshot has no quality")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	ctx := platformtest.NewContext()
	tap := ctx.NewAnalyser(testFFTSize).(*platformtest.AnalyserNode)
	tap.FillSine(440, testSampleRate, 0.5)

	loop, err := NewLoop(tap, testSampleRate, 5*time.Millisecond, nil, nil)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	loop.Start()
	if !loop.Running() {
		t.Fatal("loop not running after Start")
	}
	loop.Start() // second Start is a no-op

	deadline := time.After(time.Second)
	for {
		if _, ok := loop.Latest(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no snapshot produced within a second")
		case <-time.After(5 * time.Millisecond):
		}
	}

	loop.Stop()
	if loop.Running() {
		t.Fatal("loop still running after Stop")
	}
	loop.Stop() // second Stop is a no-op

	// No tick after Stop: the latest snapshot stays put.
	before, _ := loop.Latest()
	tap.FillConstant(0)
	time.Sleep(20 * time.Millisecond)
	after, _ := loop.Latest()
	if len(before.Spectrum) != len(after.Spectrum) {
		t.Error("snapshot changed after Stop")
	}
}

func TestTickAllocsBounded(t *testing.T) {
	loop, tap := newTestLoop(t, nil)
	tap.FillSine(440, testSampleRate, 0.5)

	// One spectrum copy per tick is the only expected allocation source.
	allocs := testing.AllocsPerRun(50, func() {
		loop.tick()
	})
	if allocs > 4 {
		t.Errorf("tick allocates %.1f objects per run, expected <= 4", allocs)
	}
}

func buildSpectrum(bins int, base, peak, lowBand float64) []float64 {
	s := make([]float64, bins)
	slice := bins / noiseSliceDivisor
	for i := range s {
		switch {
		case i < slice:
			s[i] = lowBand
		case i == bins/2:
			s[i] = peak
		default:
			s[i] = base
		}
	}
	return s
}
