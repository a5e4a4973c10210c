// SPDX-License-Identifier: MIT

// Package utils holds small test helpers shared across package suites:
// a recording transport and deterministic signal generators.
package utils

import "math"

// MockTransport implements the Transport interface for testing. It
// stores the last payload and counts sends instead of transmitting.
type MockTransport struct {
	LastData any
	Sends    int
	SendErr  error
}

// Send stores the payload for later inspection.
func (m *MockTransport) Send(data any) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.LastData = data
	m.Sends++
	return nil
}

// Close implements the Transport interface; nothing to release.
func (m *MockTransport) Close() error {
	return nil
}

// GenerateComplexWave builds a 440 Hz fundamental with two harmonics,
// normalized to stay inside [-1, 1].
func GenerateComplexWave(size int, sampleRate float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		buffer[i] = math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
	}
	return buffer
}

// GenerateSineWave builds a pure tone at the given frequency with 0.9
// amplitude.
func GenerateSineWave(size int, sampleRate, frequency float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = math.Sin(2*math.Pi*frequency*t) * 0.9
	}
	return buffer
}

// FindPeakBin returns the index of the largest magnitude within
// [startBin, endBin]. Out-of-range bounds clamp; an empty slice yields 0.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
