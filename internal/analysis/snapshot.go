// SPDX-License-Identifier: MIT

// Package analysis samples the graph's analysis tap on a fixed cadence
// and classifies the signal quality of the enhanced output. It is
// strictly read-only with respect to the graph: it never touches
// topology or parameters.
package analysis

// Quality is the classification of one analysis snapshot.
type Quality string

const (
	QualityLow      Quality = "low"
	QualityMedium   Quality = "medium"
	QualityHigh     Quality = "high"
	QualityOriginal Quality = "original"
)

// Classification thresholds. Bins at or below the noise floor are
// ignored when computing dynamic range so near-zero bins cannot fake a
// huge spread. The noise estimate is the mean magnitude of the lowest
// frequency slice of the spectrum.
const (
	noiseFloor        = 0.01
	noiseSliceDivisor = 16

	highDynamicRange   = 0.6
	highNoiseCeiling   = 0.1
	mediumDynamicRange = 0.4
	mediumNoiseCeiling = 0.2
)

// Snapshot is one analysis result. Spectrum holds magnitudes normalized
// to [0,1]. Snapshots are ephemeral: recomputed every tick, never
// persisted.
type Snapshot struct {
	Spectrum     []float64 `json:"spectrum"`
	DynamicRange float64   `json:"dynamicRange"`
	NoiseLevel   float64   `json:"noiseLevel"`
	SampleRate   float64   `json:"sampleRate"`
	Quality      Quality   `json:"quality"`
}

// Classify derives dynamic range, noise level and a quality rating from
// a normalized spectrum. It is a pure function; the loop calls it each
// tick and tests call it directly.
func Classify(spectrum []float64) (dynamicRange, noiseLevel float64, q Quality) {
	if len(spectrum) == 0 {
		return 0, 0, QualityLow
	}

	minMag, maxMag := 1.0, 0.0
	seen := false
	for _, m := range spectrum {
		if m <= noiseFloor {
			continue
		}
		seen = true
		if m < minMag {
			minMag = m
		}
		if m > maxMag {
			maxMag = m
		}
	}
	if seen {
		dynamicRange = maxMag - minMag
	}

	slice := len(spectrum) / noiseSliceDivisor
	if slice < 1 {
		slice = 1
	}
	var sum float64
	for _, m := range spectrum[:slice] {
		sum += m
	}
	noiseLevel = sum / float64(slice)

	switch {
	case dynamicRange > highDynamicRange && noiseLevel < highNoiseCeiling:
		q = QualityHigh
	case dynamicRange > mediumDynamicRange && noiseLevel < mediumNoiseCeiling:
		q = QualityMedium
	default:
		q = QualityLow
	}
	return dynamicRange, noiseLevel, q
}
