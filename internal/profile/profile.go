// SPDX-License-Identifier: MIT

// Package profile holds the static enhancement profiles: one immutable
// parameter set per level. Selection is a pure lookup with no side
// effects; out-of-range levels clamp to the nearest valid one.
package profile

import (
	"time"

	"enhancer/internal/platform"
)

// Level selects an enhancement profile. Valid levels are 1 through 3.
type Level int

const (
	LevelSubtle     Level = 1
	LevelBalanced   Level = 2
	LevelAggressive Level = 3

	MinLevel = LevelSubtle
	MaxLevel = LevelAggressive
)

// BandCount is the fixed number of equalizer bands in every profile.
const BandCount = 10

// bandFrequencies are the ISO octave band centers, 31.25 Hz to 16 kHz.
var bandFrequencies = [BandCount]float64{
	31.25, 62.5, 125, 250, 500, 1000, 2000, 4000, 8000, 16000,
}

// BandFrequency returns the center frequency in Hz for band index i.
func BandFrequency(i int) float64 {
	if i < 0 || i >= BandCount {
		return 0
	}
	return bandFrequencies[i]
}

// Clamp forces n into the valid level range.
func Clamp(n int) Level {
	if n < int(MinLevel) {
		return MinLevel
	}
	if n > int(MaxLevel) {
		return MaxLevel
	}
	return Level(n)
}

// Reverb describes the convolution reverb stage. RoomSize is the impulse
// tail length; WetLevel is the linear gain of the wet path.
type Reverb struct {
	RoomSize time.Duration
	Damping  float64
	WetLevel float64
}

// Profile is one immutable enhancement parameter set. Band gains are in
// decibels; MakeupGain is linear.
type Profile struct {
	Name        string
	Level       Level
	Compressor  platform.Dynamics
	BandGainsDB [BandCount]float64
	Reverb      Reverb
	MakeupGain  float64
}

var profiles = map[Level]Profile{
	LevelSubtle: {
		Name:  "subtle",
		Level: LevelSubtle,
		Compressor: platform.Dynamics{
			ThresholdDB: -24,
			Ratio:       2,
			Attack:      10 * time.Millisecond,
			Release:     250 * time.Millisecond,
		},
		// Gentle smile curve: a touch of low and high lift.
		BandGainsDB: [BandCount]float64{1.5, 1.0, 0.5, 0, 0, 0, 0.5, 1.0, 1.5, 2.0},
		Reverb: Reverb{
			RoomSize: 800 * time.Millisecond,
			Damping:  0.6,
			WetLevel: 0.08,
		},
		MakeupGain: 1.05,
	},
	LevelBalanced: {
		Name:  "balanced",
		Level: LevelBalanced,
		Compressor: platform.Dynamics{
			ThresholdDB: -20,
			Ratio:       3,
			Attack:      5 * time.Millisecond,
			Release:     150 * time.Millisecond,
		},
		BandGainsDB: [BandCount]float64{3.0, 2.0, 1.0, 0, -0.5, 0, 1.0, 2.0, 3.0, 3.5},
		Reverb: Reverb{
			RoomSize: 1200 * time.Millisecond,
			Damping:  0.5,
			WetLevel: 0.12,
		},
		MakeupGain: 1.12,
	},
	LevelAggressive: {
		Name:  "aggressive",
		Level: LevelAggressive,
		Compressor: platform.Dynamics{
			ThresholdDB: -16,
			Ratio:       4,
			Attack:      3 * time.Millisecond,
			Release:     100 * time.Millisecond,
		},
		BandGainsDB: [BandCount]float64{4.5, 3.5, 2.0, 0.5, -1.0, 0.5, 2.0, 3.5, 4.5, 5.0},
		Reverb: Reverb{
			RoomSize: 1600 * time.Millisecond,
			Damping:  0.35,
			WetLevel: 0.18,
		},
		MakeupGain: 1.2,
	},
}

// ForLevel returns the profile for the given level. The lookup is total:
// any input maps to a valid profile via clamping.
func ForLevel(l Level) Profile {
	return profiles[Clamp(int(l))]
}
