// SPDX-License-Identifier: MIT

// Package config loads and validates the application configuration from
// YAML, with environment variable overrides for deploy-time tweaks.
package config

import (
	"fmt"
	"time"

	"enhancer/internal/profile"
	"enhancer/pkg/bitint"
)

// Hardware and processing limits.
const (
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
	MaxFFTSize      = 32768  // Largest analysis window worth paying for
)

// Config is the root application configuration, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Verbose logging and debug features.
	LogLevel  string          `yaml:"log_level"` // "debug", "info", "warn" or "error".
	Audio     AudioConfig     `yaml:"audio"`     // Audio device settings.
	Enhancer  EnhancerConfig  `yaml:"enhancer"`  // Enhancement chain settings.
	Transport TransportConfig `yaml:"transport"` // Observer feeds (WebSocket, UDP).
}

// AudioConfig holds audio device and stream settings.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // Device index for capture (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per processing buffer.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from the device.
	InputChannels   int     `yaml:"input_channels"`    // 1 for mono, 2 for stereo.
}

// EnhancerConfig holds settings for the enhancement chain and its
// analysis loop.
type EnhancerConfig struct {
	Level            int           `yaml:"level"`             // Startup level 1-3; 0 defers to stored preferences.
	FFTSize          int           `yaml:"fft_size"`          // Analysis window, power of 2.
	AnalysisInterval time.Duration `yaml:"analysis_interval"` // Cadence of quality snapshots.
	SettleDelay      time.Duration `yaml:"settle_delay"`      // Wait after rewiring before playback resumes.
	ImpulseFile      string        `yaml:"impulse_file"`      // Optional measured reverb impulse (WAV); empty renders synthetically.
	PrefsFile        string        `yaml:"prefs_file"`        // Preference store location.
}

// TransportConfig holds settings for publishing status and analysis
// data to external observers.
type TransportConfig struct {
	WebSocketAddr    string        `yaml:"websocket_addr"`     // Listen address for the status WebSocket (empty disables).
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable the UDP meter feed.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
}

// defaults returns the built-in configuration used when no file exists.
func defaults() Config {
	return Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     MinDeviceID,
			SampleRate:      48000,
			FramesPerBuffer: 1024,
			LowLatency:      false,
			InputChannels:   1,
		},
		Enhancer: EnhancerConfig{
			Level:            0, // defer to preferences
			FFTSize:          2048,
			AnalysisInterval: 500 * time.Millisecond,
			SettleDelay:      50 * time.Millisecond,
			PrefsFile:        "prefs.yaml",
		},
		Transport: TransportConfig{
			WebSocketAddr:    "",
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  500 * time.Millisecond,
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %g outside [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.FramesPerBuffer <= 0 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer %d outside (0, %d]", c.Audio.FramesPerBuffer, MaxBufferFrames)
	}
	if c.Audio.InputChannels < 1 || c.Audio.InputChannels > 2 {
		return fmt.Errorf("audio.input_channels %d must be 1 or 2", c.Audio.InputChannels)
	}
	if !bitint.IsPowerOfTwo(c.Enhancer.FFTSize) || c.Enhancer.FFTSize > MaxFFTSize {
		return fmt.Errorf("enhancer.fft_size %d must be a power of 2 up to %d", c.Enhancer.FFTSize, MaxFFTSize)
	}
	if c.Enhancer.Level != 0 {
		if lvl := profile.Clamp(c.Enhancer.Level); int(lvl) != c.Enhancer.Level {
			return fmt.Errorf("enhancer.level %d outside [%d, %d]", c.Enhancer.Level, profile.LevelSubtle, profile.LevelAggressive)
		}
	}
	if c.Enhancer.AnalysisInterval <= 0 {
		return fmt.Errorf("enhancer.analysis_interval must be positive")
	}
	if c.Enhancer.SettleDelay < 0 {
		return fmt.Errorf("enhancer.settle_delay cannot be negative")
	}
	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	return nil
}
