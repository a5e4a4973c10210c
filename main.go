// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"runtime"

	"enhancer/cmd"
	"enhancer/internal/audio"
	"enhancer/internal/config"
	"enhancer/internal/enhancer"
	"enhancer/internal/impulse"
	applog "enhancer/internal/log"
	"enhancer/internal/platform"
	"enhancer/internal/prefs"
	"enhancer/internal/profile"
	"enhancer/internal/transport"
	"enhancer/internal/transport/udp"
	"enhancer/internal/tui"
	"enhancer/pkg/build"
)

// main is the entry point for the enhancer application.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments, load and validate configuration
//   - Initialize PortAudio
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Build the enhancer and its collaborators
//   - Bind the live input source
//   - Run the status TUI until the user quits
//
// 3. Shutdown Phase (Cold Path):
//   - Stop observer feeds
//   - Tear down the enhancer and the audio context
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		// Development builds run without ldflags; version shows "unknown".
		applog.Debugf("Build info not embedded: %v", err)
	}

	// One thread for the audio callback, one for UI and I/O.
	runtime.GOMAXPROCS(2)

	options, err := cmd.ParseArgs()
	if err != nil {
		applog.Fatalf("%v", err)
	}

	cfg, err := config.LoadConfig(options.ConfigPath)
	if err != nil {
		applog.Fatalf("%v", err)
	}
	applyOverrides(cfg, options)

	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
	if cfg.Debug || options.Verbose {
		applog.SetLevel(applog.LevelDebug)
	}

	if options.Command == "impulse" {
		if err := renderImpulse(cfg, options); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	if err := audio.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}
	defer audio.Terminate()

	if options.Command == "list" {
		if err := audio.ListDevices(); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	if !options.TUIMode {
		return
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	var observers transport.Transport
	if cfg.Transport.WebSocketAddr != "" {
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr)
		defer ws.Close()
		observers = ws
	} else {
		observers = transport.NewLoggingTransport()
	}

	var irOverride []float64
	if cfg.Enhancer.ImpulseFile != "" {
		ir, _, err := impulse.ReadWAV(cfg.Enhancer.ImpulseFile)
		if err != nil {
			applog.Warnf("Measured impulse unusable, falling back to synthetic: %v", err)
		} else {
			irOverride = ir
		}
	}

	clock := audio.NewPlaybackClock(true)
	enh, err := enhancer.New(enhancer.Config{
		ContextFactory: func() (platform.Context, error) {
			return audio.NewContext(cfg.Audio)
		},
		Prefs:            prefs.NewFileStore(cfg.Enhancer.PrefsFile),
		Playback:         clock,
		Observers:        observers,
		FFTSize:          cfg.Enhancer.FFTSize,
		AnalysisInterval: cfg.Enhancer.AnalysisInterval,
		SettleDelay:      cfg.Enhancer.SettleDelay,
		ImpulseOverride:  irOverride,
	})
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if cfg.Enhancer.Level != 0 {
		enh.SetLevel(cfg.Enhancer.Level)
	}

	source, err := audio.NewDeviceSource(cfg.Audio)
	if err != nil {
		applog.Fatalf("%v", err)
	}
	enh.HandleSourceLoaded(context.Background(), source)

	var publisher *udp.Publisher
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			applog.Errorf("UDP meter feed disabled: %v", err)
		} else {
			defer sender.Close()
			publisher, err = udp.NewPublisher(cfg.Transport.UDPSendInterval, sender, enh)
			if err != nil {
				applog.Errorf("UDP meter feed disabled: %v", err)
			} else {
				publisher.Start()
			}
		}
	}

	// The TUI owns the foreground until the user quits; every keypress
	// it sees doubles as the activation gesture.
	if err := tui.StartStatusUI(enh); err != nil {
		applog.Errorf("TUI error: %v", err)
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if publisher != nil {
		publisher.Stop()
	}
	if err := enh.Close(); err != nil {
		applog.Errorf("Shutdown: %v", err)
	}
}

// applyOverrides folds command line flags into the loaded configuration.
func applyOverrides(cfg *config.Config, options *cmd.Options) {
	if options.Device != -1 {
		cfg.Audio.InputDevice = options.Device
	}
	if options.SampleRate > 0 {
		cfg.Audio.SampleRate = options.SampleRate
	}
}

// renderImpulse writes the synthetic reverb impulse for the requested
// level to a WAV file. Needs no audio hardware.
func renderImpulse(cfg *config.Config, options *cmd.Options) error {
	p := profile.ForLevel(profile.Clamp(options.ImpulseLevel))
	ir := impulse.Render(p.Reverb.RoomSize, p.Reverb.Damping, cfg.Audio.SampleRate)
	if err := impulse.WriteWAV(options.ImpulseOutput, ir, int(cfg.Audio.SampleRate)); err != nil {
		return err
	}
	fmt.Printf("Rendered %s impulse (%d samples at %.0f Hz) to %s\n",
		p.Name, len(ir), cfg.Audio.SampleRate, options.ImpulseOutput)
	return nil
}
