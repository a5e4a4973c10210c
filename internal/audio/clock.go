// SPDX-License-Identifier: MIT
package audio

import (
	"sync"
	"time"

	applog "enhancer/internal/log"
)

// PlaybackClock is a monotonic playback transport for a live source.
// There is no file to seek through; position is simply elapsed play
// time, which is what the toggle choreography needs to pause around a
// rewire and restore afterwards.
type PlaybackClock struct {
	mu       sync.Mutex
	playing  bool
	position time.Duration
	lastTick time.Time
}

// NewPlaybackClock creates a clock, optionally already running.
func NewPlaybackClock(playing bool) *PlaybackClock {
	return &PlaybackClock{
		playing:  playing,
		lastTick: time.Now(),
	}
}

func (p *PlaybackClock) Pause() {
	p.mu.Lock()
	p.advanceLocked()
	p.playing = false
	p.mu.Unlock()
	applog.Debugf("Playback: paused")
}

func (p *PlaybackClock) Resume() {
	p.mu.Lock()
	p.lastTick = time.Now()
	p.playing = true
	p.mu.Unlock()
	applog.Debugf("Playback: resumed")
}

func (p *PlaybackClock) Seek(pos time.Duration) {
	p.mu.Lock()
	p.position = pos
	p.lastTick = time.Now()
	p.mu.Unlock()
}

func (p *PlaybackClock) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	return p.position
}

func (p *PlaybackClock) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// advanceLocked folds elapsed wall time into position while playing.
func (p *PlaybackClock) advanceLocked() {
	now := time.Now()
	if p.playing {
		p.position += now.Sub(p.lastTick)
	}
	p.lastTick = now
}
