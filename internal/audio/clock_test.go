// SPDX-License-Identifier: MIT
package audio

import (
	"testing"
	"time"
)

func TestPlaybackClockPauseFreezesPosition(t *testing.T) {
	c := NewPlaybackClock(true)
	time.Sleep(20 * time.Millisecond)
	c.Pause()

	p1 := c.Position()
	if p1 <= 0 {
		t.Fatalf("position = %s after playing, expected progress", p1)
	}
	time.Sleep(20 * time.Millisecond)
	if p2 := c.Position(); p2 != p1 {
		t.Errorf("position advanced while paused: %s -> %s", p1, p2)
	}
}

func TestPlaybackClockSeekAndResume(t *testing.T) {
	c := NewPlaybackClock(false)
	c.Seek(3 * time.Second)

	if p := c.Position(); p != 3*time.Second {
		t.Fatalf("position = %s after seek, want 3s", p)
	}
	if c.IsPlaying() {
		t.Fatal("clock should still be paused after seek")
	}

	c.Resume()
	time.Sleep(20 * time.Millisecond)
	if p := c.Position(); p < 3*time.Second {
		t.Errorf("position = %s, expected to advance past the seek point", p)
	}
	if !c.IsPlaying() {
		t.Error("clock should report playing after resume")
	}
}

func TestPlaybackClockStartsAtZero(t *testing.T) {
	c := NewPlaybackClock(false)
	if p := c.Position(); p != 0 {
		t.Errorf("initial position = %s, want 0", p)
	}
}
