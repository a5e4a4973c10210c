// SPDX-License-Identifier: MIT
package enhancer

import (
	"enhancer/internal/analysis"
	applog "enhancer/internal/log"
	"enhancer/internal/profile"
)

// Status is the externally visible snapshot of the enhancer. It is what
// the TUI renders and what observer transports receive after every
// state change.
type Status struct {
	Enabled            bool               `json:"enabled"`
	Level              int                `json:"level"`
	Profile            string             `json:"profile"`
	Connected          bool               `json:"connected"`
	Analyzing          bool               `json:"analyzing"`
	RequiresActivation bool               `json:"requiresActivation"`
	Available          bool               `json:"available"`
	Quality            analysis.Quality   `json:"quality"`
	Analysis           *analysis.Snapshot `json:"analysis,omitempty"`
}

// Status assembles the current snapshot. Safe to call from any
// goroutine at any time.
func (e *Enhancer) Status() Status {
	e.mu.Lock()
	st := e.st
	level := e.level
	s := Status{
		Enabled:            e.enabled,
		Level:              int(level),
		Profile:            profile.ForLevel(level).Name,
		Connected:          st == stateConnected,
		RequiresActivation: e.requiresActivation,
		Available:          e.available,
		Quality:            analysis.QualityOriginal,
	}
	loop := e.loop
	e.mu.Unlock()

	if loop != nil {
		s.Analyzing = loop.Running()
	}
	if s.Connected && loop != nil {
		if snap, ok := loop.Latest(); ok {
			s.Quality = snap.Quality
			s.Analysis = &snap
		} else {
			// Connected but no tick yet; report the floor rather than
			// pretending the signal is untouched.
			s.Quality = analysis.QualityLow
		}
	}
	return s
}

// Latest returns the most recent analysis snapshot, if one exists. The
// UDP meter feed reads it on its own cadence.
func (e *Enhancer) Latest() (analysis.Snapshot, bool) {
	e.mu.Lock()
	loop := e.loop
	e.mu.Unlock()
	if loop == nil {
		return analysis.Snapshot{}, false
	}
	return loop.Latest()
}

// pushStatus publishes the current status to the observer transport,
// if one is wired.
func (e *Enhancer) pushStatus() {
	e.mu.Lock()
	sink := e.observers
	e.mu.Unlock()
	if sink == nil {
		return
	}
	if err := sink.Send(e.Status()); err != nil {
		applog.Debugf("Enhancer: status publish failed: %v", err)
	}
}
