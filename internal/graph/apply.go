// SPDX-License-Identifier: MIT
package graph

import (
	applog "enhancer/internal/log"
	"enhancer/internal/profile"
)

// Apply pushes a profile's parameter values onto the live nodes. It is
// a no-op while the bypass topology is live: there is nothing wired to
// parameterize. Re-applying the same profile is idempotent; the host's
// native ramping absorbs any repeated sets. The wet level is read from
// the profile at the moment of application, but the reverb impulse is
// never rebuilt here; that happens only at wiring time.
func (g *Graph) Apply(p profile.Profile) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.topology != TopologyEnhanced || g.compressor == nil {
		return nil
	}

	g.compressor.SetDynamics(p.Compressor)
	for i, band := range g.bands {
		band.SetBand(profile.BandFrequency(i), p.BandGainsDB[i])
	}
	g.makeup.SetGain(p.MakeupGain)
	g.wet.SetGain(p.Reverb.WetLevel)
	g.mix.SetGain(1.0)

	applog.Debugf("Graph: applied profile %s", p.Name)
	return nil
}
