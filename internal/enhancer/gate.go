// SPDX-License-Identifier: MIT
package enhancer

import (
	"context"
	"fmt"
	"sync"

	applog "enhancer/internal/log"
	"enhancer/internal/platform"
)

// ContextFactory creates the platform processing context on first use.
type ContextFactory func() (platform.Context, error)

// Gate resolves the host's "processing suspended until user gesture"
// policy. The context is created lazily; resuming it waits for the
// first qualifying gesture, with no internal timeout; the wait is
// bounded by the user actually doing something.
type Gate struct {
	mu          sync.Mutex
	factory     ContextFactory
	ctx         platform.Context
	gestureSeen bool
	failed      bool
}

// NewGate creates a gate around the given context factory.
func NewGate(factory ContextFactory) *Gate {
	return &Gate{factory: factory}
}

// OnUserGesture records that a qualifying input event has occurred.
// Called once by the shell's one-shot listener; extra calls are
// harmless.
func (g *Gate) OnUserGesture() {
	g.mu.Lock()
	if !g.gestureSeen {
		applog.Debugf("Gate: user gesture observed")
	}
	g.gestureSeen = true
	g.mu.Unlock()
}

// GestureSeen reports whether a gesture has been observed.
func (g *Gate) GestureSeen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gestureSeen
}

// EnsureReady creates the processing context if needed and tries to get
// it running. Returns (false, nil) when the context is still suspended
// pending a gesture: that is "not yet ready", not an error. A creation
// failure is permanent for the session and surfaces as
// platform.ErrContextUnavailable on this and every later call.
func (g *Gate) EnsureReady(ctx context.Context) (bool, error) {
	g.mu.Lock()
	if g.failed {
		g.mu.Unlock()
		return false, platform.ErrContextUnavailable
	}
	if g.ctx == nil {
		created, err := g.factory()
		if err != nil {
			g.failed = true
			g.mu.Unlock()
			applog.Errorf("Gate: context creation failed, enhancer degraded for this session: %v", err)
			return false, fmt.Errorf("%w: %v", platform.ErrContextUnavailable, err)
		}
		g.ctx = created
		applog.Debugf("Gate: processing context created (state %s)", created.State())
	}
	pc := g.ctx
	gesture := g.gestureSeen
	g.mu.Unlock()

	switch pc.State() {
	case platform.StateRunning:
		return true, nil
	case platform.StateClosed:
		return false, platform.ErrContextClosed
	}

	if !gesture {
		return false, nil
	}

	// Resume failures are retried on the next gesture or ready event;
	// only creation failures latch permanently.
	if err := pc.Resume(ctx); err != nil {
		applog.Warnf("Gate: resume failed, will retry: %v", err)
		return false, err
	}
	applog.Debugf("Gate: context resumed")
	return true, nil
}

// Context returns the platform context, or nil if none exists yet.
func (g *Gate) Context() platform.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctx
}
