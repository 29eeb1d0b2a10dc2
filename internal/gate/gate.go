// Package gate implements the two-click interaction policy: the first
// activation of a control plays its explanatory prompt, the second performs
// the action. Built for low-literacy users who navigate by ear.
package gate

import (
	"sync"
	"time"

	"github.com/Abdo12KM/nour-alma3refa/internal/playback"
)

// DefaultArmWindow is how long a control stays armed after its prompt
// finishes.
const DefaultArmWindow = 30 * time.Second

// Gate wraps triggerable actions in the two-phase confirm. Disabled, it
// degrades to plain single-click.
type Gate struct {
	playback *playback.Controller

	mu        sync.Mutex
	enabled   bool
	armWindow time.Duration
	disarm    *time.Timer
	armed     playback.ControlID
}

// New builds a Gate over the session's playback controller. The gate starts
// enabled, matching the product default.
func New(pc *playback.Controller) *Gate {
	return &Gate{playback: pc, enabled: true, armWindow: DefaultArmWindow}
}

// SetEnabled toggles the two-click behavior for the whole session.
func (g *Gate) SetEnabled(on bool) {
	g.mu.Lock()
	g.enabled = on
	g.mu.Unlock()
}

// Enabled reports the current toggle.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// SetArmWindow overrides the disarm timeout; zero restores the default.
func (g *Gate) SetArmWindow(d time.Duration) {
	g.mu.Lock()
	if d <= 0 {
		d = DefaultArmWindow
	}
	g.armWindow = d
	g.mu.Unlock()
}

// Activate handles one user activation of control.
//
// Disabled gate: the action runs synchronously. While any audio plays every
// control is inert. An armed control fires its action exactly once and
// disarms. Otherwise the prompt plays; once it finishes the control arms
// (or, with immediate, the action auto-fires with no second activation).
// The disarm window is measured from the end of the prompt, not from the
// activation.
func (g *Gate) Activate(control playback.ControlID, prompt playback.SourceRef, action func(), immediate bool) {
	g.mu.Lock()
	if !g.enabled {
		g.mu.Unlock()
		if action != nil {
			action()
		}
		return
	}
	g.mu.Unlock()

	if g.playback.IsPlaying() {
		return
	}

	if armed, ok := g.playback.ActiveHandle(); ok && armed == control {
		g.cancelDisarm(control)
		g.playback.ClearActiveHandle()
		if action != nil {
			action()
		}
		return
	}

	g.playback.Play(prompt, func() {
		if immediate {
			g.playback.ClearActiveHandle()
			if action != nil {
				action()
			}
			return
		}
		g.scheduleDisarm(control)
	}, control)
}

func (g *Gate) scheduleDisarm(control playback.ControlID) {
	g.mu.Lock()
	if g.disarm != nil {
		g.disarm.Stop()
	}
	g.armed = control
	g.disarm = time.AfterFunc(g.armWindow, func() {
		g.mu.Lock()
		stillArmed := g.armed == control
		if stillArmed {
			g.disarm = nil
			g.armed = playback.ControlID{}
		}
		g.mu.Unlock()
		if !stillArmed {
			return
		}
		if h, ok := g.playback.ActiveHandle(); ok && h == control {
			g.playback.ClearActiveHandle()
		}
	})
	g.mu.Unlock()
}

func (g *Gate) cancelDisarm(control playback.ControlID) {
	g.mu.Lock()
	if g.disarm != nil && g.armed == control {
		g.disarm.Stop()
		g.disarm = nil
		g.armed = playback.ControlID{}
	}
	g.mu.Unlock()
}
