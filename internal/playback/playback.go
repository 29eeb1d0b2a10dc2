// Package playback owns the single audio channel shared by every control in
// a session: at most one clip plays at a time, and the control whose clip
// just finished stays armed as the next-action target.
package playback

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// ControlID is the opaque identity of one UI control. Generated once per
// control instance; the zero value means "no control".
type ControlID struct{ id uuid.UUID }

// NewControlID mints a fresh control identity.
func NewControlID() ControlID { return ControlID{id: uuid.New()} }

// IsZero reports whether c identifies no control.
func (c ControlID) IsZero() bool { return c.id == uuid.Nil }

func (c ControlID) String() string {
	if c.IsZero() {
		return ""
	}
	return c.id.String()
}

// SourceRef names one audio clip (a path, URL, or synthesized-clip handle).
type SourceRef string

// Player starts and stops actual audio output. Play begins the clip and
// returns a start error if the clip cannot begin at all; otherwise the
// player calls done exactly once, with nil on natural end or the playback
// error. After Stop, a pending done must not be called.
type Player interface {
	Play(src SourceRef, done func(err error)) error
	Stop()
}

// nopPlayer completes every clip immediately; used when no real output is
// wired (headless flows, tests).
type nopPlayer struct{}

func (nopPlayer) Play(_ SourceRef, done func(error)) error {
	if done != nil {
		done(nil)
	}
	return nil
}
func (nopPlayer) Stop() {}

// Controller serializes access to the audio channel.
type Controller struct {
	player Player

	mu        sync.Mutex
	playing   bool
	active    ControlID
	hasActive bool
	gen       uint64
}

// New builds a Controller over the given player; a nil player plays every
// clip instantly.
func New(player Player) *Controller {
	if player == nil {
		player = nopPlayer{}
	}
	return &Controller{player: player}
}

// Play stops any current clip and starts src. When the clip ends naturally
// the control stays recorded as the active handle and onEnd runs; if a newer
// Play or Stop superseded this clip first, its onEnd never runs. Start
// failures are logged and leave the channel idle.
func (p *Controller) Play(src SourceRef, onEnd func(), control ControlID) {
	p.mu.Lock()
	p.gen++
	myGen := p.gen
	p.playing = true
	p.active = control
	p.hasActive = !control.IsZero()
	p.mu.Unlock()

	// Best-effort stop of whatever was playing; the generation bump above
	// already guarantees the old clip's onEnd is unreachable.
	p.player.Stop()

	err := p.player.Play(src, func(playErr error) {
		p.mu.Lock()
		if p.gen != myGen {
			p.mu.Unlock()
			return
		}
		p.playing = false
		p.mu.Unlock()
		if playErr != nil {
			log.Printf("playback error for %s: %v", src, playErr)
			return
		}
		if onEnd != nil {
			onEnd()
		}
	})
	if err != nil {
		log.Printf("playback start failed for %s: %v", src, err)
		p.mu.Lock()
		if p.gen == myGen {
			p.playing = false
		}
		p.mu.Unlock()
	}
}

// Stop halts playback; idempotent. The armed handle is kept, matching the
// original interaction model where stopping audio does not disarm a control.
func (p *Controller) Stop() {
	p.mu.Lock()
	p.gen++
	p.playing = false
	p.mu.Unlock()
	p.player.Stop()
}

// ClearActiveHandle drops the armed control without touching audio.
func (p *Controller) ClearActiveHandle() {
	p.mu.Lock()
	p.active = ControlID{}
	p.hasActive = false
	p.mu.Unlock()
}

// IsPlaying reports whether a clip is currently playing.
func (p *Controller) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// ActiveHandle returns the armed control, if any.
func (p *Controller) ActiveHandle() (ControlID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active, p.hasActive
}
