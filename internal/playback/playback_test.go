package playback

import (
	"errors"
	"testing"
)

// manualPlayer lets tests finish clips explicitly.
type manualPlayer struct {
	current SourceRef
	done    func(error)
	stops   int
	failOn  SourceRef
}

func (m *manualPlayer) Play(src SourceRef, done func(error)) error {
	if src == m.failOn {
		return errors.New("cannot start")
	}
	m.current = src
	m.done = done
	return nil
}

func (m *manualPlayer) Stop() { m.stops++ }

func (m *manualPlayer) finish(err error) {
	done := m.done
	m.done = nil
	if done != nil {
		done(err)
	}
}

func TestPlay_NaturalEndKeepsHandleAndFiresOnEnd(t *testing.T) {
	mp := &manualPlayer{}
	p := New(mp)
	ctrl := NewControlID()

	ended := 0
	p.Play("clip-a", func() { ended++ }, ctrl)
	if !p.IsPlaying() {
		t.Fatalf("expected playing")
	}

	mp.finish(nil)
	if p.IsPlaying() {
		t.Fatalf("expected idle after end")
	}
	if ended != 1 {
		t.Fatalf("expected one onEnd call, got %d", ended)
	}
	got, ok := p.ActiveHandle()
	if !ok || got != ctrl {
		t.Fatalf("expected handle kept after end")
	}
}

func TestPlay_SupersededClipNeverFiresOnEnd(t *testing.T) {
	mp := &manualPlayer{}
	p := New(mp)

	var aEnded, bEnded bool
	aDone := func() { aEnded = true }
	p.Play("clip-a", aDone, NewControlID())
	firstDone := mp.done

	p.Play("clip-b", func() { bEnded = true }, NewControlID())

	// A finishes late; its callback must be discarded.
	firstDone(nil)
	if aEnded {
		t.Fatalf("superseded clip's onEnd must never fire")
	}
	mp.finish(nil)
	if !bEnded {
		t.Fatalf("expected current clip's onEnd")
	}
}

func TestPlay_ErrorSuppressesOnEnd(t *testing.T) {
	mp := &manualPlayer{}
	p := New(mp)

	ended := false
	p.Play("clip-a", func() { ended = true }, NewControlID())
	mp.finish(errors.New("decode failure"))
	if ended {
		t.Fatalf("onEnd must not fire on playback error")
	}
	if p.IsPlaying() {
		t.Fatalf("expected idle after error")
	}
}

func TestPlay_StartFailureLeavesIdle(t *testing.T) {
	mp := &manualPlayer{failOn: "missing.wav"}
	p := New(mp)

	p.Play("missing.wav", func() { t.Fatalf("onEnd must not fire") }, NewControlID())
	if p.IsPlaying() {
		t.Fatalf("expected idle after start failure")
	}
}

func TestStop_IdempotentAndKeepsHandle(t *testing.T) {
	mp := &manualPlayer{}
	p := New(mp)
	ctrl := NewControlID()

	p.Play("clip-a", nil, ctrl)
	mp.finish(nil)

	p.Stop()
	p.Stop()
	if _, ok := p.ActiveHandle(); !ok {
		t.Fatalf("stop must not clear the armed handle")
	}

	p.ClearActiveHandle()
	if _, ok := p.ActiveHandle(); ok {
		t.Fatalf("expected handle cleared")
	}
}

func TestStop_AbandonsInFlightClip(t *testing.T) {
	mp := &manualPlayer{}
	p := New(mp)

	ended := false
	p.Play("clip-a", func() { ended = true }, NewControlID())
	late := mp.done
	p.Stop()
	late(nil)
	if ended {
		t.Fatalf("stopped clip's onEnd must never fire")
	}
}

func TestControlID(t *testing.T) {
	a, b := NewControlID(), NewControlID()
	if a == b {
		t.Fatalf("expected distinct ids")
	}
	var zero ControlID
	if !zero.IsZero() || a.IsZero() {
		t.Fatalf("zero-value semantics broken")
	}
	if zero.String() != "" || a.String() == "" {
		t.Fatalf("string form broken")
	}
}

func TestNilPlayerPlaysInstantly(t *testing.T) {
	p := New(nil)
	ended := false
	p.Play("clip", func() { ended = true }, NewControlID())
	if !ended {
		t.Fatalf("expected instant completion with nop player")
	}
}
