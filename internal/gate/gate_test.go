package gate

import (
	"testing"
	"time"

	"github.com/Abdo12KM/nour-alma3refa/internal/playback"
)

// manualPlayer lets tests decide when a clip finishes.
type manualPlayer struct {
	plays []playback.SourceRef
	done  func(error)
	stops int
}

func (m *manualPlayer) Play(src playback.SourceRef, done func(error)) error {
	m.plays = append(m.plays, src)
	m.done = done
	return nil
}

func (m *manualPlayer) Stop() { m.stops++ }

func (m *manualPlayer) finish() {
	if m.done == nil {
		return
	}
	done := m.done
	m.done = nil
	done(nil)
}

func TestDisabledGateRunsActionImmediately(t *testing.T) {
	mp := &manualPlayer{}
	g := New(playback.New(mp))
	g.SetEnabled(false)

	fired := 0
	g.Activate(playback.NewControlID(), "prompt.wav", func() { fired++ }, false)

	if fired != 1 {
		t.Fatalf("expected action to fire once, got %d", fired)
	}
	if len(mp.plays) != 0 {
		t.Fatalf("expected no prompt playback when disabled, got %d", len(mp.plays))
	}
}

func TestFirstActivationPlaysPromptAndArms(t *testing.T) {
	mp := &manualPlayer{}
	pc := playback.New(mp)
	g := New(pc)

	ctrl := playback.NewControlID()
	fired := 0
	g.Activate(ctrl, "prompt.wav", func() { fired++ }, false)

	if fired != 0 {
		t.Fatalf("expected no action on first activation, got %d", fired)
	}
	if len(mp.plays) != 1 || mp.plays[0] != "prompt.wav" {
		t.Fatalf("expected prompt playback, got %v", mp.plays)
	}

	mp.finish()

	h, ok := pc.ActiveHandle()
	if !ok || h != ctrl {
		t.Fatalf("expected control to be armed after prompt end")
	}
}

func TestArmedControlFiresExactlyOnce(t *testing.T) {
	mp := &manualPlayer{}
	pc := playback.New(mp)
	g := New(pc)

	ctrl := playback.NewControlID()
	fired := 0
	g.Activate(ctrl, "prompt.wav", func() { fired++ }, false)
	mp.finish()

	g.Activate(ctrl, "prompt.wav", func() { fired++ }, false)
	if fired != 1 {
		t.Fatalf("expected armed activation to fire action, got %d", fired)
	}
	if _, ok := pc.ActiveHandle(); ok {
		t.Fatalf("expected control to disarm after firing")
	}

	// Third activation starts the prompt again instead of firing.
	g.Activate(ctrl, "prompt.wav", func() { fired++ }, false)
	if fired != 1 {
		t.Fatalf("expected no second fire, got %d", fired)
	}
	if len(mp.plays) != 2 {
		t.Fatalf("expected prompt to replay, got %d plays", len(mp.plays))
	}
}

func TestActivationIgnoredWhilePlaying(t *testing.T) {
	mp := &manualPlayer{}
	pc := playback.New(mp)
	g := New(pc)

	a := playback.NewControlID()
	b := playback.NewControlID()
	fired := 0
	g.Activate(a, "a.wav", func() { fired++ }, false)

	// a's prompt is still playing.
	g.Activate(b, "b.wav", func() { fired++ }, false)
	g.Activate(a, "a.wav", func() { fired++ }, false)

	if fired != 0 {
		t.Fatalf("expected no action while audio playing, got %d", fired)
	}
	if len(mp.plays) != 1 {
		t.Fatalf("expected a single playback, got %d", len(mp.plays))
	}
}

func TestDifferentControlRestartsPrompt(t *testing.T) {
	mp := &manualPlayer{}
	pc := playback.New(mp)
	g := New(pc)

	a := playback.NewControlID()
	b := playback.NewControlID()
	fired := 0
	g.Activate(a, "a.wav", nil, false)
	mp.finish()

	// a is armed; activating b plays b's prompt instead of firing anything.
	g.Activate(b, "b.wav", func() { fired++ }, false)
	if fired != 0 {
		t.Fatalf("expected no action, got %d", fired)
	}
	if len(mp.plays) != 2 || mp.plays[1] != "b.wav" {
		t.Fatalf("expected b prompt to play, got %v", mp.plays)
	}
	mp.finish()

	h, ok := pc.ActiveHandle()
	if !ok || h != b {
		t.Fatalf("expected b to be armed")
	}
}

func TestImmediateFiresOnPromptEnd(t *testing.T) {
	mp := &manualPlayer{}
	pc := playback.New(mp)
	g := New(pc)

	fired := 0
	g.Activate(playback.NewControlID(), "prompt.wav", func() { fired++ }, true)
	if fired != 0 {
		t.Fatalf("expected action to wait for prompt end")
	}
	mp.finish()

	if fired != 1 {
		t.Fatalf("expected action after prompt end, got %d", fired)
	}
	if _, ok := pc.ActiveHandle(); ok {
		t.Fatalf("expected no armed control in immediate mode")
	}
}

func TestArmWindowDisarms(t *testing.T) {
	mp := &manualPlayer{}
	pc := playback.New(mp)
	g := New(pc)
	g.SetArmWindow(20 * time.Millisecond)

	ctrl := playback.NewControlID()
	fired := 0
	g.Activate(ctrl, "prompt.wav", func() { fired++ }, false)
	mp.finish()

	if _, ok := pc.ActiveHandle(); !ok {
		t.Fatalf("expected control armed")
	}

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := pc.ActiveHandle(); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected control to disarm after window")
		}
		time.Sleep(5 * time.Millisecond)
	}

	g.Activate(ctrl, "prompt.wav", func() { fired++ }, false)
	if fired != 0 {
		t.Fatalf("expected expired control to replay prompt, got fire")
	}
	if len(mp.plays) != 2 {
		t.Fatalf("expected prompt replay, got %d plays", len(mp.plays))
	}
}
