package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Abdo12KM/nour-alma3refa/internal/tts"
)

type fakeStore struct {
	mu          sync.Mutex
	registers   int32
	registerID  int
	registerErr error
	loginName   string
	loginErr    error
	block       chan struct{}

	gotName string
	gotPIN  string
	gotID   int
}

func (f *fakeStore) Register(_ context.Context, name, pin string) (int, error) {
	atomic.AddInt32(&f.registers, 1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.gotName, f.gotPIN = name, pin
	f.mu.Unlock()
	return f.registerID, f.registerErr
}

func (f *fakeStore) Login(_ context.Context, userID int, pin string) (string, error) {
	f.mu.Lock()
	f.gotID, f.gotPIN = userID, pin
	f.mu.Unlock()
	return f.loginName, f.loginErr
}

type fakeSynth struct {
	mu    sync.Mutex
	texts []string
	err   error
	fail  string // substring that triggers err
}

func (f *fakeSynth) Synthesize(_ context.Context, text string, _ tts.UtteranceType) ([]byte, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.err != nil && (f.fail == "" || strings.Contains(text, f.fail)) {
		return nil, f.err
	}
	return []byte("clip:" + text), nil
}

func TestTextRegistrationReachesConfirmation(t *testing.T) {
	store := &fakeStore{registerID: 42}
	synth := &fakeSynth{}
	e := NewEnrollment(store, synth)

	e.ChooseMethod(MethodText)
	require.Equal(t, StepCaptureIdentity, e.Step())

	require.NoError(t, e.SubmitName("Sara"))
	require.Equal(t, StepCaptureSecret, e.Step())

	e.SubmitPIN(context.Background(), "4821")

	require.Equal(t, StepConfirmation, e.Step())
	require.Equal(t, 42, e.AssignedUserID())
	require.Equal(t, "Sara", store.gotName)
	require.Equal(t, "4821", store.gotPIN)
	require.True(t, e.CanReplay())

	// Replay is idempotent: same bytes every time.
	first := e.ReplayClip()
	require.NotNil(t, first)
	require.Equal(t, first, e.ReplayClip())
	require.Equal(t, first, e.ReplayClip())

	e.Proceed()
	require.Equal(t, StepDone, e.Step())
}

func TestSubmitIsSingleFlight(t *testing.T) {
	store := &fakeStore{registerID: 7, block: make(chan struct{})}
	e := NewEnrollment(store, nil)
	e.ChooseMethod(MethodVoice)
	require.NoError(t, e.SubmitName("أحمد"))

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			e.SubmitPIN(context.Background(), "1234")
		}()
	}
	close(store.block)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&store.registers))
	require.Equal(t, StepConfirmation, e.Step())
}

func TestRegisterFailureReturnsToSecretCapture(t *testing.T) {
	store := &fakeStore{registerErr: errors.New("boom")}
	e := NewEnrollment(store, nil)
	e.ChooseMethod(MethodText)
	require.NoError(t, e.SubmitName("Sara"))

	e.SubmitPIN(context.Background(), "4821")

	require.Equal(t, StepCaptureSecret, e.Step())
	require.NotEmpty(t, e.LastError())

	// The user may retry without restarting the whole flow.
	store.registerErr = nil
	store.registerID = 9
	e.SubmitPIN(context.Background(), "4821")
	require.Equal(t, StepConfirmation, e.Step())
	require.Equal(t, 9, e.AssignedUserID())
}

func TestPartialSynthesisFailureOnlyDisablesReplay(t *testing.T) {
	store := &fakeStore{registerID: 15}
	synth := &fakeSynth{err: errors.New("tts down"), fail: "رقم المستخدم هو:"}
	e := NewEnrollment(store, synth)
	e.ChooseMethod(MethodText)
	require.NoError(t, e.SubmitName("Sara"))

	e.SubmitPIN(context.Background(), "4821")

	require.Equal(t, StepConfirmation, e.Step())
	require.NotNil(t, e.WarningClip())
	require.Nil(t, e.ReplayClip())
	require.False(t, e.CanReplay())
}

func TestInvalidPINNeverReachesStore(t *testing.T) {
	store := &fakeStore{}
	e := NewEnrollment(store, nil)
	e.ChooseMethod(MethodText)
	require.NoError(t, e.SubmitName("Sara"))

	e.SubmitPIN(context.Background(), "12")

	require.Equal(t, StepCaptureSecret, e.Step())
	require.NotEmpty(t, e.LastError())
	require.Zero(t, atomic.LoadInt32(&store.registers))
}

func TestOutOfStepPINLeavesErrorAlone(t *testing.T) {
	store := &fakeStore{registerID: 5}
	e := NewEnrollment(store, nil)
	require.Equal(t, StepMethodSelect, e.Step())

	e.SubmitPIN(context.Background(), "12")
	require.Equal(t, StepMethodSelect, e.Step())
	require.Empty(t, e.LastError())

	a := NewAuthentication(store)
	a.SubmitPIN(context.Background(), "12")
	require.Equal(t, StepMethodSelect, a.Step())
	require.Empty(t, a.LastError())
}

func TestBackTransitions(t *testing.T) {
	e := NewEnrollment(&fakeStore{}, nil)
	e.ChooseMethod(MethodVoice)
	require.NoError(t, e.SubmitName("أحمد"))
	require.Equal(t, StepCaptureSecret, e.Step())

	e.Back()
	require.Equal(t, StepCaptureIdentity, e.Step())
	e.Back()
	require.Equal(t, StepMethodSelect, e.Step())
	e.Back()
	require.Equal(t, StepMethodSelect, e.Step())
}

func TestLoginSuccess(t *testing.T) {
	store := &fakeStore{loginName: "Sara"}
	a := NewAuthentication(store)
	a.ChooseMethod(MethodText)
	require.NoError(t, a.SubmitUserID("7"))

	a.SubmitPIN(context.Background(), "1234")

	require.Equal(t, StepDone, a.Step())
	require.Equal(t, "Sara", a.UserName())
	require.Equal(t, 7, store.gotID)
	require.Equal(t, "1234", store.gotPIN)
}

func TestLoginFailureShowsGenericMessage(t *testing.T) {
	store := &fakeStore{loginErr: ErrInvalidCredentials}
	a := NewAuthentication(store)
	a.ChooseMethod(MethodText)
	require.NoError(t, a.SubmitUserID("7"))

	a.SubmitPIN(context.Background(), "0000")

	require.Equal(t, StepCaptureSecret, a.Step())
	require.Equal(t, "رقم المستخدم أو الرقم السري غير صحيح.", a.LastError())
}

func TestSubmitUserIDValidatesRange(t *testing.T) {
	a := NewAuthentication(&fakeStore{})
	a.ChooseMethod(MethodVoice)

	require.Error(t, a.SubmitUserID("0"))
	require.Error(t, a.SubmitUserID("100000"))
	require.Equal(t, StepCaptureIdentity, a.Step())

	require.NoError(t, a.SubmitUserID("99999"))
	require.Equal(t, StepCaptureSecret, a.Step())
}
