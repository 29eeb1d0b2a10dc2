// Package flow sequences enrollment and login: method selection, identity
// and secret capture, the credential round-trip, and the confirmation
// screen. The machines hold no UI; callers render off Step and the exposed
// accessors.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/Abdo12KM/nour-alma3refa/internal/speech"
	"github.com/Abdo12KM/nour-alma3refa/internal/tts"
)

// ErrInvalidCredentials is returned by CredentialStore.Login when the id/pin
// pair does not match. The store never says which half was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// CredentialStore is the account endpoint pair the flows submit to.
type CredentialStore interface {
	Register(ctx context.Context, name, pin string) (userID int, err error)
	Login(ctx context.Context, userID int, pin string) (name string, err error)
}

// Synthesizer produces the spoken confirmation clips after enrollment.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, kind tts.UtteranceType) ([]byte, error)
}

// Step is the flow's current screen.
type Step int

const (
	StepMethodSelect Step = iota
	StepCaptureIdentity
	StepCaptureSecret
	StepSubmitting
	StepPreparingConfirmation
	StepConfirmation
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepMethodSelect:
		return "method_select"
	case StepCaptureIdentity:
		return "capture_identity"
	case StepCaptureSecret:
		return "capture_secret"
	case StepSubmitting:
		return "submitting"
	case StepPreparingConfirmation:
		return "preparing_confirmation"
	case StepConfirmation:
		return "confirmation"
	case StepDone:
		return "done"
	}
	return "unknown"
}

// Method is how the user enters their fields.
type Method int

const (
	MethodText Method = iota
	MethodVoice
)

// Enrollment walks a new user through account creation. Choosing voice for
// the identity pairs the secret capture with voice too.
type Enrollment struct {
	store CredentialStore
	synth Synthesizer

	mu          sync.Mutex
	step        Step
	method      Method
	name        string
	submitting  bool
	userID      int
	warningClip []byte
	replayClip  []byte
	lastError   string
}

// NewEnrollment starts a flow at method selection.
func NewEnrollment(store CredentialStore, synth Synthesizer) *Enrollment {
	return &Enrollment{store: store, synth: synth}
}

// Step returns the current screen.
func (e *Enrollment) Step() Step {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step
}

// Method returns the input method chosen at the start of the flow.
func (e *Enrollment) Method() Method {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.method
}

// LastError returns the localized message from the most recent failed
// submission, cleared on the next transition.
func (e *Enrollment) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastError
}

// ChooseMethod leaves method selection for identity capture.
func (e *Enrollment) ChooseMethod(m Method) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.step != StepMethodSelect {
		return
	}
	e.method = m
	e.step = StepCaptureIdentity
	e.lastError = ""
}

// SubmitName records the identity and advances to secret capture. Voice
// callers pass the capture session's confirmed value here.
func (e *Enrollment) SubmitName(name string) error {
	normalized, err := speech.Normalize(speech.ActionName, name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.step != StepCaptureIdentity {
		return fmt.Errorf("flow: name submitted at %s", e.step)
	}
	e.name = normalized
	e.step = StepCaptureSecret
	e.lastError = ""
	return nil
}

// Back steps to the previous capture screen. Captured values survive so the
// user does not re-enter them when coming forward again.
func (e *Enrollment) Back() {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.step {
	case StepCaptureIdentity:
		e.step = StepMethodSelect
	case StepCaptureSecret:
		e.step = StepCaptureIdentity
	}
	e.lastError = ""
}

// SubmitPIN validates the secret and runs the registration round-trip. The
// submit is single-flight: activations while a submission is outstanding are
// ignored. On failure the flow returns to secret capture with a localized
// message.
func (e *Enrollment) SubmitPIN(ctx context.Context, pin string) {
	normalized, err := speech.Normalize(speech.ActionPIN, pin)

	e.mu.Lock()
	if e.step != StepCaptureSecret || e.submitting {
		e.mu.Unlock()
		return
	}
	if err != nil {
		e.lastError = "يجب أن يكون الرقم السري 4 أرقام."
		e.mu.Unlock()
		return
	}
	e.submitting = true
	e.step = StepSubmitting
	e.lastError = ""
	name := e.name
	e.mu.Unlock()

	userID, err := e.store.Register(ctx, name, normalized)
	if err != nil {
		log.Printf("flow: register: %v", err)
		e.mu.Lock()
		e.submitting = false
		e.step = StepCaptureSecret
		e.lastError = "حدث خطأ أثناء إنشاء الحساب. حاول مرة أخرى."
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	e.userID = userID
	e.step = StepPreparingConfirmation
	e.mu.Unlock()

	warning, replay := e.prepareClips(ctx, userID)

	e.mu.Lock()
	e.warningClip = warning
	e.replayClip = replay
	e.step = StepConfirmation
	e.submitting = false
	e.mu.Unlock()
}

// prepareClips fetches the long "remember this number" warning and the short
// replay clip concurrently. Either clip may come back nil; a synthesis
// failure only costs the clip, never the confirmation screen.
func (e *Enrollment) prepareClips(ctx context.Context, userID int) (warning, replay []byte) {
	if e.synth == nil {
		return nil, nil
	}
	id := strconv.Itoa(userID)
	warningText := "انتبه جيدا، رقم المستخدم الخاص بك هو " + id +
		". من فضلك احفظ هذا الرقم في مكان آمن أو اكتبه على ورقة. هذا الرقم مهم جدا للدخول لحسابك مرة أخرى. لو نسيت الرقم ده، مش هتقدر تدخل على حسابك تاني."
	replayText := "رقم المستخدم هو: " + id

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		clip, err := e.synth.Synthesize(ctx, warningText, tts.UtteranceGeneral)
		if err != nil {
			log.Printf("flow: id warning synthesis: %v", err)
			return
		}
		warning = clip
	}()
	go func() {
		defer wg.Done()
		clip, err := e.synth.Synthesize(ctx, replayText, tts.UtteranceGeneral)
		if err != nil {
			log.Printf("flow: id replay synthesis: %v", err)
			return
		}
		replay = clip
	}()
	wg.Wait()
	return warning, replay
}

// AssignedUserID returns the server-assigned id once the flow reaches
// confirmation.
func (e *Enrollment) AssignedUserID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}

// UserName returns the name the enrollment registered under.
func (e *Enrollment) UserName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}

// WarningClip returns the long "remember this number" audio, nil when its
// synthesis failed.
func (e *Enrollment) WarningClip() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.warningClip
}

// ReplayClip returns the short id read-back. Replaying it any number of
// times hands out the same bytes.
func (e *Enrollment) ReplayClip() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.replayClip
}

// CanReplay reports whether the replay control should be offered.
func (e *Enrollment) CanReplay() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step == StepConfirmation && e.replayClip != nil
}

// Proceed leaves the confirmation screen for the lessons.
func (e *Enrollment) Proceed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.step == StepConfirmation {
		e.step = StepDone
	}
}

// Authentication walks an existing user through login. Same shape as
// Enrollment with a numeric identity and no server-assigned id.
type Authentication struct {
	store CredentialStore

	mu         sync.Mutex
	step       Step
	method     Method
	userID     int
	submitting bool
	name       string
	lastError  string
}

// NewAuthentication starts a login flow at method selection.
func NewAuthentication(store CredentialStore) *Authentication {
	return &Authentication{store: store}
}

func (a *Authentication) Step() Step {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.step
}

func (a *Authentication) Method() Method {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.method
}

// LastError returns the localized message from the most recent failure.
func (a *Authentication) LastError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastError
}

// UserName returns the account name once login succeeds.
func (a *Authentication) UserName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

// UserID returns the id the user authenticated as.
func (a *Authentication) UserID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userID
}

func (a *Authentication) ChooseMethod(m Method) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.step != StepMethodSelect {
		return
	}
	a.method = m
	a.step = StepCaptureIdentity
	a.lastError = ""
}

// SubmitUserID records the numeric identity and advances to secret capture.
func (a *Authentication) SubmitUserID(id string) error {
	digits, err := speech.Normalize(speech.ActionUserID, id)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return speech.ErrOutOfRange
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.step != StepCaptureIdentity {
		return fmt.Errorf("flow: user id submitted at %s", a.step)
	}
	a.userID = n
	a.step = StepCaptureSecret
	a.lastError = ""
	return nil
}

func (a *Authentication) Back() {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.step {
	case StepCaptureIdentity:
		a.step = StepMethodSelect
	case StepCaptureSecret:
		a.step = StepCaptureIdentity
	}
	a.lastError = ""
}

// SubmitPIN runs the login round-trip, single-flight. A credential mismatch
// returns to secret capture with the generic message; it never says whether
// the id or the pin was wrong.
func (a *Authentication) SubmitPIN(ctx context.Context, pin string) {
	normalized, err := speech.Normalize(speech.ActionPIN, pin)

	a.mu.Lock()
	if a.step != StepCaptureSecret || a.submitting {
		a.mu.Unlock()
		return
	}
	if err != nil {
		a.lastError = "يجب أن يكون الرقم السري 4 أرقام."
		a.mu.Unlock()
		return
	}
	a.submitting = true
	a.step = StepSubmitting
	a.lastError = ""
	userID := a.userID
	a.mu.Unlock()

	name, err := a.store.Login(ctx, userID, normalized)
	if err != nil {
		a.mu.Lock()
		a.submitting = false
		a.step = StepCaptureSecret
		if errors.Is(err, ErrInvalidCredentials) {
			a.lastError = "رقم المستخدم أو الرقم السري غير صحيح."
		} else {
			log.Printf("flow: login: %v", err)
			a.lastError = "حدث خطأ أثناء تسجيل الدخول. حاول مرة أخرى."
		}
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	a.name = name
	a.step = StepDone
	a.submitting = false
	a.mu.Unlock()
}
