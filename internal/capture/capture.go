// Package capture runs one voice-input round trip: record, transcribe,
// validate, and read the value back for confirmation.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/Abdo12KM/nour-alma3refa/internal/speech"
	"github.com/Abdo12KM/nour-alma3refa/internal/tts"
)

// Recorder abstracts the microphone. Start may fail when the user denies
// access; Stop returns the captured audio and its MIME type.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (audio []byte, mimeType string, err error)
}

// Transcriber converts field audio into a validated value.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string, action speech.Action) (speech.Result, error)
}

// Synthesizer produces the spoken confirmation clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, kind tts.UtteranceType) ([]byte, error)
}

// Status is the session's lifecycle state.
type Status int

const (
	StatusIdle Status = iota
	StatusRecording
	StatusProcessing
	StatusAwaitingConfirmation
	StatusConfirmed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRecording:
		return "recording"
	case StatusProcessing:
		return "processing"
	case StatusAwaitingConfirmation:
		return "awaiting_confirmation"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Reason classifies a capture failure.
type Reason string

const (
	ReasonMicrophone     Reason = "microphone"
	ReasonEmptyRecording Reason = "empty_recording"
	ReasonNotHeard       Reason = "not_heard"
	ReasonOutOfRange     Reason = "out_of_range"
	ReasonInvalidPIN     Reason = "invalid_pin"
	ReasonUpstream       Reason = "upstream"
)

// Failure carries what went wrong plus the Arabic line and feedback clip the
// caller should play.
type Failure struct {
	Reason        Reason
	Message       string
	FeedbackSound string
}

// Events are optional callbacks fired outside the session lock.
type Events struct {
	// OnAwaitingConfirmation delivers the validated value, the raw
	// transcript, and the synthesized confirmation clip.
	OnAwaitingConfirmation func(value, transcript string, clip []byte)
	OnFailure              func(Failure)
}

// Session drives one field capture. Safe for concurrent use; a Reset while a
// recording is being processed discards that recording's result.
type Session struct {
	kind   speech.Action
	rec    Recorder
	stt    Transcriber
	synth  Synthesizer
	events Events

	mu         sync.Mutex
	status     Status
	epoch      uint64
	value      string
	transcript string
	clip       []byte
	failure    Failure
}

// NewSession builds a session for one field kind (name, userId or pin).
func NewSession(kind speech.Action, rec Recorder, stt Transcriber, synth Synthesizer, events Events) *Session {
	return &Session{kind: kind, rec: rec, stt: stt, synth: synth, events: events}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Value returns the validated value once the session reaches confirmation.
func (s *Session) Value() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Transcript returns the raw transcript from the last successful recognition.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// ConfirmationClip returns the synthesized read-back audio, nil when the
// synthesizer failed or has not run.
func (s *Session) ConfirmationClip() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clip
}

// LastFailure returns the failure details when Status is StatusFailed.
func (s *Session) LastFailure() Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Start begins recording. Denied microphone access fails the session rather
// than returning an error; the caller reads LastFailure for the feedback to
// play. Restarting from a settled state discards the previous attempt: the
// epoch advances so a result still in flight cannot land on the new one.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	switch s.status {
	case StatusRecording, StatusProcessing:
		s.mu.Unlock()
		return
	}
	s.epoch++
	s.status = StatusRecording
	s.value = ""
	s.transcript = ""
	s.clip = nil
	s.failure = Failure{}
	s.mu.Unlock()

	if err := s.rec.Start(ctx); err != nil {
		log.Printf("capture: microphone start: %v", err)
		s.fail(Failure{
			Reason:        ReasonMicrophone,
			Message:       "لا يمكن الوصول إلى الميكروفون. تأكد من السماح باستخدامه.",
			FeedbackSound: "sounds/error.wav",
		})
	}
}

// Stop ends the recording and processes the audio. Processing runs on the
// calling goroutine; a concurrent Reset makes its result fall on the floor.
func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.status != StatusRecording {
		s.mu.Unlock()
		return
	}
	s.status = StatusProcessing
	epoch := s.epoch
	s.mu.Unlock()

	audio, mimeType, err := s.rec.Stop(ctx)
	if err != nil {
		log.Printf("capture: recorder stop: %v", err)
		s.failAt(epoch, Failure{
			Reason:        ReasonMicrophone,
			Message:       "حدث خطأ أثناء التسجيل. حاول مرة أخرى.",
			FeedbackSound: "sounds/error.wav",
		})
		return
	}
	if len(audio) == 0 {
		// Nothing recorded; the transcriber is never consulted.
		s.failAt(epoch, Failure{
			Reason:        ReasonEmptyRecording,
			Message:       "لم يتم تسجيل أي صوت. اضغط على الزر وتحدث بوضوح.",
			FeedbackSound: "sounds/try_again.wav",
		})
		return
	}

	s.process(ctx, epoch, audio, mimeType)
}

func (s *Session) process(ctx context.Context, epoch uint64, audio []byte, mimeType string) {
	res, err := s.stt.Transcribe(ctx, audio, mimeType, s.kind)
	if err != nil {
		s.failAt(epoch, classify(s.kind, err))
		return
	}

	text, err := s.confirmationText(res.Text)
	if err != nil {
		s.failAt(epoch, classify(s.kind, err))
		return
	}

	// A dead synthesizer downgrades to confirmation without read-back; the
	// value itself is still good.
	var clip []byte
	if s.synth != nil {
		clip, err = s.synth.Synthesize(ctx, text, utteranceFor(s.kind))
		if err != nil {
			log.Printf("capture: confirmation synthesis: %v", err)
			clip = nil
		}
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.status = StatusAwaitingConfirmation
	s.value = res.Text
	s.transcript = res.Transcript
	s.clip = clip
	s.mu.Unlock()

	if s.events.OnAwaitingConfirmation != nil {
		s.events.OnAwaitingConfirmation(res.Text, res.Transcript, clip)
	}
}

// Confirm accepts the captured value. Returns the value and true only when
// the session was awaiting confirmation.
func (s *Session) Confirm() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusAwaitingConfirmation {
		return "", false
	}
	s.status = StatusConfirmed
	return s.value, true
}

// Reset returns the session to idle for a retry. Any in-flight processing is
// superseded and its result discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	s.epoch++
	s.status = StatusIdle
	s.value = ""
	s.transcript = ""
	s.clip = nil
	s.failure = Failure{}
	s.mu.Unlock()
}

func (s *Session) fail(f Failure) {
	s.mu.Lock()
	s.status = StatusFailed
	s.failure = f
	s.mu.Unlock()
	if s.events.OnFailure != nil {
		s.events.OnFailure(f)
	}
}

// failAt applies the failure only if no Reset happened since epoch was read.
func (s *Session) failAt(epoch uint64, f Failure) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.status = StatusFailed
	s.failure = f
	s.mu.Unlock()
	if s.events.OnFailure != nil {
		s.events.OnFailure(f)
	}
}

// confirmationText builds the Arabic read-back line for the validated value.
// Digit fields are read digit by digit so the user can check each one.
func (s *Session) confirmationText(value string) (string, error) {
	switch s.kind {
	case speech.ActionName:
		return fmt.Sprintf("اسمك هو %s. هل هذا صحيح؟", value), nil
	case speech.ActionUserID:
		return fmt.Sprintf("رقم المستخدم الخاص بك هو %s. هل هذا صحيح؟", spaceDigits(value)), nil
	case speech.ActionPIN:
		return fmt.Sprintf("الرمز السري الخاص بك هو %s. هل هذا صحيح؟", spaceDigits(value)), nil
	default:
		return "", fmt.Errorf("capture: unsupported field kind %q", s.kind)
	}
}

func spaceDigits(s string) string {
	return strings.Join(strings.Split(s, ""), " ")
}

func utteranceFor(kind speech.Action) tts.UtteranceType {
	switch kind {
	case speech.ActionName:
		return tts.UtteranceName
	case speech.ActionPIN:
		return tts.UtterancePIN
	default:
		return tts.UtteranceGeneral
	}
}

// classify maps validation and upstream errors to user-facing failures.
func classify(kind speech.Action, err error) Failure {
	switch {
	case errors.Is(err, speech.ErrInvalidPINFormat):
		return Failure{
			Reason:        ReasonInvalidPIN,
			Message:       "يجب أن يكون الرقم السري 4 أرقام. حاول مرة أخرى.",
			FeedbackSound: "sounds/try_again.wav",
		}
	case errors.Is(err, speech.ErrOutOfRange):
		return Failure{
			Reason:        ReasonOutOfRange,
			Message:       "رقم المستخدم غير صحيح. قل رقما بين واحد وتسعة وتسعين ألفا.",
			FeedbackSound: "sounds/try_again.wav",
		}
	case errors.Is(err, speech.ErrEmptyTranscript):
		return Failure{
			Reason:        ReasonNotHeard,
			Message:       "لم أسمعك جيدا. حاول مرة أخرى وتحدث بوضوح.",
			FeedbackSound: "sounds/try_again.wav",
		}
	default:
		log.Printf("capture: transcription (%s): %v", kind, err)
		return Failure{
			Reason:        ReasonUpstream,
			Message:       "حدث خطأ. حاول مرة أخرى.",
			FeedbackSound: "sounds/error.wav",
		}
	}
}
