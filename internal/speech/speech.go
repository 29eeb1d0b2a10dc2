// Package speech wraps the Gemini generative API for audio transcription and
// handwriting-letter detection.
package speech

import (
	"errors"
	"strings"
)

// Action selects the transcription prompt and post-processing for one field.
type Action string

const (
	ActionName       Action = "name"
	ActionUserID     Action = "userId"
	ActionPIN        Action = "pin"
	ActionTranscript Action = "transcript"
)

// ParseAction maps the wire value to an Action, defaulting to transcript.
func ParseAction(s string) Action {
	switch Action(s) {
	case ActionName, ActionUserID, ActionPIN:
		return Action(s)
	default:
		return ActionTranscript
	}
}

// Validation failures for normalized transcripts. Callers map these to
// user-facing messages.
var (
	ErrEmptyTranscript  = errors.New("empty transcript")
	ErrOutOfRange       = errors.New("user id out of range")
	ErrInvalidPINFormat = errors.New("pin is not 4 digits")
)

// UserID bounds accepted by the numeric-id field.
const (
	MinUserID = 1
	MaxUserID = 99999
)

// promptFor returns the model instruction for an action. The userId prompt
// carries the Egyptian-Arabic examples covering both digit-by-digit and
// whole-number speech; the ambiguity is resolved by the model, not by us.
func promptFor(action Action) string {
	switch action {
	case ActionName:
		return "Transcribe this audio of someone saying their name in Arabic. Return ONLY the name, no additional text."
	case ActionUserID:
		return `Transcribe this audio of someone saying his user id in Arabic. he might say it digit by digit if so then concatenate them and return the whole number. or he might say the whole number in one go.
The person will most probably be Egyptian so take that into account, he might say the numbers in a way that is not standard in Arabic.
Examples:
  - Digit by digit: واحد, اثنان, ثلاثة, ثمانية This should return 1238
  - Whole number: ثلاثة عشر This should return 13
  - Whole number: سبعة This should return 7
  - Whole number: مية واحد وخمسين This should return 151
  - Whole number: ثلاثة و سبعون This should return 73
  - Whole number: تلاتة وسبعين This should return 73`
	case ActionPIN:
		return "Transcribe this audio of someone saying a 4-digit PIN in Arabic. Return ONLY the 4 digits, no additional text."
	default:
		return "Transcribe this audio in Arabic."
	}
}

// Normalize post-processes a raw transcript for the given action and
// validates it. The returned string is the typed value (trimmed name, digit
// string); validation failures return one of the Err* sentinels.
func Normalize(action Action, raw string) (string, error) {
	text := strings.TrimSpace(raw)
	switch action {
	case ActionName:
		if text == "" {
			return "", ErrEmptyTranscript
		}
		return text, nil
	case ActionUserID:
		digits := stripNonDigits(text)
		n := 0
		for _, r := range digits {
			n = n*10 + int(r-'0')
			if n > MaxUserID {
				return "", ErrOutOfRange
			}
		}
		if digits == "" || n < MinUserID {
			return "", ErrOutOfRange
		}
		return digits, nil
	case ActionPIN:
		digits := stripNonDigits(text)
		if len(digits) != 4 {
			return "", ErrInvalidPINFormat
		}
		return digits, nil
	default:
		return text, nil
	}
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if v, ok := digitValue(r); ok {
			// Arabic-Indic digits transcribe occasionally; fold them to ASCII.
			b.WriteRune('0' + rune(v))
		}
	}
	return b.String()
}

// digitValue folds the Arabic-Indic and Extended Arabic-Indic digit ranges.
// Digits from any other script are not folded; the caller skips them.
func digitValue(r rune) (int, bool) {
	switch {
	case r >= '٠' && r <= '٩':
		return int(r - '٠'), true
	case r >= '۰' && r <= '۹':
		return int(r - '۰'), true
	default:
		return 0, false
	}
}
