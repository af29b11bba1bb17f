package lifecycle

import (
	"errors"
	"fmt"

	"github.com/phillip/campus-events-go/models"
)

var (
	// ErrInvalidTransition is returned when the precondition of the requested edge is false.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrMissingJustification is returned when a rejection carries no reason.
	ErrMissingJustification = errors.New("missing justification")
	// ErrMissingRequiredDocument is returned when an approval carries no document.
	ErrMissingRequiredDocument = errors.New("missing required document")
	// ErrStaleState is returned when the stored event changed after the snapshot was fetched.
	ErrStaleState = errors.New("stale state")
)

// Error describes a refused transition. It unwraps to one of the sentinel
// errors above so callers can branch with errors.Is.
type Error struct {
	Err        error
	Transition Transition
	From       models.EventState
	Detail     string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s from %s: %v", e.Transition, e.From, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable reports whether err belongs to the lifecycle taxonomy. Every
// lifecycle failure is recoverable by re-fetching the event.
func Recoverable(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrMissingJustification) ||
		errors.Is(err, ErrMissingRequiredDocument) ||
		errors.Is(err, ErrStaleState)
}

func refuse(err error, t Transition, from models.EventState, detail string) error {
	return &Error{Err: err, Transition: t, From: from, Detail: detail}
}
