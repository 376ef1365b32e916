package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is matched by errors.Is against any
	// *InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNotVerified is returned when a verification-gated operation is
	// attempted on a session that has not reached Active.
	ErrNotVerified = errors.New("caller not verified")

	ErrUnknownSession     = errors.New("unknown session")
	ErrDuplicateSession   = errors.New("duplicate session")
	ErrSessionNotTerminal = errors.New("session not terminal")
)

// InvalidTransitionError reports an event that is not legal in the
// session's current phase. The session is left untouched.
type InvalidTransitionError struct {
	SessionID string
	From      Phase
	Event     EventType
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("session %s: event %s not valid in phase %s", e.SessionID, e.Event, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func invalidTransition(s *CallSession, ev Event) error {
	return &InvalidTransitionError{SessionID: s.SessionID, From: s.Phase, Event: ev.Type}
}
