package session

import (
	"encoding/json"
	"time"
)

// EventType discriminates the closed set of call events the backend
// understands. Anything else is rejected at the transport boundary
// before it reaches a session.
type EventType int

const (
	EventCallStarted EventType = iota
	EventIdentityResolved
	EventVerificationRequested
	EventVerifySubmit
	EventCallAnswered
	EventCallEnded
)

var eventNames = map[EventType]string{
	EventCallStarted:           "call_started",
	EventIdentityResolved:      "identity_resolved",
	EventVerificationRequested: "verification_requested",
	EventVerifySubmit:          "verify_submit",
	EventCallAnswered:          "call_answered",
	EventCallEnded:             "call_ended",
}

func (t EventType) String() string {
	if s, ok := eventNames[t]; ok {
		return s
	}
	return "unknown"
}

// Event is one inbound call event after validation. Only the fields
// relevant to its Type are populated. Events are immutable once built
// and consumed exactly once by the registry.
type Event struct {
	Type       EventType
	SessionID  string
	ReceivedAt time.Time

	// call_started
	ANI  string
	DNIS string

	// identity_resolved
	CallerRef string
	ScreenPop json.RawMessage

	// verify_submit / verification_result
	Method   string
	Accepted bool
	Reason   string

	// call_ended
	DurationSeconds int
	Disposition     string
}

// ChangeType classifies registry change notifications.
type ChangeType int

const (
	ChangeCreated  ChangeType = iota // session created on call_started
	ChangeUpdated                    // phase advanced (or attempt recorded)
	ChangeTerminal                   // session reached Ended
	ChangeEvicted                    // session removed from the registry
)

// Change carries a session change to observers. State is a deep copy,
// safe to retain.
type Change struct {
	Type        ChangeType
	SessionID   string
	Previous    Phase
	Current     Phase
	State       *CallSession
	ActiveCount int
}

// ChangeListener receives registry change notifications. Listeners run
// synchronously while the registry lock is held and must not call back
// into the registry.
type ChangeListener func(Change)
