package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/call-deck/backend/internal/session"
)

// ProtocolError reports a frame that could not be turned into a call
// event. Such frames are dropped and logged; they never terminate the
// connection.
type ProtocolError struct {
	Kind string // wire event kind, if it could be read
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("protocol: event %q: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("protocol: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type callStartedPayload struct {
	SessionID string `json:"sessionId"`
	ANI       string `json:"ani"`
	DNIS      string `json:"dnis"`
}

type identityResolvedPayload struct {
	SessionID string          `json:"sessionId"`
	CallerRef string          `json:"callerRef"`
	ScreenPop json.RawMessage `json:"screenPopData"`
}

type verificationResultPayload struct {
	SessionID string `json:"sessionId"`
	Method    string `json:"method"`
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason"`
}

type callAnsweredPayload struct {
	SessionID string `json:"sessionId"`
}

type callEndedPayload struct {
	SessionID       string `json:"sessionId"`
	DurationSeconds int    `json:"durationSeconds"`
	Disposition     string `json:"disposition"`
}

// ParseFrame validates a raw frame against the closed set of wire event
// kinds and returns the typed event. Unrecognized kinds and malformed
// payloads come back as *ProtocolError.
func ParseFrame(data []byte, receivedAt time.Time) (session.Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return session.Event{}, &ProtocolError{Err: fmt.Errorf("malformed frame: %w", err)}
	}

	ev := session.Event{ReceivedAt: receivedAt}

	switch f.Type {
	case "call_started":
		var p callStartedPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return session.Event{}, &ProtocolError{Kind: f.Type, Err: err}
		}
		ev.Type = session.EventCallStarted
		ev.SessionID = p.SessionID
		ev.ANI = p.ANI
		ev.DNIS = p.DNIS

	case "identity_resolved":
		var p identityResolvedPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return session.Event{}, &ProtocolError{Kind: f.Type, Err: err}
		}
		ev.Type = session.EventIdentityResolved
		ev.SessionID = p.SessionID
		ev.CallerRef = p.CallerRef
		ev.ScreenPop = p.ScreenPop

	case "verification_result":
		var p verificationResultPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return session.Event{}, &ProtocolError{Kind: f.Type, Err: err}
		}
		ev.Type = session.EventVerifySubmit
		ev.SessionID = p.SessionID
		ev.Method = p.Method
		ev.Accepted = p.Accepted
		ev.Reason = p.Reason

	case "call_answered":
		var p callAnsweredPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return session.Event{}, &ProtocolError{Kind: f.Type, Err: err}
		}
		ev.Type = session.EventCallAnswered
		ev.SessionID = p.SessionID

	case "call_ended":
		var p callEndedPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return session.Event{}, &ProtocolError{Kind: f.Type, Err: err}
		}
		ev.Type = session.EventCallEnded
		ev.SessionID = p.SessionID
		ev.DurationSeconds = p.DurationSeconds
		ev.Disposition = p.Disposition

	default:
		return session.Event{}, &ProtocolError{Kind: f.Type, Err: fmt.Errorf("unrecognized event kind")}
	}

	if ev.SessionID == "" {
		return session.Event{}, &ProtocolError{Kind: f.Type, Err: fmt.Errorf("missing sessionId")}
	}

	return ev, nil
}
