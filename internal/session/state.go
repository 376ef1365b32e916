package session

import (
	"encoding/json"
	"time"
)

// Phase is the lifecycle phase of a call session. Phases only move
// forward; Ended is absorbing.
type Phase int

const (
	Incoming Phase = iota
	Identified
	PendingVerification
	Verified
	Active
	Ended
)

var phaseNames = map[Phase]string{
	Incoming:            "incoming",
	Identified:          "identified",
	PendingVerification: "pending_verification",
	Verified:            "verified",
	Active:              "active",
	Ended:               "ended",
}

var phaseFromName = map[string]Phase{
	"incoming":             Incoming,
	"identified":           Identified,
	"pending_verification": PendingVerification,
	"verified":             Verified,
	"active":               Active,
	"ended":                Ended,
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := phaseFromName[s]; ok {
		*p = v
	}
	return nil
}

// Outcome classifies a verification attempt.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// VerificationAttempt records one verification exchange within the current
// cycle. The value the caller provided is never stored; only the method and
// outcome are kept.
type VerificationAttempt struct {
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Outcome Outcome   `json:"outcome"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// CallSession is one call's lifecycle from start to end. SessionID is
// assigned at creation and immutable; CallerRef is set once at the
// Identified transition; Verified latches true and never reverts.
type CallSession struct {
	SessionID       string                `json:"sessionId"`
	Phase           Phase                 `json:"phase"`
	Verified        bool                  `json:"verified"`
	ANI             string                `json:"ani,omitempty"`
	DNIS            string                `json:"dnis,omitempty"`
	CallerRef       string                `json:"callerRef,omitempty"`
	ScreenPop       json.RawMessage       `json:"screenPop,omitempty"`
	StartedAt       time.Time             `json:"startedAt"`
	AnsweredAt      *time.Time            `json:"answeredAt,omitempty"`
	EndedAt         *time.Time            `json:"endedAt,omitempty"`
	DurationSeconds int                   `json:"durationSeconds,omitempty"`
	Disposition     string                `json:"disposition,omitempty"`
	Lane            int                   `json:"lane"`
	Attempts        []VerificationAttempt `json:"attempts,omitempty"`
}

// Clone returns a deep copy of the CallSession, duplicating pointer and
// slice fields so the copy can be mutated independently of the original.
func (s *CallSession) Clone() *CallSession {
	c := *s
	if s.AnsweredAt != nil {
		t := *s.AnsweredAt
		c.AnsweredAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if len(s.ScreenPop) > 0 {
		c.ScreenPop = make(json.RawMessage, len(s.ScreenPop))
		copy(c.ScreenPop, s.ScreenPop)
	}
	if len(s.Attempts) > 0 {
		c.Attempts = make([]VerificationAttempt, len(s.Attempts))
		copy(c.Attempts, s.Attempts)
	}
	return &c
}

func (s *CallSession) IsTerminal() bool {
	return s.Phase == Ended
}
