package session

import "github.com/google/uuid"

// Transition applies one event to a session. Transitions are strictly
// ordered: any event that is not legal in the current phase returns an
// *InvalidTransitionError and leaves the session unchanged. Ended is
// absorbing; no event moves a session out of it.
//
// call_started is handled by Registry.Create, never here; receiving it
// for an existing session is always invalid.
func Transition(s *CallSession, ev Event) error {
	if s.Phase == Ended {
		return invalidTransition(s, ev)
	}

	switch ev.Type {
	case EventIdentityResolved:
		if s.Phase != Incoming {
			return invalidTransition(s, ev)
		}
		s.Phase = Identified
		s.CallerRef = ev.CallerRef
		s.ScreenPop = ev.ScreenPop

	case EventVerificationRequested:
		if s.Phase != Identified {
			return invalidTransition(s, ev)
		}
		s.Phase = PendingVerification

	case EventVerifySubmit:
		if s.Phase != PendingVerification {
			return invalidTransition(s, ev)
		}
		attempt := VerificationAttempt{
			ID:     uuid.NewString(),
			Method: ev.Method,
			At:     ev.ReceivedAt,
		}
		if ev.Accepted {
			attempt.Outcome = OutcomeAccepted
			s.Verified = true
			s.Phase = Verified
		} else {
			// Rejected attempts are recorded but do not change phase,
			// leaving the caller free to retry.
			attempt.Outcome = OutcomeRejected
			attempt.Reason = ev.Reason
		}
		s.Attempts = append(s.Attempts, attempt)

	case EventCallAnswered:
		if s.Phase != Verified {
			return invalidTransition(s, ev)
		}
		s.Phase = Active
		t := ev.ReceivedAt
		s.AnsweredAt = &t

	case EventCallEnded:
		switch s.Phase {
		case Identified, PendingVerification, Verified, Active:
		default:
			return invalidTransition(s, ev)
		}
		s.Phase = Ended
		t := ev.ReceivedAt
		s.EndedAt = &t
		s.DurationSeconds = ev.DurationSeconds
		s.Disposition = ev.Disposition

	default:
		return invalidTransition(s, ev)
	}

	return nil
}

// RequireVerified gates sensitive operations. It passes only once the
// session is Active, which is reachable only through Verified, so
// callers cannot bypass the verification step.
func RequireVerified(s *CallSession) error {
	if s.Phase != Active {
		return ErrNotVerified
	}
	return nil
}
