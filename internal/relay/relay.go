// Package relay routes switch events into the session registry and
// forwards the resulting changes to the agent console hub.
package relay

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/call-deck/backend/internal/session"
	"github.com/call-deck/backend/internal/stream"
	"github.com/call-deck/backend/internal/verify"
)

// Notifier receives the notifications the presentation layer consumes.
type Notifier interface {
	SessionChanged(session.Change)
	ConnectionChanged(stream.ConnState)
	FatalDisconnect()
}

// Relay is the orchestrator between the stream client, the registry,
// the verification service, and the hub.
type Relay struct {
	registry *session.Registry
	notifier Notifier
	verifier verify.Verifier
	grace    time.Duration

	mu        sync.Mutex
	evictions map[string]*time.Timer
}

func New(registry *session.Registry, notifier Notifier, verifier verify.Verifier, evictionGrace time.Duration) *Relay {
	r := &Relay{
		registry:  registry,
		notifier:  notifier,
		verifier:  verifier,
		grace:     evictionGrace,
		evictions: make(map[string]*time.Timer),
	}
	registry.SetListener(r.onChange)
	return r
}

// Bind subscribes the relay to a stream client's events and lifecycle
// notifications.
func (r *Relay) Bind(c *stream.Client) {
	c.OnEvent(r.HandleEvent)
	c.OnStateChange(r.notifier.ConnectionChanged)
	c.OnFatal(r.notifier.FatalDisconnect)
}

// HandleEvent applies one inbound event. Contract violations (duplicate
// or unknown sessions, out-of-order events) are logged and the event is
// discarded; the feed itself is never interrupted.
func (r *Relay) HandleEvent(ev session.Event) {
	var err error
	if ev.Type == session.EventCallStarted {
		err = r.registry.Create(ev)
	} else {
		err = r.registry.Dispatch(ev.SessionID, ev)
	}
	if err != nil {
		log.Printf("relay: %s for session %s: %v", ev.Type, ev.SessionID, err)
	}
}

// SubmitVerification runs one agent-initiated verification attempt: it
// moves an Identified session behind the verification gate, asks the
// verification service, and applies the outcome. If the session ended
// or was evicted while the request was in flight, the late answer is
// not applied and the registry's error is returned.
func (r *Relay) SubmitVerification(ctx context.Context, sessionID, method, value string) (verify.Result, error) {
	s, ok := r.registry.Get(sessionID)
	if !ok {
		return verify.Result{}, session.ErrUnknownSession
	}

	if s.Phase == session.Identified {
		err := r.registry.Dispatch(sessionID, session.Event{
			Type:       session.EventVerificationRequested,
			SessionID:  sessionID,
			ReceivedAt: time.Now(),
		})
		// A concurrent event may have moved the session already; the
		// verify_submit dispatch below gives the definitive answer.
		if err != nil && !errors.Is(err, session.ErrInvalidTransition) {
			return verify.Result{}, err
		}
	}

	res, err := r.verifier.Submit(ctx, sessionID, method, value)
	if err != nil {
		log.Printf("relay: verification service error for session %s: %v", sessionID, err)
		res = verify.Result{Accepted: false, Reason: "unavailable"}
	}

	err = r.registry.Dispatch(sessionID, session.Event{
		Type:       session.EventVerifySubmit,
		SessionID:  sessionID,
		Method:     method,
		Accepted:   res.Accepted,
		Reason:     res.Reason,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		log.Printf("relay: discarding stale verification result for session %s: %v", sessionID, err)
		return verify.Result{}, err
	}
	return res, nil
}

// Account returns the caller record for a session. It is gated: the
// caller must have passed verification (session Active), otherwise
// session.ErrNotVerified.
func (r *Relay) Account(sessionID string) (*session.CallSession, error) {
	s, ok := r.registry.Get(sessionID)
	if !ok {
		return nil, session.ErrUnknownSession
	}
	if err := session.RequireVerified(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Stop cancels all pending evictions.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.evictions {
		t.Stop()
		delete(r.evictions, id)
	}
}

// onChange runs synchronously under the registry lock; it must not call
// back into the registry.
func (r *Relay) onChange(ch session.Change) {
	if ch.Type == session.ChangeTerminal {
		r.scheduleEviction(ch.SessionID)
	}
	r.notifier.SessionChanged(ch)
}

// scheduleEviction removes an ended session after the grace period, so
// consoles can still show the wrap-up before it disappears.
func (r *Relay) scheduleEviction(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.evictions[sessionID]; ok {
		return
	}
	r.evictions[sessionID] = time.AfterFunc(r.grace, func() {
		r.mu.Lock()
		delete(r.evictions, sessionID)
		r.mu.Unlock()
		if err := r.registry.Evict(sessionID); err != nil && !errors.Is(err, session.ErrUnknownSession) {
			log.Printf("relay: evicting session %s: %v", sessionID, err)
		}
	})
}
