package session

import "sync"

// Registry owns the set of live call sessions, keyed by session ID. All
// access goes through its methods; callers never see the live map or a
// live *CallSession; reads return deep copies.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
	nextLane int
	listener ChangeListener
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*CallSession),
	}
}

// SetListener registers the change listener. Must be called before the
// registry starts receiving events.
func (r *Registry) SetListener(fn ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = fn
}

// Create makes a new session from a call_started event. It fails with
// ErrDuplicateSession if the call identifier already maps to a live
// session.
func (r *Registry) Create(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[ev.SessionID]; ok {
		return ErrDuplicateSession
	}

	s := &CallSession{
		SessionID: ev.SessionID,
		Phase:     Incoming,
		ANI:       ev.ANI,
		DNIS:      ev.DNIS,
		StartedAt: ev.ReceivedAt,
		Lane:      r.nextLane,
	}
	r.nextLane++
	r.sessions[ev.SessionID] = s

	r.notifyLocked(Change{
		Type:      ChangeCreated,
		SessionID: s.SessionID,
		Previous:  Incoming,
		Current:   Incoming,
		State:     s.Clone(),
	})
	return nil
}

// Dispatch routes an event to its session's state machine. It fails with
// ErrUnknownSession if the session is absent (for example an event that
// arrives after eviction), and surfaces transition errors unchanged.
func (r *Registry) Dispatch(sessionID string, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}

	prev := s.Phase
	if err := Transition(s, ev); err != nil {
		return err
	}

	ct := ChangeUpdated
	if s.Phase == Ended {
		ct = ChangeTerminal
	}
	r.notifyLocked(Change{
		Type:      ct,
		SessionID: s.SessionID,
		Previous:  prev,
		Current:   s.Phase,
		State:     s.Clone(),
	})
	return nil
}

// Evict removes a session from the live map. Only terminal sessions may
// be evicted; anything else fails with ErrSessionNotTerminal.
func (r *Registry) Evict(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	if !s.IsTerminal() {
		return ErrSessionNotTerminal
	}
	delete(r.sessions, sessionID)

	r.notifyLocked(Change{
		Type:      ChangeEvicted,
		SessionID: s.SessionID,
		Previous:  s.Phase,
		Current:   s.Phase,
		State:     s.Clone(),
	})
	return nil
}

// Get returns a deep copy of the session, if live.
func (r *Registry) Get(sessionID string) (*CallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Snapshot returns deep copies of all live sessions.
func (r *Registry) Snapshot() []*CallSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*CallSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s.Clone())
	}
	return result
}

// Count returns the number of live sessions, terminal included.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ActiveCount returns the number of non-terminal live sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeCountLocked()
}

// notifyLocked invokes the listener with the write lock held, so
// observers see changes in the exact order they were applied.
func (r *Registry) notifyLocked(ch Change) {
	if r.listener == nil {
		return
	}
	ch.ActiveCount = r.activeCountLocked()
	r.listener(ch)
}

func (r *Registry) activeCountLocked() int {
	count := 0
	for _, s := range r.sessions {
		if !s.IsTerminal() {
			count++
		}
	}
	return count
}
