package hub

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/call-deck/backend/internal/session"
	"github.com/call-deck/backend/internal/stream"
)

func newTestBroadcaster(registry *session.Registry, redact *session.RedactionFilter) *Broadcaster {
	if redact == nil {
		redact = &session.RedactionFilter{}
	}
	return &Broadcaster{
		clients:  make(map[*client]bool),
		registry: registry,
		redact:   redact,
	}
}

// addTestClient registers a client whose write pump is never started, so
// everything broadcast to it can be read back from its send channel.
func addTestClient(b *Broadcaster, buffer int) *client {
	c := &client{
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()
	return c
}

type envelope struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

func readEnvelope(t *testing.T, c *client) envelope {
	t.Helper()
	select {
	case data := <-c.send:
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshaling broadcast: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("no message broadcast")
		return envelope{}
	}
}

func TestSessionChangedBroadcast(t *testing.T) {
	b := newTestBroadcaster(session.NewRegistry(), &session.RedactionFilter{MaskNumbers: true})
	c := addTestClient(b, 4)

	b.SessionChanged(session.Change{
		Type:      session.ChangeUpdated,
		SessionID: "CALL-1",
		Previous:  session.Incoming,
		Current:   session.Identified,
		State: &session.CallSession{
			SessionID: "CALL-1",
			Phase:     session.Identified,
			ANI:       "+15551234567",
		},
	})

	env := readEnvelope(t, c)
	if env.Type != MsgSessionChanged {
		t.Fatalf("type = %s, want %s", env.Type, MsgSessionChanged)
	}
	var p SessionChangedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if p.SessionID != "CALL-1" || p.Previous != session.Incoming || p.Current != session.Identified {
		t.Errorf("payload = %+v", p)
	}
	if p.Session.ANI == "+15551234567" {
		t.Error("ANI went out unmasked")
	}
}

func TestEvictionBroadcastsRemoval(t *testing.T) {
	b := newTestBroadcaster(session.NewRegistry(), nil)
	c := addTestClient(b, 4)

	b.SessionChanged(session.Change{Type: session.ChangeEvicted, SessionID: "CALL-1"})

	env := readEnvelope(t, c)
	if env.Type != MsgSessionRemoved {
		t.Fatalf("type = %s, want %s", env.Type, MsgSessionRemoved)
	}
	var p SessionRemovedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if p.SessionID != "CALL-1" {
		t.Errorf("sessionId = %q", p.SessionID)
	}
}

func TestConnectionStatusBroadcast(t *testing.T) {
	b := newTestBroadcaster(session.NewRegistry(), nil)
	c := addTestClient(b, 4)

	b.ConnectionChanged(stream.Reconnecting)

	env := readEnvelope(t, c)
	if env.Type != MsgConnectionStatus {
		t.Fatalf("type = %s, want %s", env.Type, MsgConnectionStatus)
	}
	var p ConnectionStatusPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if p.State != "reconnecting" {
		t.Errorf("state = %q, want reconnecting", p.State)
	}
	if b.Upstream() != stream.Reconnecting {
		t.Errorf("Upstream() = %s", b.Upstream())
	}
}

func TestFatalDisconnectBroadcast(t *testing.T) {
	b := newTestBroadcaster(session.NewRegistry(), nil)
	c := addTestClient(b, 4)

	b.FatalDisconnect()

	if env := readEnvelope(t, c); env.Type != MsgFatalDisconnect {
		t.Fatalf("type = %s, want %s", env.Type, MsgFatalDisconnect)
	}
}

func TestSnapshotMessageRedacts(t *testing.T) {
	reg := session.NewRegistry()
	if err := reg.Create(session.Event{
		Type:      session.EventCallStarted,
		SessionID: "CALL-1",
		ANI:       "+15551234567",
		DNIS:      "+18005550100",
	}); err != nil {
		t.Fatal(err)
	}

	b := newTestBroadcaster(reg, &session.RedactionFilter{MaskNumbers: true})

	msg := b.snapshotMessage()
	if msg.Type != MsgSnapshot {
		t.Fatalf("type = %s, want %s", msg.Type, MsgSnapshot)
	}
	p, ok := msg.Payload.(SnapshotPayload)
	if !ok {
		t.Fatalf("payload type %T", msg.Payload)
	}
	if len(p.Sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(p.Sessions))
	}
	if p.Sessions[0].ANI == "+15551234567" {
		t.Error("snapshot ANI unmasked")
	}
	if p.Upstream != "disconnected" {
		t.Errorf("upstream = %q, want disconnected", p.Upstream)
	}
}

func TestSequenceNumbersIncrease(t *testing.T) {
	b := newTestBroadcaster(session.NewRegistry(), nil)
	c := addTestClient(b, 8)

	b.FatalDisconnect()
	b.FatalDisconnect()
	b.FatalDisconnect()

	var last uint64
	for i := 0; i < 3; i++ {
		env := readEnvelope(t, c)
		if env.Seq <= last {
			t.Fatalf("seq %d not greater than previous %d", env.Seq, last)
		}
		last = env.Seq
	}
}

func TestSlowClientDisconnected(t *testing.T) {
	b := newTestBroadcaster(session.NewRegistry(), nil)
	c := addTestClient(b, 1)
	fast := addTestClient(b, 8)

	// Fill the slow client's buffer, then broadcast once more.
	b.FatalDisconnect()
	b.FatalDisconnect()

	if b.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1 after slow client dropped", b.ClientCount())
	}
	b.mu.RLock()
	_, slowStillThere := b.clients[c]
	b.mu.RUnlock()
	if slowStillThere {
		t.Error("slow client still registered")
	}
	if len(fast.send) != 2 {
		t.Errorf("fast client got %d messages, want 2", len(fast.send))
	}
}

// Multiple broadcast paths (the snapshot loop and immediate deltas) can
// find the same slow client at once; removing it from one path must not
// break a send still in flight on the other.
func TestConcurrentBroadcastsWithSlowClients(t *testing.T) {
	b := newTestBroadcaster(session.NewRegistry(), nil)
	for i := 0; i < 100; i++ {
		addTestClient(b, 0) // unbuffered: every send finds them slow
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.FatalDisconnect()
		}()
	}
	wg.Wait()

	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0 after slow clients dropped", got)
	}
}

func TestRemoveClientIdempotent(t *testing.T) {
	b := newTestBroadcaster(session.NewRegistry(), nil)
	c := addTestClient(b, 1)

	b.RemoveClient(c)
	b.RemoveClient(c)

	select {
	case <-c.done:
	default:
		t.Error("removed client was not signalled to stop")
	}
	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}

func TestNewBroadcasterDefaultFilter(t *testing.T) {
	b := NewBroadcaster(session.NewRegistry(), nil, time.Hour)
	defer b.Stop()

	if b.redact == nil {
		t.Fatal("default redaction filter should not be nil")
	}
	if !b.redact.IsNoop() {
		t.Error("default redaction filter should be a no-op")
	}
}
