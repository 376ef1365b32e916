package hub

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/call-deck/backend/internal/session"
	"github.com/call-deck/backend/internal/stream"
	"github.com/gorilla/websocket"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// close signals the write pump to exit. The send channel is left open:
// a concurrent broadcast may still hold this client in its snapshot,
// and a send on a closed channel would panic the process.
func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Broadcaster pushes session and connection changes to connected agent
// consoles. Individual session changes are sent immediately since phase
// transitions are what agents act on; a periodic full snapshot lets
// consoles resync after missed deltas. Caller PII is masked through the
// redaction filter before anything goes on the wire.
type Broadcaster struct {
	mu             sync.RWMutex
	clients        map[*client]bool
	registry       *session.Registry
	redact         *session.RedactionFilter
	snapshotTicker *time.Ticker
	seq            atomic.Uint64

	upstreamMu sync.Mutex
	upstream   stream.ConnState
}

func NewBroadcaster(registry *session.Registry, redact *session.RedactionFilter, snapshotInterval time.Duration) *Broadcaster {
	if redact == nil {
		redact = &session.RedactionFilter{}
	}
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		registry: registry,
		redact:   redact,
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

// AddClient registers a console connection and sends it a full
// snapshot.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	data, err := json.Marshal(b.snapshotMessage())
	if err == nil {
		select {
		case c.send <- data:
		default:
			// Client too slow, drop the snapshot
		}
	}

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// SessionChanged implements relay.Notifier.
func (b *Broadcaster) SessionChanged(ch session.Change) {
	if ch.Type == session.ChangeEvicted {
		b.broadcast(MsgSessionRemoved, SessionRemovedPayload{SessionID: ch.SessionID})
		return
	}
	b.broadcast(MsgSessionChanged, SessionChangedPayload{
		SessionID: ch.SessionID,
		Previous:  ch.Previous,
		Current:   ch.Current,
		Session:   b.redact.Apply(ch.State),
	})
}

// ConnectionChanged implements relay.Notifier.
func (b *Broadcaster) ConnectionChanged(s stream.ConnState) {
	b.upstreamMu.Lock()
	b.upstream = s
	b.upstreamMu.Unlock()
	b.broadcast(MsgConnectionStatus, ConnectionStatusPayload{State: s.String()})
}

// FatalDisconnect implements relay.Notifier.
func (b *Broadcaster) FatalDisconnect() {
	b.broadcast(MsgFatalDisconnect, nil)
}

// Upstream returns the last reported upstream connection state.
func (b *Broadcaster) Upstream() stream.ConnState {
	b.upstreamMu.Lock()
	defer b.upstreamMu.Unlock()
	return b.upstream
}

func (b *Broadcaster) snapshotLoop() {
	for range b.snapshotTicker.C {
		msg := b.snapshotMessage()
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("hub: snapshot marshal error: %v", err)
			continue
		}
		b.send(data)
	}
}

func (b *Broadcaster) snapshotMessage() Message {
	return Message{
		Type: MsgSnapshot,
		Seq:  b.seq.Add(1),
		Payload: SnapshotPayload{
			Sessions: b.redact.FilterSlice(b.registry.Snapshot()),
			Upstream: b.Upstream().String(),
		},
	}
}

func (b *Broadcaster) broadcast(t MessageType, payload interface{}) {
	data, err := json.Marshal(Message{Type: t, Seq: b.seq.Add(1), Payload: payload})
	if err != nil {
		log.Printf("hub: broadcast marshal error: %v", err)
		return
	}
	b.send(data)
}

func (b *Broadcaster) send(data []byte) {
	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it
			log.Printf("hub: client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop ends the periodic snapshot loop.
func (b *Broadcaster) Stop() {
	b.snapshotTicker.Stop()
}
