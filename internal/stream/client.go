package stream

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/call-deck/backend/internal/session"
)

const defaultMaxAttempts = 5

// ConnState is the connection state of the stream client. It changes
// only on transport callbacks or explicit Connect/Close calls.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Reconnecting
)

var connStateNames = map[ConnState]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Connected:    "connected",
	Reconnecting: "reconnecting",
}

func (s ConnState) String() string {
	if n, ok := connStateNames[s]; ok {
		return n
	}
	return "unknown"
}

// EventHandler consumes inbound call events, one at a time, in arrival
// order.
type EventHandler func(session.Event)

// Options configures a stream client.
type Options struct {
	Backoff     Backoff
	MaxAttempts int // consecutive failures before giving up; default 5
}

// Client owns one logical connection to the switch feed. It redials
// automatically on failure with exponential backoff, parses frames into
// typed events, and fans them out to registered handlers. Events missed
// while disconnected are not replayed; catch-up is the server's job.
type Client struct {
	dial        DialFunc
	backoff     Backoff
	maxAttempts int

	mu        sync.Mutex
	state     ConnState
	attempts  int
	transport Transport
	reconnect *time.Timer // pending redial; cancelled by Close
	closed    bool

	subs          []*subscriber
	stateHandlers []func(ConnState)
	fatalHandlers []func()

	protoErrs atomic.Int64
}

// New creates a client that dials the feed with the given DialFunc.
func New(dial DialFunc, opts Options) *Client {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Client{
		dial:        dial,
		backoff:     opts.Backoff,
		maxAttempts: maxAttempts,
		state:       Disconnected,
	}
}

// OnEvent registers a handler for inbound events. Each handler runs on
// its own goroutine with its own queue, so a slow handler cannot block
// the others; events that overflow a handler's queue are dropped and
// logged. Close releases all handlers.
func (c *Client) OnEvent(h EventHandler) {
	s := &subscriber{ch: make(chan session.Event, 256)}
	go func() {
		for ev := range s.ch {
			h(ev)
		}
	}()
	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()
}

// OnStateChange registers a handler invoked on every connection state
// change.
func (c *Client) OnStateChange(h func(ConnState)) {
	c.mu.Lock()
	c.stateHandlers = append(c.stateHandlers, h)
	c.mu.Unlock()
}

// OnFatal registers a handler invoked once reconnection attempts are
// exhausted.
func (c *Client) OnFatal(h func()) {
	c.mu.Lock()
	c.fatalHandlers = append(c.fatalHandlers, h)
	c.mu.Unlock()
}

// Connect starts the connection. Idempotent while a connection attempt
// is in progress or established; calling it twice opens no second
// transport and emits no duplicate notification.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	switch c.state {
	case Connecting, Connected, Reconnecting:
		c.mu.Unlock()
		return
	}
	c.closed = false
	c.state = Connecting
	handlers := c.stateHandlersLocked()
	c.mu.Unlock()

	notifyState(handlers, Connecting)
	go c.runOnce(ctx)
}

// Close shuts the connection down. Any pending reconnect is cancelled,
// the attempt counter is reset so a later Connect starts with a fresh
// failure budget, and handler queues are closed so their goroutines
// exit. The close is not counted as a failure and emits no fatal
// notification.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.attempts = 0
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	t := c.transport
	c.transport = nil
	for _, s := range c.subs {
		close(s.ch)
	}
	c.subs = nil
	changed := c.state != Disconnected
	c.state = Disconnected
	handlers := c.stateHandlersLocked()
	c.mu.Unlock()

	if t != nil {
		t.Close()
	}
	if changed {
		notifyState(handlers, Disconnected)
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the consecutive failed attempt count.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// ProtocolErrors returns the number of frames dropped as malformed or
// unrecognized since the client was created.
func (c *Client) ProtocolErrors() int64 {
	return c.protoErrs.Load()
}

// runOnce performs a single dial and, on success, reads until the
// connection dies.
func (c *Client) runOnce(ctx context.Context) {
	t, err := c.dial(ctx)
	if err != nil {
		log.Printf("stream: dial failed: %v", err)
		c.connectionFailed(ctx)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		t.Close()
		return
	}
	c.transport = t
	c.state = Connected
	c.attempts = 0
	handlers := c.stateHandlersLocked()
	c.mu.Unlock()

	notifyState(handlers, Connected)
	c.readLoop(ctx, t)
}

func (c *Client) readLoop(ctx context.Context, t Transport) {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.transport == t {
				c.transport = nil
			}
			closed := c.closed
			c.mu.Unlock()
			t.Close()
			if closed {
				return
			}
			log.Printf("stream: connection lost: %v", err)
			c.connectionFailed(ctx)
			return
		}

		ev, perr := ParseFrame(data, time.Now())
		if perr != nil {
			c.protoErrs.Add(1)
			log.Printf("stream: dropping frame: %v", perr)
			continue
		}
		c.deliver(ev)
	}
}

// connectionFailed schedules a redial, or reports a fatal disconnect
// once the attempt budget is spent.
func (c *Client) connectionFailed(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if c.attempts >= c.maxAttempts {
		c.state = Disconnected
		stateHandlers := c.stateHandlersLocked()
		fatalHandlers := make([]func(), len(c.fatalHandlers))
		copy(fatalHandlers, c.fatalHandlers)
		c.mu.Unlock()

		log.Printf("stream: giving up after %d attempts", c.maxAttempts)
		notifyState(stateHandlers, Disconnected)
		for _, h := range fatalHandlers {
			h()
		}
		return
	}

	delay := c.backoff.Delay(c.attempts)
	c.attempts++
	c.state = Reconnecting
	c.reconnect = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnect = nil
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.state = Connecting
		handlers := c.stateHandlersLocked()
		c.mu.Unlock()
		notifyState(handlers, Connecting)
		c.runOnce(ctx)
	})
	handlers := c.stateHandlersLocked()
	c.mu.Unlock()

	log.Printf("stream: reconnecting in %v", delay)
	notifyState(handlers, Reconnecting)
}

// deliver fans an event out to every subscriber without blocking the
// read loop. A full subscriber queue drops the event; drops are counted
// and logged at most once per 10 seconds per subscriber. The lock is
// held across the sends so Close cannot close a queue mid-send; the
// sends never block, so holding it is cheap.
func (c *Client) deliver(ev session.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	now := time.Now()
	for _, s := range c.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped++
			if s.lastDropLog.IsZero() || now.Sub(s.lastDropLog) >= 10*time.Second {
				log.Printf("stream: handler queue full, %d events dropped", s.dropped)
				s.dropped = 0
				s.lastDropLog = now
			}
		}
	}
}

func (c *Client) stateHandlersLocked() []func(ConnState) {
	handlers := make([]func(ConnState), len(c.stateHandlers))
	copy(handlers, c.stateHandlers)
	return handlers
}

func notifyState(handlers []func(ConnState), s ConnState) {
	for _, h := range handlers {
		h(s)
	}
}

// subscriber is one registered event handler's queue. dropped and
// lastDropLog are only touched by deliver, under the client lock.
type subscriber struct {
	ch          chan session.Event
	dropped     int64
	lastDropLog time.Time
}
