package stream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPongTimeout  = 60 * time.Second
	defaultPingInterval = 30 * time.Second
)

// Transport is one established duplex connection to the switch feed.
// ReadMessage blocks until a frame arrives or the connection dies; the
// client never touches the wire protocol below this interface.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// DialFunc opens a new Transport. The client calls it on every
// (re)connect attempt.
type DialFunc func(ctx context.Context) (Transport, error)

// WSDialer dials the switch feed over websocket. The zero timings fall
// back to defaults.
type WSDialer struct {
	URL          string
	Token        string
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
}

// Dial returns a DialFunc for use with the stream client.
func (d WSDialer) Dial() DialFunc {
	return func(ctx context.Context) (Transport, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.URL, nil)
		if err != nil {
			return nil, err
		}

		// Authenticate as the first frame, before the connection is
		// shared with the ping goroutine.
		if d.Token != "" {
			auth := map[string]string{"type": "auth", "token": d.Token}
			if err := conn.WriteJSON(auth); err != nil {
				conn.Close()
				return nil, err
			}
		}

		t := &wsTransport{
			conn:         conn,
			writeTimeout: orDefault(d.WriteTimeout, defaultWriteTimeout),
			pongTimeout:  orDefault(d.PongTimeout, defaultPongTimeout),
			done:         make(chan struct{}),
		}

		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(t.pongTimeout))
			return nil
		})
		conn.SetReadDeadline(time.Now().Add(t.pongTimeout))

		go t.pingLoop(orDefault(d.PingInterval, defaultPingInterval))
		return t, nil
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// wsTransport wraps a gorilla connection with keepalive pings and a
// serialised write path.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	pongTimeout  time.Duration
	writeMu      sync.Mutex // serialises conn writes (ping, outbound frames)
	closeOnce    sync.Once
	done         chan struct{}
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return t.conn.Close()
}

func (t *wsTransport) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
