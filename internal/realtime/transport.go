package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/websocket"
)

// maxMessageSize bounds a single inbound board event.
const maxMessageSize = 1 << 20

// Conn is an open board stream connection.
type Conn interface {
	// Read blocks until the next text message arrives or the connection ends.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, payload []byte) error
	Close() error
}

// Dialer opens board stream connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials the board stream over WebSocket.
type WebsocketDialer struct {
	Options *websocket.DialOptions
}

// Dial connects to url. The credential travels in the query string because
// browsers cannot set headers on the handshake and the backend mirrors that.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := websocket.Dial(ctx, url, d.Options)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("realtime.WebsocketDialer.Dial: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("realtime.wsConn.Read: %w", err)
	}
	return data, nil
}

func (c *wsConn) Write(ctx context.Context, payload []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("realtime.wsConn.Write: %w", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	if err := c.conn.Close(websocket.StatusNormalClosure, "client disconnect"); err != nil {
		return fmt.Errorf("realtime.wsConn.Close: %w", err)
	}
	return nil
}

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules the reconnect and heartbeat callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
