package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// Conn is an open stream transport
type Conn interface {
	// Read blocks until the next message or a transport error
	Read(ctx context.Context) ([]byte, error)
	// Close closes the transport
	Close() error
}

// Dialer opens stream transports
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials the server stream with coder/websocket
type WebsocketDialer struct {
	// HTTPClient is used for the handshake; nil means http.DefaultClient
	HTTPClient *http.Client
	// ReadLimit caps a single message size; 0 keeps the library default
	ReadLimit int64
}

// Dial implements Dialer
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		mt, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if mt == websocket.MessageText || mt == websocket.MessageBinary {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

// Timer is a scheduled callback
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. Tests substitute a manual clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
