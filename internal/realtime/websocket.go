package realtime

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const dialTimeout = 10 * time.Second

// WebsocketDialer opens gorilla/websocket connections.
type WebsocketDialer struct {
	// HandshakeTimeout overrides the default dial timeout.
	HandshakeTimeout time.Duration
}

// Dial opens a websocket connection to rawURL.
func (d *WebsocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = dialTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}

	conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, err
	}
	return &websocketConn{conn: conn}, nil
}

type websocketConn struct {
	conn *websocket.Conn
}

func (c *websocketConn) ReadMessage() ([]byte, error) {
	_, raw, err := c.conn.ReadMessage()
	return raw, err
}

func (c *websocketConn) Close() error {
	return c.conn.Close()
}
