package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bnema/helper-gateway/internal/ports"
	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// WebsocketDialer opens realtime connections with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

var _ ports.RealtimeDialer = WebsocketDialer{}

func (d WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (ports.RealtimeConn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("%w: handshake status %d", ErrAuthRejected, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial realtime: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close sends a normal closure frame before dropping the socket.
func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}
