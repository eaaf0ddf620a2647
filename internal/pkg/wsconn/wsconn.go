/*
Package wsconn adapts a WebSocket connection to a byte stream.

Every Write is sent as one binary message and Read returns the payloads of incoming messages
back to back, so a stream protocol can run unchanged over WebSocket. Text messages are treated
as binary; control frames are handled by the underlying connection.
*/
package wsconn

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// closeGracePeriod bounds how long Close waits to deliver the close frame.
const closeGracePeriod = time.Second

// Conn is an io.ReadWriteCloser over a *websocket.Conn. One goroutine may read while another
// writes.
type Conn struct {
	ws *websocket.Conn

	// reader is the unread remainder of the current message, owned by the reading goroutine.
	reader io.Reader

	// writeMu serializes writes and the close frame.
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// New wraps ws.
func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Read reads from the current message, moving on to the next message when it is exhausted.
// A normal close by the peer is reported as io.EOF.
func (c *Conn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as a single binary message.
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetWriteDeadline sets the deadline for future Write calls.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}

// SetReadDeadline sets the deadline for future Read calls.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// RemoteAddr returns the address of the peer.
func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

// Close sends a normal close frame and closes the underlying connection. Only the first call
// has an effect.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.writeMu.Unlock()

		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
