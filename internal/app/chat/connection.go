/*
Package chat contains the server-side session and protocol engine: connections, the shared
roster of online users, the per-connection handshake and read loop, and the chat commands.

This file defines the Connection struct, which wraps one accepted byte stream. Outbound packets
are encoded on the caller's goroutine and queued on a bounded channel that a dedicated writer
goroutine drains, so a slow peer never blocks the goroutine that sends to it.
*/
package chat

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wnschat/internal/app/protocol"
	"wnschat/internal/pkg/errs"
	"wnschat/internal/pkg/logx"
)

const (
	// default size of the per-connection outbound packet queue.
	defaultSendQueueSize = 256

	// default time allowed for one packet write to complete.
	defaultWriteTimeout = 10 * time.Second
)

// writeDeadliner is implemented by streams that support write timeouts (net.Conn, wsconn.Conn).
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Connection is one duplex packet stream to a peer.
type Connection struct {
	// unique id used to correlate log lines.
	id string

	// peer address as reported by the transport.
	remote string

	// underlying byte stream.
	rwc io.ReadWriteCloser

	// buffered reader over rwc used by ReceivePacket.
	reader *bufio.Reader

	// packet registry shared with the server.
	registry *protocol.Registry

	// encoded packets waiting for the writer goroutine.
	send chan []byte

	// sendMu orders sends against the close of the send channel.
	sendMu sync.Mutex

	// alive flips to false exactly once, at the start of Close.
	alive atomic.Bool

	// time allowed for each write.
	writeTimeout time.Duration

	// closed when the writer goroutine has closed the stream.
	done chan struct{}

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewConnection wraps rwc and starts its writer goroutine.
func NewConnection(rwc io.ReadWriteCloser, remote string, registry *protocol.Registry, queueSize int, writeTimeout time.Duration) *Connection {
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	id := uuid.NewString()

	c := &Connection{
		id:           id,
		remote:       remote,
		rwc:          rwc,
		reader:       bufio.NewReader(rwc),
		registry:     registry,
		send:         make(chan []byte, queueSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
		logger: logx.Logger().With().
			Str("component", "connection").
			Str("conn_id", id).
			Str("remote_addr", remote).
			Logger(),
	}
	c.alive.Store(true)

	go c.writePump()

	return c
}

// ID returns the connection's unique id.
func (c *Connection) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() string { return c.remote }

// IsAlive reports whether Close has not been called yet.
func (c *Connection) IsAlive() bool { return c.alive.Load() }

// Done is closed once the underlying stream has been closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// SendPacket queues p for delivery. It never blocks: when the queue is full the peer is
// considered unresponsive and the connection is closed.
func (c *Connection) SendPacket(p protocol.Packet) error {
	b, err := c.registry.Encode(p)
	if err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.alive.Load() {
		return errs.NewError(errs.ErrConnectionClosed)
	}

	select {
	case c.send <- b:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Send queue full, closing slow connection.")
		go c.Close()
		return errs.NewError(errs.ErrSendQueueFull)
	}
}

// ReceivePacket blocks until the next packet arrives.
func (c *Connection) ReceivePacket() (protocol.Packet, error) {
	return c.registry.ReadPacket(c.reader)
}

// Close marks the connection dead and lets the writer flush queued packets before the stream
// is closed. It reports whether this call performed the close; later calls are no-ops.
func (c *Connection) Close() bool {
	if !c.alive.CompareAndSwap(true, false) {
		return false
	}

	c.sendMu.Lock()
	close(c.send)
	c.sendMu.Unlock()

	return true
}

// writePump writes queued packets until the send channel is closed, then closes the stream.
// After a write failure the stream is closed at once (unblocking the reader) and the rest of
// the queue is discarded.
func (c *Connection) writePump() {
	defer close(c.done)

	deadliner, _ := c.rwc.(writeDeadliner)
	broken := false

	for b := range c.send {
		if broken {
			continue
		}

		if deadliner != nil {
			if err := deadliner.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.logger.Debug().Err(err).Msg("Failed to set write deadline")
			}
		}

		if _, err := c.rwc.Write(b); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing packet")
			broken = true
			c.closeStream()
		}
	}

	if !broken {
		c.closeStream()
	}
}

func (c *Connection) closeStream() {
	if err := c.rwc.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Connection close error")
	}
}
