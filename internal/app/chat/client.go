/*
Package chat contains the server-side session and protocol engine.

This file defines the Client struct, the remote user variant: an authenticated Connection with
a username and a permission level.
*/
package chat

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"wnschat/internal/app/protocol"
	"wnschat/internal/app/user"
)

// Client is a logged-in remote user.
type Client struct {
	// the connection the user logged in on.
	conn *Connection

	// username chosen at login; immutable afterwards.
	username string

	// current permission level; changed by setUserLevel.
	level atomic.Int32

	// structured logger with connection and user context.
	logger zerolog.Logger
}

// newClient constructs a Client for a connection that passed the handshake.
func newClient(conn *Connection, username string, level user.PermissionLevel) *Client {
	c := &Client{
		conn:     conn,
		username: username,
		logger:   conn.logger.With().Str("username", username).Logger(),
	}
	c.level.Store(int32(level))
	return c
}

func (c *Client) Username() string { return c.username }

func (c *Client) PermissionLevel() user.PermissionLevel {
	return user.PermissionLevel(c.level.Load())
}

// SetPermissionLevel changes the user's level for the rest of the session.
func (c *Client) SetPermissionLevel(level user.PermissionLevel) {
	c.level.Store(int32(level))
}

// SendMessage queues a SimpleMessage with text.
func (c *Client) SendMessage(text string) error {
	return c.conn.SendPacket(&protocol.SimpleMessage{Text: text})
}

// SendPacket queues p.
func (c *Client) SendPacket(p protocol.Packet) error {
	return c.conn.SendPacket(p)
}

// Disconnect queues a Disconnect packet with reason and closes the connection.
// The packet is flushed before the stream is closed.
func (c *Client) Disconnect(reason string) {
	if err := c.conn.SendPacket(&protocol.Disconnect{Reason: reason}); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to queue disconnect packet")
	}
	c.conn.Close()
}

// IsAlive reports whether the connection has not been closed.
func (c *Client) IsAlive() bool { return c.conn.IsAlive() }

// RemoteAddr returns the peer address.
func (c *Client) RemoteAddr() string { return c.conn.RemoteAddr() }

func (c *Client) String() string { return c.username }
