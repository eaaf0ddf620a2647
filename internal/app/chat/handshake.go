package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wnschat/internal/app/events"
	"wnschat/internal/app/protocol"
	"wnschat/internal/app/user"
	"wnschat/internal/pkg/errs"
)

// time allowed for looking up a user's grant during login.
const grantLookupTimeout = 5 * time.Second

// authenticate runs the Authenticating state: it reads exactly one packet and either admits the
// peer as a Client or rejects it. Rejections that the peer should hear about are answered with a
// Disconnect packet; the caller closes the connection.
func (s *Server) authenticate(conn *Connection) (*Client, error) {
	p, err := conn.ReceivePacket()
	if err != nil {
		var protoErr *errs.CustomError
		if errs.IsProtocol(err) && errors.As(err, &protoErr) {
			return nil, s.reject(conn, protoErr)
		}
		return nil, fmt.Errorf("read login: %w", err)
	}

	switch pkt := p.(type) {
	case *protocol.Login:
		return s.login(conn, pkt)

	case *protocol.Disconnect:
		s.roster.Broadcast(fmt.Sprintf("Client %s disconnected before logging in: %s", conn.RemoteAddr(), pkt.Reason), nil)
		return nil, fmt.Errorf("peer disconnected before login: %s", pkt.Reason)

	default:
		return nil, s.reject(conn, errs.NewError(errs.ErrExpectedLogin, p.PacketName()))
	}
}

// login validates a Login packet in order (protocol version, username format, password,
// duplicate username) and admits the user atomically under the roster lock.
func (s *Server) login(conn *Connection, pkt *protocol.Login) (*Client, error) {
	if pkt.ProtocolVersion != protocol.ProtocolVersion {
		return nil, s.reject(conn, errs.NewError(errs.ErrProtocolMismatch, protocol.ProtocolVersion, pkt.ProtocolVersion))
	}

	if !user.ValidUsername(pkt.Username) {
		return nil, s.reject(conn, errs.NewError(errs.ErrInvalidUsername, pkt.Username))
	}

	if !s.checkPassword(pkt.PasswordHash) {
		return nil, s.reject(conn, errs.NewError(errs.ErrWrongPassword))
	}

	ctx, cancel := context.WithTimeout(context.Background(), grantLookupTimeout)
	level, err := s.grants.Level(ctx, pkt.Username)
	cancel()
	if err != nil {
		conn.logger.Error().Err(err).Str("username", pkt.Username).Msg("Failed to load permission grant, using USER")
		level = user.LevelUser
	}

	client := newClient(conn, pkt.Username, level)

	var taken bool
	s.roster.Do(func(tx *RosterTx) {
		if tx.FindByUsername(pkt.Username) != nil {
			taken = true
			return
		}
		tx.Add(client)
	})
	if taken {
		return nil, s.reject(conn, errs.NewError(errs.ErrUsernameTaken, pkt.Username))
	}

	return client, nil
}

// reject answers a handshake failure with a Disconnect carrying the failure message.
func (s *Server) reject(conn *Connection, err *errs.CustomError) error {
	if sendErr := conn.SendPacket(&protocol.Disconnect{Reason: err.Message}); sendErr != nil {
		conn.logger.Debug().Err(sendErr).Msg("Failed to queue disconnect packet")
	}

	s.log(fmt.Sprintf("Client %s failed to log in: %s", conn.RemoteAddr(), err.Message))
	return err
}

// welcome runs once a client has been admitted.
func (s *Server) welcome(c *Client) {
	s.log(fmt.Sprintf("Connection established to client %s (%s)", c.Username(), c.RemoteAddr()))
	s.roster.Broadcast(fmt.Sprintf("%s joined the server.", c.Username()), nil)

	if lvl := c.PermissionLevel(); lvl > user.LevelUser {
		if err := c.SendPacket(&protocol.UserInfo{Username: c.Username(), PermissionLevel: lvl}); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to send user info")
		}
	}

	s.events.Publish(events.New(events.TypeJoin, c.Username(), "", c.RemoteAddr()))
}
