/*
Package chatclient implements the client side of the chat protocol.

A Session performs the login handshake over any byte stream and then turns incoming packets into
lines of text for the user. It answers pings addressed to it and handles the client-only commands
/logout and /ping locally; every other line is sent to the server as a chat message.
*/
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wnschat/internal/app/chat"
	"wnschat/internal/app/protocol"
	"wnschat/internal/app/user"
	"wnschat/internal/pkg/logx"
)

const (
	logoutReason = "Logging out"
	closeReason  = "Client closed"
)

// ErrClosed is returned by Send after the session has ended.
var ErrClosed = errors.New("chatclient: session closed")

// DisconnectedError reports that the server ended the session.
type DisconnectedError struct {
	Reason string
}

func (e *DisconnectedError) Error() string {
	return "disconnected by server: " + e.Reason
}

// Session is one client connection to a chat server.
type Session struct {
	conn      *chat.Connection
	onMessage func(text string)

	// mu guards username, level and info.
	mu       sync.RWMutex
	username string
	level    user.PermissionLevel
	info     protocol.ServerInfo

	logger zerolog.Logger
}

// NewSession wraps rwc. onMessage receives every line meant for the user; it is called from the
// goroutine running Run and from Handshake.
func NewSession(rwc io.ReadWriteCloser, remote string, onMessage func(text string)) *Session {
	if onMessage == nil {
		onMessage = func(string) {}
	}

	return &Session{
		conn:      chat.NewConnection(rwc, remote, protocol.NewRegistry(), 0, 0),
		onMessage: onMessage,
		logger:    logx.Component("chatclient").With().Str("server", remote).Logger(),
	}
}

// Handshake reads the server's ServerInfo, checks the protocol version and logs in.
// An empty password sends an empty digest.
func (s *Session) Handshake(username, password string) (*protocol.ServerInfo, error) {
	p, err := s.conn.ReceivePacket()
	if err != nil {
		s.conn.Close()
		return nil, fmt.Errorf("read server info: %w", err)
	}

	var info *protocol.ServerInfo
	switch pkt := p.(type) {
	case *protocol.ServerInfo:
		info = pkt
	case *protocol.Disconnect:
		s.conn.Close()
		return nil, &DisconnectedError{Reason: pkt.Reason}
	default:
		s.disconnect("Expected server info")
		return nil, fmt.Errorf("server sent %s instead of ServerInfo", p.PacketName())
	}

	if info.ProtocolVersion != protocol.ProtocolVersion {
		reason := "Client out of date"
		if info.ProtocolVersion < protocol.ProtocolVersion {
			reason = "Server out of date"
		}
		s.disconnect(reason)
		return nil, fmt.Errorf("%s: server speaks protocol %d, client speaks %d", reason, info.ProtocolVersion, protocol.ProtocolVersion)
	}

	digest := ""
	if password != "" {
		digest = chat.HashPassword(password)
	}

	s.mu.Lock()
	s.username = username
	s.info = *info
	s.mu.Unlock()

	if err := s.conn.SendPacket(&protocol.Login{
		ProtocolVersion: protocol.ProtocolVersion,
		Username:        username,
		PasswordHash:    digest,
	}); err != nil {
		s.conn.Close()
		return nil, err
	}

	s.logger.Info().Str("username", username).Str("server_name", info.ServerName).Msg("Login sent")
	return info, nil
}

// Run processes packets until the server disconnects, the stream fails or ctx ends.
// A server Disconnect is returned as *DisconnectedError; a local close returns nil.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.disconnect(closeReason) })
	defer stop()

	for {
		p, err := s.conn.ReceivePacket()
		if err != nil {
			if !s.conn.IsAlive() {
				return nil
			}
			s.conn.Close()
			if errors.Is(err, io.EOF) {
				return &DisconnectedError{Reason: "connection closed"}
			}
			return fmt.Errorf("read packet: %w", err)
		}

		if err := s.handle(p); err != nil {
			return err
		}
	}
}

func (s *Session) handle(p protocol.Packet) error {
	switch pkt := p.(type) {
	case *protocol.SimpleMessage:
		s.onMessage(pkt.Text)

	case *protocol.ServerInfo:
		s.mu.Lock()
		s.info = *pkt
		s.mu.Unlock()

	case *protocol.UserInfo:
		if !strings.EqualFold(pkt.Username, s.Username()) {
			s.logger.Debug().Str("about", pkt.Username).Msg("Ignoring user info about someone else")
			return nil
		}
		s.mu.Lock()
		s.level = pkt.PermissionLevel
		s.mu.Unlock()
		s.onMessage(fmt.Sprintf("Your permission level is now %s.", pkt.PermissionLevel))

	case *protocol.Ping:
		s.handlePing(pkt)

	case *protocol.Disconnect:
		s.conn.Close()
		return &DisconnectedError{Reason: pkt.Reason}

	default:
		s.logger.Warn().Str("packet", p.PacketName()).Msg("Unexpected packet from server")
	}
	return nil
}

func (s *Session) handlePing(p *protocol.Ping) {
	me := s.Username()

	switch p.State {
	case protocol.PingGoingTo:
		p.AddHop(me, time.Now())
		p.State = protocol.PingGoingBack
		if err := s.conn.SendPacket(p); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to answer ping")
		}

	case protocol.PingGoingBack:
		if !strings.EqualFold(p.SendingUser, me) {
			s.onMessage(fmt.Sprintf("ERROR: Got a ping packet sent back to user \"%s\", but this user is \"%s\"!", p.SendingUser, me))
			return
		}
		s.onMessage(p.Trace())
	}
}

// Send processes one line typed by the user.
func (s *Session) Send(line string) error {
	if !s.conn.IsAlive() {
		return ErrClosed
	}

	trimmed := strings.TrimSpace(line)
	name, rest, _ := strings.Cut(trimmed, " ")

	switch name {
	case "/logout":
		s.disconnect(logoutReason)
		return nil

	case "/ping":
		target := strings.TrimSpace(rest)
		if !user.ValidUsername(target) {
			return fmt.Errorf("usage: /ping USERNAME")
		}

		p := &protocol.Ping{
			SendingUser:     s.Username(),
			DestinationUser: target,
			State:           protocol.PingGoingTo,
		}
		p.AddHop(s.Username(), time.Now())
		return s.conn.SendPacket(p)
	}

	return s.conn.SendPacket(&protocol.SimpleMessage{Text: line})
}

// disconnect tells the server why the client is leaving and closes the stream.
func (s *Session) disconnect(reason string) {
	if s.conn.IsAlive() {
		if err := s.conn.SendPacket(&protocol.Disconnect{Reason: reason}); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to queue disconnect")
		}
	}
	s.conn.Close()
}

// Close leaves the server and closes the stream.
func (s *Session) Close() {
	s.disconnect(closeReason)
}

// Done is closed once the stream has been closed.
func (s *Session) Done() <-chan struct{} { return s.conn.Done() }

func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// PermissionLevel is the level last reported by the server.
func (s *Session) PermissionLevel() user.PermissionLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

// ServerInfo returns the most recent ServerInfo.
func (s *Session) ServerInfo() protocol.ServerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}
