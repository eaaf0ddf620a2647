package chat

import (
	"errors"
	"fmt"
	"io"

	"wnschat/internal/app/events"
	"wnschat/internal/app/protocol"
	"wnschat/internal/pkg/errs"
)

// HandleStream runs the whole lifecycle of one accepted stream: ServerInfo, handshake, the
// active read loop and teardown. It blocks until the stream has been closed.
func (s *Server) HandleStream(rwc io.ReadWriteCloser, remote string) {
	conn := NewConnection(rwc, remote, s.registry, s.opts.SendQueueSize, s.opts.WriteTimeout)
	s.accepted.Add(1)

	conn.logger.Debug().Msg("Connection accepted.")

	if err := conn.SendPacket(s.serverInfo()); err != nil {
		conn.logger.Warn().Err(err).Msg("Failed to send server info")
		conn.Close()
		<-conn.Done()
		return
	}

	client, err := s.authenticate(conn)
	if err != nil {
		conn.logger.Info().Err(err).Msg("Handshake failed.")
		conn.Close()
		<-conn.Done()
		return
	}

	s.welcome(client)
	s.serve(client)
	<-conn.Done()
}

// serve runs the Active state until the peer disconnects, the connection fails or another
// goroutine closes it. Teardown runs exactly once, on return.
func (s *Server) serve(c *Client) {
	notice := ""
	defer func() { s.drop(c, notice) }()

	for {
		p, err := c.conn.ReceivePacket()
		if err != nil {
			if c.IsAlive() {
				if errors.Is(err, io.EOF) {
					c.logger.Info().Msg("Connection closed by peer.")
				} else {
					c.logger.Warn().Err(err).Msg("Error reading packet, closing connection.")
				}
				if errs.IsProtocol(err) {
					c.Disconnect(errs.MessageOf(err))
				}
				notice = fmt.Sprintf("%s was disconnected due to errors.", c.Username())
			}
			return
		}

		switch pkt := p.(type) {
		case *protocol.SimpleMessage:
			if err := s.Dispatch(c, pkt.Text); err != nil {
				if c.IsAlive() {
					c.logger.Error().Err(err).Str("line", pkt.Text).Msg("Command failed, closing connection.")
					notice = fmt.Sprintf("%s was disconnected due to errors.", c.Username())
				}
				return
			}

		case *protocol.Ping:
			s.routePing(c, pkt)

		case *protocol.Disconnect:
			c.logger.Info().Str("reason", pkt.Reason).Msg("Client disconnected.")
			if c.IsAlive() {
				notice = fmt.Sprintf("%s disconnected: %s", c.Username(), pkt.Reason)
			}
			return

		default:
			perr := errs.NewError(errs.ErrUnexpectedPacket, p.PacketName())
			c.logger.Warn().Str("packet", p.PacketName()).Msg("Unexpected packet, closing connection.")
			c.Disconnect(perr.Message)
			notice = fmt.Sprintf("%s was disconnected due to errors.", c.Username())
			return
		}
	}
}

// drop removes c from the roster and closes its connection. Both steps are idempotent, so a
// client already kicked or stopped is only closed once. notice, when set, goes to everyone left.
func (s *Server) drop(c *Client, notice string) {
	removed := s.roster.Remove(c)
	c.conn.Close()

	if notice != "" {
		s.log(notice)
		s.roster.Broadcast(notice, nil)
	}

	if removed {
		s.events.Publish(events.New(events.TypeLeave, c.Username(), "", notice))
	}
}
