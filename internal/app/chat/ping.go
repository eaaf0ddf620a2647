package chat

import (
	"fmt"
	"strings"
	"time"

	"wnschat/internal/app/command"
	"wnschat/internal/app/protocol"
	"wnschat/internal/app/user"
	"wnschat/internal/pkg/errs"
)

// handlePing starts a ping from the actor to a remote user. The target adds its hop, flips the
// packet and sends it back; routePing delivers the reply to the actor.
func (s *Server) handlePing(inv *command.Invocation) error {
	name := strings.TrimSpace(inv.Args)

	target := s.roster.FindByUsername(name)
	if target == nil {
		return errs.NewError(errs.ErrUserNotFound, name)
	}

	client, ok := target.(*Client)
	if !ok {
		return errs.NewError(errs.ErrTargetIsConsole, "ping")
	}

	p := &protocol.Ping{
		SendingUser:     inv.Actor.Username(),
		DestinationUser: client.Username(),
		State:           protocol.PingGoingTo,
	}
	p.AddHop(inv.Actor.Username(), time.Now())

	if err := client.SendPacket(p); err != nil {
		return errs.NewError(errs.ErrCommand, fmt.Sprintf("Could not ping %s.", client.Username()))
	}
	return nil
}

// routePing relays a Ping packet received from a client.
// GOING_TO travels from its sender to the destination; the console answers for itself.
// GOING_BACK returns to the original sender; the console prints the trace.
func (s *Server) routePing(from *Client, p *protocol.Ping) {
	switch p.State {
	case protocol.PingGoingTo:
		if !strings.EqualFold(p.SendingUser, from.Username()) {
			from.logger.Warn().Str("sending_user", p.SendingUser).Msg("Dropping ping with forged sender.")
			return
		}

		dest := s.roster.FindByUsername(p.DestinationUser)
		switch d := dest.(type) {
		case nil:
			s.reply(from, fmt.Sprintf("Cannot find user \"%s\"", p.DestinationUser))
		case *user.Console:
			p.AddHop(d.Username(), time.Now())
			p.State = protocol.PingGoingBack
			s.send(from, p)
		case *Client:
			s.send(d, p)
		}

	case protocol.PingGoingBack:
		if !strings.EqualFold(p.DestinationUser, from.Username()) {
			from.logger.Warn().Str("destination_user", p.DestinationUser).Msg("Dropping ping reply from the wrong user.")
			return
		}

		origin := s.roster.FindByUsername(p.SendingUser)
		switch o := origin.(type) {
		case nil:
			from.logger.Debug().Str("sending_user", p.SendingUser).Msg("Ping sender left, dropping reply.")
		case *user.Console:
			s.reply(o, p.Trace())
		case *Client:
			s.send(o, p)
		}

	default:
		from.logger.Warn().Int32("state", int32(p.State)).Msg("Dropping ping with unknown state.")
	}
}

func (s *Server) send(c *Client, p protocol.Packet) {
	if err := c.SendPacket(p); err != nil {
		c.logger.Debug().Err(err).Str("packet", p.PacketName()).Msg("Failed to queue packet")
	}
}

func (s *Server) reply(u user.User, text string) {
	if err := u.SendMessage(text); err != nil {
		s.logger.Debug().Err(err).Str("username", u.Username()).Msg("Failed to deliver message")
	}
}
