package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"wnschat/internal/app/command"
	"wnschat/internal/app/events"
	"wnschat/internal/app/protocol"
	"wnschat/internal/app/user"
	"wnschat/internal/pkg/errs"
)

const (
	defaultKickReason = "for no apparent reason."

	minServerNameLength = 3
	maxServerNameLength = 50
)

const passwordPattern = `^\w*$`

var passwordRegex = regexp.MustCompile(passwordPattern)

var usernameSyntaxError = fmt.Sprintf("Invalid command syntax, username must match the regex string \"%s\"", user.UsernamePattern)

func validateServerName(name string) error {
	if n := utf8.RuneCountInString(name); n < minServerNameLength || n > maxServerNameLength {
		return errs.NewError(errs.ErrCommandSyntax, fmt.Sprintf(
			"Invalid server name \"%s\". The name must be %d to %d characters long.", name, minServerNameLength, maxServerNameLength))
	}
	if strings.ContainsAny(name, "\r\n") {
		return errs.NewError(errs.ErrCommandSyntax, fmt.Sprintf(
			"Invalid server name %q. The name must fit on a single line.", name))
	}
	return nil
}

func validatePassword(password string) error {
	if !passwordRegex.MatchString(password) {
		return errs.NewError(errs.ErrCommandSyntax, fmt.Sprintf(
			"Invalid password: \"%s\". The password must match the regex string \"%s\".", password, passwordPattern))
	}
	return nil
}

// installCommands attaches the server's handlers to the command catalogue.
func (s *Server) installCommands() {
	c := s.commands

	c.Say.Handle(s.handleSay)
	c.Me.Handle(s.handleMe)
	c.Help.Handle(s.handleHelp)
	c.List.Handle(s.handleList)
	c.Logout.Handle(s.handleLogout)
	c.Kick.Handle(s.handleKick)
	c.Tell.Handle(s.handleTell)
	c.Ping.Handle(s.handlePing)
	c.Sudo.Handle(s.handleSudo)
	c.Password.Handle(s.handlePassword)
	c.ServerName.Handle(s.handleServerName)
	c.Stop.Handle(s.handleStop)
	c.Stats.Handle(s.handleStats)
	c.SetUserLevel.Handle(s.handleSetUserLevel)
}

func (s *Server) handleSay(inv *command.Invocation) error {
	s.roster.Broadcast(fmt.Sprintf("%s: %s", inv.Actor.Username(), inv.Args), nil)
	return nil
}

func (s *Server) handleMe(inv *command.Invocation) error {
	s.roster.Broadcast(fmt.Sprintf("%s %s", inv.Actor.Username(), inv.Args), nil)
	return nil
}

func (s *Server) handleHelp(inv *command.Invocation) error {
	const row = "%-15s%-60s%-30s\n"

	var sb strings.Builder
	sb.WriteString("Available Commands:\n")
	fmt.Fprintf(&sb, row, "Command Name", "Description", "Example Usage")

	for _, cmd := range s.commands.All() {
		fmt.Fprintf(&sb, row, cmd.Name, cmd.Description, cmd.Usage)
	}

	return inv.Actor.SendMessage(sb.String())
}

func (s *Server) handleList(inv *command.Invocation) error {
	var sb strings.Builder
	sb.WriteString("Users online:\n")

	for _, c := range s.roster.Remotes() {
		fmt.Fprintf(&sb, "\t%s\n", c.Username())
	}

	return inv.Actor.SendMessage(sb.String())
}

func (s *Server) handleLogout(inv *command.Invocation) error {
	client, ok := inv.Actor.(*Client)
	if !ok {
		return errs.NewError(errs.ErrConsoleLogout)
	}

	s.roster.Remove(client)
	client.Disconnect("You logged out.")

	notice := fmt.Sprintf("%s logged out.", client.Username())
	s.log(notice)
	s.roster.Broadcast(notice, nil)
	s.events.Publish(events.New(events.TypeLeave, client.Username(), "", notice))
	return nil
}

func (s *Server) handleKick(inv *command.Invocation) error {
	args, err := command.ParseArgs(inv.Args, usernameSyntaxError,
		command.Required(user.UsernamePattern),
		command.Optional(".*"),
	)
	if err != nil {
		return err
	}

	username, reason := args[0], args[1]
	if strings.TrimSpace(reason) == "" {
		reason = defaultKickReason
	}

	kicker := inv.Actor.Username()

	var kickErr error
	s.roster.Do(func(tx *RosterTx) {
		target := tx.FindByUsername(username)
		if target == nil {
			kickErr = errs.NewError(errs.ErrUserNotFound, username)
			return
		}

		client, ok := target.(*Client)
		if !ok {
			kickErr = errs.NewError(errs.ErrTargetIsConsole, "kick")
			return
		}

		tx.Remove(client)

		message := fmt.Sprintf("%s kicked you from the server %s", kicker, reason)
		s.reply(client, message)
		if client.IsAlive() {
			client.Disconnect(message)
		}

		tx.Broadcast(fmt.Sprintf("%s kicked %s from the server %s", kicker, client.Username(), reason), nil)
		username = client.Username()
	})
	if kickErr != nil {
		return kickErr
	}

	s.log(fmt.Sprintf("%s kicked %s: %s", kicker, username, reason))
	s.events.Publish(events.New(events.TypeKick, username, kicker, reason))
	return nil
}

func (s *Server) handleTell(inv *command.Invocation) error {
	args, err := command.ParseArgs(inv.Args, usernameSyntaxError,
		command.Required(user.UsernamePattern),
		command.Optional(".*"),
	)
	if err != nil {
		return err
	}

	username, message := args[0], args[1]

	target := s.roster.FindByUsername(username)
	if target == nil {
		return errs.NewError(errs.ErrUserNotFound, username)
	}

	if strings.TrimSpace(message) == "" {
		return errs.NewError(errs.ErrEmptyMessage)
	}

	formatted := fmt.Sprintf("%s -> %s: %s", inv.Actor.Username(), target.Username(), message)

	if err := inv.Actor.SendMessage(formatted); err != nil {
		return err
	}

	if target != inv.Actor {
		s.reply(target, formatted)
	}

	if target != user.User(s.console) && inv.Actor != user.User(s.console) {
		s.reply(s.console, formatted)
	}
	return nil
}

func (s *Server) handleSudo(inv *command.Invocation) error {
	args, err := command.ParseArgs(inv.Args, "Invalid command syntax, type /help for more info.",
		command.Required(user.UsernamePattern),
		command.Optional("(?:useMyPermissions)?"),
		command.Required(`/.*`),
	)
	if err != nil {
		return err
	}

	username, useMine, line := args[0], args[1] == "useMyPermissions", args[2]

	target := s.roster.FindByUsername(username)
	if target == nil {
		return errs.NewError(errs.ErrUserNotFound, username)
	}

	cmd, rest, err := s.commands.ParseLine(line)
	if err != nil {
		return err
	}

	if cmd.Level > inv.Level {
		return errs.NewError(errs.ErrSudoEscalation,
			target.Username(), inv.Level, target.Username(), target.PermissionLevel(), cmd.Level)
	}

	if useMine {
		return cmd.ExecuteAs(target, rest, inv.Level)
	}
	return cmd.Execute(target, rest)
}

func (s *Server) handlePassword(inv *command.Invocation) error {
	password := strings.TrimSpace(inv.Args)

	if err := validatePassword(password); err != nil {
		return err
	}

	if err := s.setPassword(password); err != nil {
		return errs.NewError(errs.ErrCommand, "Failed to change the server password.")
	}

	s.roster.Broadcast("Server password changed", nil)
	s.pushServerInfo()
	s.events.Publish(events.New(events.TypeSettings, "", inv.Actor.Username(), "password"))
	return nil
}

func (s *Server) handleServerName(inv *command.Invocation) error {
	name := strings.TrimSpace(inv.Args)

	if err := validateServerName(name); err != nil {
		return err
	}

	s.settingsMu.Lock()
	s.name = name
	s.settingsMu.Unlock()

	s.roster.Broadcast(fmt.Sprintf("Server name changed to \"%s\"", name), nil)
	s.pushServerInfo()
	s.events.Publish(events.New(events.TypeSettings, "", inv.Actor.Username(), "serverName="+name))
	return nil
}

func (s *Server) handleStop(inv *command.Invocation) error {
	s.Shutdown(s.shutdownReason(inv.Actor))
	return nil
}

func (s *Server) handleStats(inv *command.Invocation) error {
	st := s.Stats()

	var sb strings.Builder
	sb.WriteString("Server statistics:\n")
	fmt.Fprintf(&sb, "\tName: %s\n", st.ServerName)
	fmt.Fprintf(&sb, "\tProtocol version: %d\n", st.ProtocolVersion)
	fmt.Fprintf(&sb, "\tUptime: %s\n", st.Uptime)
	fmt.Fprintf(&sb, "\tUsers online: %d\n", st.UsersOnline)
	fmt.Fprintf(&sb, "\tConnections accepted: %d\n", st.ConnectionsAccepted)
	fmt.Fprintf(&sb, "\tPassword required: %t\n", st.PasswordRequired)

	return inv.Actor.SendMessage(sb.String())
}

func (s *Server) handleSetUserLevel(inv *command.Invocation) error {
	args, err := command.ParseArgs(inv.Args, "Invalid command syntax, usage: "+inv.Command.Usage,
		command.Required(user.UsernamePattern),
		command.Required(`\w+`),
	)
	if err != nil {
		return err
	}

	username := args[0]

	level, err := user.ParsePermissionLevel(args[1])
	if err != nil {
		return errs.NewError(errs.ErrCommandSyntax, fmt.Sprintf("Unknown permission level \"%s\", expected USER, OPERATOR, ADMIN or SERVER.", args[1]))
	}

	if level > inv.Level {
		return errs.NewError(errs.ErrCommand, fmt.Sprintf("You cannot grant a permission level above your own (%s).", inv.Level))
	}

	target := s.roster.FindByUsername(username)
	if _, isConsole := target.(*user.Console); isConsole {
		return errs.NewError(errs.ErrTargetIsConsole, "change the permission level of")
	}
	if target != nil && target.PermissionLevel() > inv.Level {
		return errs.NewError(errs.ErrCommand, fmt.Sprintf("You cannot change the permission level of %s, who outranks you.", target.Username()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), grantLookupTimeout)
	defer cancel()

	if err := s.grants.SetLevel(ctx, username, level, inv.Actor.Username()); err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("Failed to save permission grant")
		return errs.NewError(errs.ErrCommand, errs.NewError(errs.ErrStoreFailed).Message)
	}

	s.events.Publish(events.New(events.TypeLevel, username, inv.Actor.Username(), level.String()))

	client, online := target.(*Client)
	if !online {
		return inv.Actor.SendMessage(fmt.Sprintf("%s is offline; their permission level will be %s when they next log in.", username, level))
	}

	client.SetPermissionLevel(level)
	s.send(client, &protocol.UserInfo{Username: client.Username(), PermissionLevel: level})

	notice := fmt.Sprintf("%s set %s's permission level to %s.", inv.Actor.Username(), client.Username(), level)
	s.log(notice)
	s.roster.Broadcast(notice, nil)
	return nil
}
