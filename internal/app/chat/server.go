/*
Package chat contains the server-side session and protocol engine.

This file defines the Server struct, which owns the listener, the roster, the command catalogue
and the mutable server settings. It accepts connections, runs one session per connection and
executes command lines on behalf of users.
*/
package chat

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"wnschat/internal/app/command"
	"wnschat/internal/app/events"
	"wnschat/internal/app/protocol"
	"wnschat/internal/app/store"
	"wnschat/internal/app/user"
	"wnschat/internal/pkg/errs"
	"wnschat/internal/pkg/logx"
)

// Options is the startup configuration of a Server.
type Options struct {
	// ListenAddress and Port are used by ListenAndServe.
	ListenAddress string
	Port          int

	// ServerName is the display name sent to clients.
	ServerName string

	// Password is the plain server password. Empty means no password is required.
	Password string

	// ConsoleName is the username of the server console.
	ConsoleName string

	// ConsoleOutput receives messages sent to the console user. Defaults to io.Discard.
	ConsoleOutput io.Writer

	// SendQueueSize and WriteTimeout tune every connection.
	SendQueueSize int
	WriteTimeout  time.Duration

	// PasswordCost is the bcrypt cost used for the stored password digest.
	PasswordCost int

	// Grants resolves the permission level of users at login. Defaults to an in-memory store.
	Grants store.GrantStore

	// Events receives lifecycle events. Defaults to events.Nop.
	Events events.Publisher

	// Log is the operator visibility sink. Defaults to the server logger.
	Log func(text string)
}

// Stats is a snapshot of server counters.
type Stats struct {
	ServerName          string        `json:"serverName"`
	ProtocolVersion     uint32        `json:"protocolVersion"`
	Uptime              time.Duration `json:"uptime"`
	UsersOnline         int           `json:"usersOnline"`
	ConnectionsAccepted int64         `json:"connectionsAccepted"`
	PasswordRequired    bool          `json:"passwordRequired"`
}

// Server is the chat server engine.
type Server struct {
	opts Options

	// packet registry shared by every connection.
	registry *protocol.Registry

	// command catalogue with the server's handlers attached.
	commands *command.Catalog

	// online users, the console included.
	roster *Roster

	// the server operator.
	console *user.Console

	grants store.GrantStore
	events events.Publisher
	log    func(string)

	// settingsMu guards name and passwordDigest. It is never held while taking the roster lock.
	settingsMu     sync.RWMutex
	name           string
	passwordDigest []byte

	startedAt time.Time
	accepted  atomic.Int64

	// listenerMu guards listener and stopped.
	listenerMu sync.Mutex
	listener   net.Listener
	stopped    bool

	stopOnce sync.Once
	done     chan struct{}

	// structured logger with server context.
	logger zerolog.Logger
}

// NewServer validates opts and returns a server with its console user already in the roster.
func NewServer(opts Options) (*Server, error) {
	if opts.ConsoleName == "" {
		opts.ConsoleName = "Server"
	}
	if !user.ValidUsername(opts.ConsoleName) {
		return nil, fmt.Errorf("invalid console name %q", opts.ConsoleName)
	}
	if err := validateServerName(opts.ServerName); err != nil {
		return nil, err
	}
	if err := validatePassword(opts.Password); err != nil {
		return nil, err
	}
	if opts.ConsoleOutput == nil {
		opts.ConsoleOutput = io.Discard
	}
	if opts.PasswordCost == 0 {
		opts.PasswordCost = bcrypt.DefaultCost
	}
	if opts.Grants == nil {
		opts.Grants = store.NewMemory()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}

	s := &Server{
		opts:      opts,
		registry:  protocol.NewRegistry(),
		commands:  command.NewCatalog(),
		roster:    NewRoster(),
		console:   user.NewConsole(opts.ConsoleName, opts.ConsoleOutput),
		grants:    opts.Grants,
		events:    opts.Events,
		name:      opts.ServerName,
		startedAt: time.Now(),
		done:      make(chan struct{}),
		logger:    logx.Component("server"),
	}

	s.log = opts.Log
	if s.log == nil {
		s.log = func(text string) { s.logger.Info().Msg(text) }
	}

	if err := s.setPassword(opts.Password); err != nil {
		return nil, err
	}

	s.roster.Add(s.console)
	s.installCommands()

	return s, nil
}

// Console returns the console user.
func (s *Server) Console() *user.Console { return s.console }

// Commands returns the command catalogue.
func (s *Server) Commands() *command.Catalog { return s.commands }

// Roster returns the roster of online users.
func (s *Server) Roster() *Roster { return s.roster }

// Registry returns the packet registry.
func (s *Server) Registry() *protocol.Registry { return s.registry }

// Done is closed when the server has been stopped.
func (s *Server) Done() <-chan struct{} { return s.done }

// Name returns the current server name.
func (s *Server) Name() string {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()

	return s.name
}

// PasswordRequired reports whether clients must supply a password.
func (s *Server) PasswordRequired() bool {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()

	return s.passwordDigest != nil
}

// HashPassword returns the digest clients send for password: the lower-case hex SHA-1.
func HashPassword(password string) string {
	sum := sha1.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

// setPassword stores a bcrypt digest of the client-side hash of password, or clears it when empty.
func (s *Server) setPassword(password string) error {
	var digest []byte
	if password != "" {
		var err error
		digest, err = bcrypt.GenerateFromPassword([]byte(HashPassword(password)), s.opts.PasswordCost)
		if err != nil {
			return fmt.Errorf("failed to hash server password: %w", err)
		}
	}

	s.settingsMu.Lock()
	s.passwordDigest = digest
	s.settingsMu.Unlock()
	return nil
}

// checkPassword reports whether hash matches the stored password. Any hash matches when none is set.
func (s *Server) checkPassword(hash string) bool {
	s.settingsMu.RLock()
	digest := s.passwordDigest
	s.settingsMu.RUnlock()

	if digest == nil {
		return true
	}
	return bcrypt.CompareHashAndPassword(digest, []byte(strings.ToLower(hash))) == nil
}

// serverInfo builds the ServerInfo packet. userCount counts remote users only.
func (s *Server) serverInfo() *protocol.ServerInfo {
	s.settingsMu.RLock()
	name := s.name
	required := s.passwordDigest != nil
	s.settingsMu.RUnlock()

	return &protocol.ServerInfo{
		ProtocolVersion:  protocol.ProtocolVersion,
		UserCount:        int32(len(s.roster.Remotes())),
		PasswordRequired: required,
		ServerName:       name,
	}
}

// pushServerInfo sends the current ServerInfo to every remote user.
func (s *Server) pushServerInfo() {
	info := s.serverInfo()
	for _, c := range s.roster.Remotes() {
		if err := c.SendPacket(info); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to push server info")
		}
	}
}

// Stats returns a snapshot of the server counters.
func (s *Server) Stats() Stats {
	s.settingsMu.RLock()
	name := s.name
	required := s.passwordDigest != nil
	s.settingsMu.RUnlock()

	return Stats{
		ServerName:          name,
		ProtocolVersion:     protocol.ProtocolVersion,
		Uptime:              time.Since(s.startedAt).Round(time.Second),
		UsersOnline:         len(s.roster.Remotes()),
		ConnectionsAccepted: s.accepted.Load(),
		PasswordRequired:    required,
	}
}

// Announce broadcasts text from the console to everyone.
func (s *Server) Announce(text string) {
	s.roster.Broadcast(fmt.Sprintf("[%s] %s", s.console.Username(), text), nil)
}

// ListenAndServe listens on the configured address and serves until the server stops or ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.ListenAddress, strconv.Itoa(s.opts.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.log(fmt.Sprintf("The server is running on port %d, bound to IP address %s", s.opts.Port, s.opts.ListenAddress))
	s.log(fmt.Sprintf("The local endpoint is %s", ln.Addr()))

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until the server stops or ctx ends. Cancelling ctx shuts the
// server down and disconnects every remote user.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.listenerMu.Lock()
	if s.stopped {
		s.listenerMu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.listenerMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown(s.shutdownReason(s.console))
		case <-s.done:
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Waiting for connections...")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		go s.HandleStream(conn, conn.RemoteAddr().String())
	}
}

// Shutdown disconnects every remote user with reason and stops the server. It returns once every
// Disconnect has been flushed, or after the write timeout for peers that stopped reading.
func (s *Server) Shutdown(reason string) {
	var flushed []<-chan struct{}
	s.roster.Do(func(tx *RosterTx) {
		for _, c := range tx.Remotes() {
			tx.Remove(c)
			if c.IsAlive() {
				c.Disconnect(reason)
			}
			flushed = append(flushed, c.conn.Done())
		}
	})

	s.events.Publish(events.New(events.TypeStop, "", "", reason))
	s.log(reason)

	s.awaitFlush(flushed)
	s.Stop()
}

func (s *Server) awaitFlush(done []<-chan struct{}) {
	timeout := s.opts.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for _, ch := range done {
		select {
		case <-ch:
		case <-timer.C:
			s.logger.Warn().Int("connections", len(done)).Msg("Shutdown continued before every disconnect was flushed")
			return
		}
	}
}

// Stop closes the listener and signals Done. Connections are left to their own sessions.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.listenerMu.Lock()
		s.stopped = true
		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn().Err(err).Msg("Listener close error")
			}
		}
		s.listenerMu.Unlock()

		close(s.done)
	})
}

func (s *Server) shutdownReason(actor user.User) string {
	if actor == user.User(s.console) {
		return "Server shutting down."
	}
	return fmt.Sprintf("Server shut down by %s.", actor.Username())
}

// ExecuteLine resolves line to a command and runs it as actor. Command errors are returned.
func (s *Server) ExecuteLine(actor user.User, line string) error {
	cmd, rest, err := s.commands.ParseLine(line)
	if err != nil {
		return err
	}
	return cmd.Execute(actor, rest)
}

// Dispatch runs line as actor and reports command errors back to the actor as
// "Command Error: <message>". Only errors that are not command errors are returned.
func (s *Server) Dispatch(actor user.User, line string) error {
	err := s.ExecuteLine(actor, line)
	if err == nil || !errs.IsCommand(err) {
		return err
	}

	if sendErr := actor.SendMessage("Command Error: " + errs.MessageOf(err)); sendErr != nil {
		return sendErr
	}
	return nil
}

// RunConsole reads command lines from in and executes them as the console user until in is
// exhausted, ctx ends or the server stops.
func (s *Server) RunConsole(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		default:
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if err := s.Dispatch(s.console, line); err != nil {
			s.logger.Error().Err(err).Str("line", line).Msg("Console command failed")
		}

		select {
		case <-s.done:
			return nil
		default:
		}
	}

	return scanner.Err()
}
