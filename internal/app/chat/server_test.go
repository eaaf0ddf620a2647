package chat

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wnschat/internal/app/events"
	"wnschat/internal/app/protocol"
	"wnschat/internal/app/user"
	"wnschat/internal/pkg/errs"
)

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Options{ServerName: "ab"})
	assert.True(t, errs.IsCommandSyntax(err))

	_, err = NewServer(Options{ServerName: "Fine Name", Password: "has space"})
	assert.True(t, errs.IsCommandSyntax(err))

	_, err = NewServer(Options{ServerName: "Fine Name", ConsoleName: "x"})
	assert.Error(t, err)

	srv, err := NewServer(Options{ServerName: "Fine Name"})
	require.NoError(t, err)
	assert.Equal(t, "Server", srv.Console().Username())
	assert.Equal(t, 1, srv.Roster().Count())
	assert.False(t, srv.PasswordRequired())
}

func TestHashPassword(t *testing.T) {
	assert.Equal(t, "a94a8fe5ccb19ba61c4c0873d391e987982fbbd3", HashPassword("test"))
}

func TestLogin_JoinAndServerInfo(t *testing.T) {
	f := newFixture(t, "")

	alice := login(t, f.srv, "alice", "")
	assert.Equal(t, protocol.ProtocolVersion, alice.info.ProtocolVersion)
	assert.Equal(t, int32(0), alice.info.UserCount)
	assert.Equal(t, "Test Server", alice.info.ServerName)
	assert.False(t, alice.info.PasswordRequired)

	bob := login(t, f.srv, "bob", "")
	assert.Equal(t, int32(1), bob.info.UserCount)

	alice.waitMessage("bob joined the server.")
	f.waitConsole("bob joined the server.")

	require.Eventually(t, func() bool { return len(f.events.Types()) == 2 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, []events.Type{events.TypeJoin, events.TypeJoin}, f.events.Types())
	assert.Equal(t, 2, f.srv.Stats().UsersOnline)
	assert.Equal(t, int64(2), f.srv.Stats().ConnectionsAccepted)
}

func TestLogin_Rejections(t *testing.T) {
	f := newFixture(t, "secret")
	login(t, f.srv, "alice", "secret")

	tests := []struct {
		name  string
		login *protocol.Login
		want  string
	}{
		{
			name:  "version mismatch wins over wrong password",
			login: &protocol.Login{ProtocolVersion: 2, Username: "carol", PasswordHash: "nope"},
			want:  "Protocol version mismatch: server speaks version 1, client speaks version 2.",
		},
		{
			name:  "invalid username",
			login: &protocol.Login{ProtocolVersion: protocol.ProtocolVersion, Username: "c", PasswordHash: HashPassword("secret")},
			want:  `Invalid username "c".`,
		},
		{
			name:  "wrong password",
			login: &protocol.Login{ProtocolVersion: protocol.ProtocolVersion, Username: "carol", PasswordHash: HashPassword("guess")},
			want:  "Incorrect password.",
		},
		{
			name:  "duplicate username is case-insensitive",
			login: &protocol.Login{ProtocolVersion: protocol.ProtocolVersion, Username: "ALICE", PasswordHash: HashPassword("secret")},
			want:  `The username "ALICE" is already taken.`,
		},
		{
			name:  "console name is taken",
			login: &protocol.Login{ProtocolVersion: protocol.ProtocolVersion, Username: "server", PasswordHash: HashPassword("secret")},
			want:  `The username "server" is already taken.`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := dial(t, f.srv, "rejected")
			assert.True(t, p.info.PasswordRequired)

			p.send(tt.login)

			d := expectPacket[*protocol.Disconnect](t, p)
			assert.Contains(t, d.Reason, tt.want)
			p.waitClosed()
		})
	}

	assert.Equal(t, 1, len(f.srv.Roster().Remotes()))
}

func TestLogin_PasswordHashIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, "secret")

	p := dial(t, f.srv, "alice")
	p.send(&protocol.Login{
		ProtocolVersion: protocol.ProtocolVersion,
		Username:        "alice",
		PasswordHash:    "E5E9FA1BA31ECD1AE84F75CAAA474F3A663F05F4",
	})
	p.waitMessage("alice joined the server.")
}

func TestLogin_ExpectsLoginFirst(t *testing.T) {
	f := newFixture(t, "")

	p := dial(t, f.srv, "eager")
	p.say("hello?")

	d := expectPacket[*protocol.Disconnect](t, p)
	assert.Equal(t, "Expected Login packet, got SimpleMessage.", d.Reason)
	p.waitClosed()
	assert.Empty(t, f.srv.Roster().Remotes())
}

func TestLogin_MalformedFirstPacket(t *testing.T) {
	f := newFixture(t, "")

	p := dial(t, f.srv, "garbled")
	_, err := p.conn.Write([]byte{0x09})
	require.NoError(t, err)

	d := expectPacket[*protocol.Disconnect](t, p)
	assert.Equal(t, "Unknown packet id 9.", d.Reason)
	p.waitClosed()
	assert.Empty(t, f.srv.Roster().Remotes())
}

func TestLogin_DisconnectBeforeLogin(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")

	p := dial(t, f.srv, "shy")
	p.send(&protocol.Disconnect{Reason: "changed my mind"})

	alice.waitMessage("disconnected before logging in: changed my mind")
	p.waitClosed()
}

func TestLogin_GrantedLevelSendsUserInfo(t *testing.T) {
	f := newFixture(t, "")
	f.grant(t, "Alice", user.LevelOperator)

	alice := login(t, f.srv, "alice", "")

	info := expectPacket[*protocol.UserInfo](t, alice)
	assert.Equal(t, "alice", info.Username)
	assert.Equal(t, user.LevelOperator, info.PermissionLevel)
}

func TestSession_SayAndMe(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")
	bob := login(t, f.srv, "bob", "")

	alice.say("hello world")
	bob.waitMessage("alice: hello world")
	alice.waitMessage("alice: hello world")
	f.waitConsole("alice: hello world")

	bob.say("/me waves")
	alice.waitMessage("bob waves")
}

func TestSession_CommandErrorsAreReported(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")

	alice.say("/stop")
	msg := alice.waitMessage("Command Error: ")
	assert.Equal(t, "Command Error: You do not have permission to use /stop (requires ADMIN, you have USER).", msg)

	alice.say("/frobnicate now")
	assert.Equal(t, `Command Error: Unknown command "/frobnicate"`, alice.waitMessage("Command Error: "))

	alice.say("/tell bob hi")
	assert.Equal(t, `Command Error: User "bob" not found`, alice.waitMessage("Command Error: "))

	select {
	case <-f.srv.Done():
		t.Fatal("server stopped")
	default:
	}
	assert.True(t, f.srv.Roster().FindByUsername("alice") != nil)
}

func TestSession_DisconnectNotice(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")
	bob := login(t, f.srv, "bob", "")

	alice.send(&protocol.Disconnect{Reason: "bye"})

	bob.waitMessage("alice disconnected: bye")
	alice.waitClosed()
	assert.Nil(t, f.srv.Roster().FindByUsername("alice"))

	require.Eventually(t, func() bool {
		types := f.events.Types()
		return len(types) > 0 && types[len(types)-1] == events.TypeLeave
	}, waitTimeout, 5*time.Millisecond)
}

func TestSession_PeerHangsUp(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")
	bob := login(t, f.srv, "bob", "")

	require.NoError(t, alice.conn.Close())

	bob.waitMessage("alice was disconnected due to errors.")
	assert.Nil(t, f.srv.Roster().FindByUsername("alice"))
}

func TestSession_UnexpectedPacket(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")
	bob := login(t, f.srv, "bob", "")

	alice.send(&protocol.UserInfo{Username: "alice", PermissionLevel: user.LevelServer})

	d := expectPacket[*protocol.Disconnect](t, alice)
	assert.Equal(t, "Unexpected packet UserInfo.", d.Reason)
	alice.waitClosed()
	bob.waitMessage("alice was disconnected due to errors.")
}

func TestSession_UnknownPacketID(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")

	_, err := alice.conn.Write([]byte{0xFF})
	require.NoError(t, err)

	d := expectPacket[*protocol.Disconnect](t, alice)
	assert.Equal(t, "Unknown packet id 255.", d.Reason)
	alice.waitClosed()
}

func TestCommand_Kick(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")
	bob := login(t, f.srv, "bob", "")

	f.run(t, "/kick alice spamming")

	alice.waitMessage("Server kicked you from the server spamming")
	d := expectPacket[*protocol.Disconnect](t, alice)
	assert.Equal(t, "Server kicked you from the server spamming", d.Reason)
	alice.waitClosed()

	bob.waitMessage("Server kicked alice from the server spamming")
	assert.Nil(t, f.srv.Roster().FindByUsername("alice"))
	assert.Contains(t, f.events.Types(), events.TypeKick)

	f.run(t, "/kick bob")
	bob.waitMessage("Server kicked you from the server for no apparent reason.")
}

func TestCommand_KickErrors(t *testing.T) {
	f := newFixture(t, "")

	err := f.srv.ExecuteLine(f.srv.Console(), "/kick server")
	assert.Equal(t, errs.ErrTargetIsConsole, errs.CodeOf(err))
	assert.Equal(t, "You can't kick the server.", errs.MessageOf(err))

	err = f.srv.ExecuteLine(f.srv.Console(), "/kick nobody")
	assert.Equal(t, errs.ErrUserNotFound, errs.CodeOf(err))

	err = f.srv.ExecuteLine(f.srv.Console(), "/kick")
	assert.True(t, errs.IsCommandSyntax(err))
}

func TestCommand_Tell(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")
	bob := login(t, f.srv, "bob", "")
	carol := login(t, f.srv, "carol", "")

	alice.say("/tell bob psst")

	assert.Equal(t, "alice -> bob: psst", alice.waitMessage("->"))
	assert.Equal(t, "alice -> bob: psst", bob.waitMessage("->"))
	f.waitConsole("alice -> bob: psst")

	carol.say("/tell alice")
	assert.Equal(t, "Command Error: Message must not be empty!", carol.waitMessage("Command Error: "))
}

func TestCommand_List(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")
	login(t, f.srv, "bob", "")

	alice.say("/list")
	assert.Equal(t, "Users online:\n\talice\n\tbob\n", alice.waitMessage("Users online:"))
}

func TestCommand_Help(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")

	alice.say("/help")
	help := alice.waitMessage("Available Commands:")
	for _, cmd := range f.srv.Commands().All() {
		assert.Contains(t, help, cmd.Usage)
	}
}

func TestCommand_Stats(t *testing.T) {
	f := newFixture(t, "")
	f.grant(t, "alice", user.LevelOperator)
	alice := login(t, f.srv, "alice", "")

	alice.say("/stats")
	stats := alice.waitMessage("Server statistics:")
	assert.Contains(t, stats, "\tName: Test Server\n")
	assert.Contains(t, stats, "\tUsers online: 1\n")
	assert.Contains(t, stats, "\tConnections accepted: 1\n")
	assert.Contains(t, stats, "\tPassword required: false\n")

	f.run(t, "/stats")
	f.waitConsole("Server statistics:")
}

func TestCommand_Logout(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")
	bob := login(t, f.srv, "bob", "")

	alice.say("/logout")

	d := expectPacket[*protocol.Disconnect](t, alice)
	assert.Equal(t, "You logged out.", d.Reason)
	alice.waitClosed()
	bob.waitMessage("alice logged out.")

	err := f.srv.ExecuteLine(f.srv.Console(), "/logout")
	assert.Equal(t, errs.ErrConsoleLogout, errs.CodeOf(err))
}

func TestCommand_PingBetweenClients(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")
	bob := login(t, f.srv, "bob", "")

	alice.say("/ping bob")

	p := expectPacket[*protocol.Ping](t, bob)
	assert.Equal(t, protocol.PingGoingTo, p.State)
	assert.Equal(t, "alice", p.SendingUser)
	assert.Equal(t, "bob", p.DestinationUser)
	require.Len(t, p.Hops, 1)

	p.AddHop("bob", time.Now())
	p.State = protocol.PingGoingBack
	bob.send(p)

	back := expectPacket[*protocol.Ping](t, alice)
	assert.Equal(t, protocol.PingGoingBack, back.State)
	require.Len(t, back.Hops, 2)
	assert.Equal(t, "alice", back.Hops[0].Username)
	assert.Equal(t, "bob", back.Hops[1].Username)
}

func TestCommand_PingFromConsole(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")

	f.run(t, "/ping alice")

	p := expectPacket[*protocol.Ping](t, alice)
	assert.Equal(t, "Server", p.SendingUser)
	p.AddHop("alice", time.Now())
	p.State = protocol.PingGoingBack
	alice.send(p)

	f.waitConsole("Ping Trace:")
	f.waitConsole("Total time:")

	err := f.srv.ExecuteLine(f.srv.Console(), "/ping server")
	assert.Equal(t, "You can't ping the server.", errs.MessageOf(err))
}

func TestPing_ClientToConsole(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")

	p := &protocol.Ping{SendingUser: "alice", DestinationUser: "Server", State: protocol.PingGoingTo}
	p.AddHop("alice", time.Now())
	alice.send(p)

	back := expectPacket[*protocol.Ping](t, alice)
	assert.Equal(t, protocol.PingGoingBack, back.State)
	require.Len(t, back.Hops, 2)
	assert.Equal(t, "Server", back.Hops[1].Username)
}

func TestCommand_Sudo(t *testing.T) {
	f := newFixture(t, "")
	f.grant(t, "alice", user.LevelOperator)
	alice := login(t, f.srv, "alice", "")
	bob := login(t, f.srv, "bob", "")

	// An operator may not make anyone run an admin command.
	alice.say("/sudo bob /stop")
	msg := alice.waitMessage("Command Error: ")
	assert.Contains(t, msg, `You do not have permission to make user "bob" run that command!`)
	select {
	case <-f.srv.Done():
		t.Fatal("sudo escalated to /stop")
	default:
	}

	f.run(t, "/sudo alice /say hi from sudo")
	bob.waitMessage("alice: hi from sudo")

	// bob lacks OPERATOR for /stats unless the invoker's level is lent.
	err := f.srv.ExecuteLine(f.srv.Console(), "/sudo bob /stats")
	assert.Equal(t, errs.ErrPermissionDenied, errs.CodeOf(err))

	f.run(t, "/sudo bob useMyPermissions /stats")
	bob.waitMessage("Server statistics:")

	err = f.srv.ExecuteLine(f.srv.Console(), "/sudo bob")
	assert.Equal(t, "Invalid command syntax, type /help for more info.", errs.MessageOf(err))
}

func TestCommand_Password(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")

	f.run(t, "/password hunter2")

	alice.waitMessage("Server password changed")
	info := expectPacket[*protocol.ServerInfo](t, alice)
	assert.True(t, info.PasswordRequired)
	assert.Equal(t, int32(1), info.UserCount)
	assert.Contains(t, f.events.Types(), events.TypeSettings)

	p := dial(t, f.srv, "bob")
	assert.True(t, p.info.PasswordRequired)
	p.send(&protocol.Login{ProtocolVersion: protocol.ProtocolVersion, Username: "bob"})
	assert.Equal(t, "Incorrect password.", expectPacket[*protocol.Disconnect](t, p).Reason)

	login(t, f.srv, "bob", "hunter2")

	f.run(t, "/password")
	assert.False(t, f.srv.PasswordRequired())

	err := f.srv.ExecuteLine(f.srv.Console(), "/password not-valid")
	assert.True(t, errs.IsCommandSyntax(err))
}

func TestCommand_ServerName(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")

	f.run(t, "/serverName Renamed Place")

	alice.waitMessage(`Server name changed to "Renamed Place"`)
	info := expectPacket[*protocol.ServerInfo](t, alice)
	assert.Equal(t, "Renamed Place", info.ServerName)
	assert.Equal(t, "Renamed Place", f.srv.Name())

	err := f.srv.ExecuteLine(f.srv.Console(), "/serverName no")
	assert.Equal(t, `Invalid server name "no". The name must be 3 to 50 characters long.`, errs.MessageOf(err))
}

func TestValidateServerName(t *testing.T) {
	assert.NoError(t, validateServerName("Café Chat"))
	assert.NoError(t, validateServerName(strings.Repeat("é", 50)))

	for _, name := range []string{"ab", strings.Repeat("x", 51), "Two\nLines", "Carriage\rReturn"} {
		err := validateServerName(name)
		assert.Equal(t, errs.ErrCommandSyntax, errs.CodeOf(err), "%q", name)
	}

	_, err := NewServer(Options{ServerName: "Bad\nName"})
	assert.Error(t, err)
}

func TestCommand_SetUserLevel(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")
	bob := login(t, f.srv, "bob", "")

	f.run(t, "/setUserLevel alice ADMIN")

	info := expectPacket[*protocol.UserInfo](t, alice)
	assert.Equal(t, user.LevelAdmin, info.PermissionLevel)
	bob.waitMessage("Server set alice's permission level to ADMIN.")

	lvl, err := f.grants.Level(t.Context(), "ALICE")
	require.NoError(t, err)
	assert.Equal(t, user.LevelAdmin, lvl)

	alice.say("/setUserLevel bob SERVER")
	assert.Equal(t, "Command Error: You cannot grant a permission level above your own (ADMIN).", alice.waitMessage("Command Error: "))

	alice.say("/setUserLevel bob wizard")
	assert.Contains(t, alice.waitMessage("Command Error: "), `Unknown permission level "wizard"`)

	f.run(t, "/setUserLevel carol OPERATOR")
	f.waitConsole("carol is offline")

	carol := login(t, f.srv, "carol", "")
	assert.Equal(t, user.LevelOperator, expectPacket[*protocol.UserInfo](t, carol).PermissionLevel)

	err = f.srv.ExecuteLine(f.srv.Console(), "/setUserLevel server USER")
	assert.Equal(t, errs.ErrTargetIsConsole, errs.CodeOf(err))
}

func TestCommand_StopFromConsole(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")
	bob := login(t, f.srv, "bob", "")

	f.run(t, "/stop")

	for _, p := range []*peer{alice, bob} {
		d := expectPacket[*protocol.Disconnect](t, p)
		assert.Equal(t, "Server shutting down.", d.Reason)
		p.waitClosed()
	}

	select {
	case <-f.srv.Done():
	default:
		t.Fatal("server not stopped")
	}
	assert.Empty(t, f.srv.Roster().Remotes())
	assert.Contains(t, f.events.Types(), events.TypeStop)
}

func TestShutdown_FlushesDisconnects(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")

	c, ok := f.srv.Roster().FindByUsername("alice").(*Client)
	require.True(t, ok)

	f.srv.Shutdown("bye")

	select {
	case <-c.conn.Done():
	default:
		t.Fatal("Shutdown returned before alice's disconnect was written")
	}
	assert.Equal(t, "bye", expectPacket[*protocol.Disconnect](t, alice).Reason)
}

func TestCommand_StopByAdmin(t *testing.T) {
	f := newFixture(t, "")
	f.grant(t, "alice", user.LevelAdmin)
	alice := login(t, f.srv, "alice", "")
	bob := login(t, f.srv, "bob", "")

	alice.say("/stop")

	assert.Equal(t, "Server shut down by alice.", expectPacket[*protocol.Disconnect](t, bob).Reason)
	require.Eventually(t, func() bool {
		select {
		case <-f.srv.Done():
			return true
		default:
			return false
		}
	}, waitTimeout, 5*time.Millisecond)
}

func TestServe_TCPAndContextCancel(t *testing.T) {
	f := newFixture(t, "")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- f.srv.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	reg := protocol.NewRegistry()
	pkt, err := reg.ReadPacket(conn)
	require.NoError(t, err)
	info, ok := pkt.(*protocol.ServerInfo)
	require.True(t, ok)
	assert.Equal(t, "Test Server", info.ServerName)

	cancel()

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Serve did not return")
	}
	<-f.srv.Done()
}

func TestRunConsole(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")

	in := "hello everyone\n\n/frobnicate\n/stats\n"
	require.NoError(t, f.srv.RunConsole(context.Background(), strings.NewReader(in)))

	alice.waitMessage("Server: hello everyone")
	f.waitConsole(`Command Error: Unknown command "/frobnicate"`)
	f.waitConsole("Users online: 1")
}

func TestAnnounce(t *testing.T) {
	f := newFixture(t, "")
	alice := login(t, f.srv, "alice", "")

	f.srv.Announce("maintenance at noon")
	alice.waitMessage("[Server] maintenance at noon")
}
