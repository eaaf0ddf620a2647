package chat

import (
	"bufio"
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"wnschat/internal/app/events"
	"wnschat/internal/app/protocol"
	"wnschat/internal/app/store"
	"wnschat/internal/app/user"
)

const waitTimeout = 2 * time.Second

// syncBuffer is a bytes.Buffer safe for the console writer and the test goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	t       *testing.T
	srv     *Server
	console *syncBuffer
	events  *events.Recorder
	grants  *store.Memory
}

func newFixture(t *testing.T, password string) *fixture {
	t.Helper()

	f := &fixture{
		t:       t,
		console: &syncBuffer{},
		events:  &events.Recorder{},
		grants:  store.NewMemory(),
	}

	srv, err := NewServer(Options{
		ServerName:    "Test Server",
		Password:      password,
		ConsoleOutput: f.console,
		PasswordCost:  bcrypt.MinCost,
		Grants:        f.grants,
		Events:        f.events,
	})
	require.NoError(t, err)

	f.srv = srv
	t.Cleanup(srv.Stop)
	return f
}

func (f *fixture) grant(t *testing.T, username string, level user.PermissionLevel) {
	t.Helper()
	require.NoError(t, f.grants.SetLevel(t.Context(), username, level, "test"))
}

// run executes line as the console and fails the test on any error.
func (f *fixture) run(t *testing.T, line string) {
	t.Helper()
	require.NoError(t, f.srv.ExecuteLine(f.srv.Console(), line))
}

func (f *fixture) waitConsole(substr string) {
	f.t.Helper()
	require.Eventually(f.t, func() bool {
		return strings.Contains(f.console.String(), substr)
	}, waitTimeout, 5*time.Millisecond, "console never printed %q; got:\n%s", substr, f.console.String())
}

// peer is the client end of an in-memory connection to the server.
type peer struct {
	t        *testing.T
	conn     net.Conn
	registry *protocol.Registry
	packets  chan protocol.Packet
	info     *protocol.ServerInfo
}

// dial connects a new peer and reads the ServerInfo greeting.
func dial(t *testing.T, srv *Server, name string) *peer {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	go srv.HandleStream(serverSide, "pipe/"+name)

	p := &peer{
		t:        t,
		conn:     clientSide,
		registry: protocol.NewRegistry(),
		packets:  make(chan protocol.Packet, 128),
	}
	go p.readLoop()
	t.Cleanup(func() { clientSide.Close() })

	p.info = expectPacket[*protocol.ServerInfo](t, p)
	return p
}

// login dials, logs in as name and waits until the server has announced the join.
func login(t *testing.T, srv *Server, name, password string) *peer {
	t.Helper()

	p := dial(t, srv, name)
	p.send(&protocol.Login{
		ProtocolVersion: protocol.ProtocolVersion,
		Username:        name,
		PasswordHash:    HashPassword(password),
	})
	p.waitMessage(name + " joined the server.")
	return p
}

func (p *peer) readLoop() {
	defer close(p.packets)

	r := bufio.NewReader(p.conn)
	for {
		pkt, err := p.registry.ReadPacket(r)
		if err != nil {
			return
		}
		p.packets <- pkt
	}
}

func (p *peer) send(pkt protocol.Packet) {
	p.t.Helper()
	require.NoError(p.t, p.registry.WritePacket(p.conn, pkt))
}

func (p *peer) say(line string) {
	p.t.Helper()
	p.send(&protocol.SimpleMessage{Text: line})
}

// waitMessage skips packets until a SimpleMessage containing substr arrives and returns its text.
func (p *peer) waitMessage(substr string) string {
	p.t.Helper()

	for {
		msg := expectPacket[*protocol.SimpleMessage](p.t, p)
		if strings.Contains(msg.Text, substr) {
			return msg.Text
		}
	}
}

// waitClosed drains the peer until the server closes the stream.
func (p *peer) waitClosed() {
	p.t.Helper()

	timeout := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-p.packets:
			if !ok {
				return
			}
		case <-timeout:
			p.t.Fatal("connection was not closed")
		}
	}
}

// expectPacket skips packets until one of type T arrives.
func expectPacket[T protocol.Packet](t *testing.T, p *peer) T {
	t.Helper()

	var zero T
	timeout := time.After(waitTimeout)
	for {
		select {
		case pkt, ok := <-p.packets:
			if !ok {
				t.Fatalf("connection closed while waiting for %T", zero)
				return zero
			}
			if v, ok := pkt.(T); ok {
				return v
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}
