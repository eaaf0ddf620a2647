package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wnschat/internal/app/user"
	"wnschat/internal/pkg/errs"
)

// onlyReader hides io.ByteReader so the single-byte fallback path is exercised.
type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }

func TestRoundTrip(t *testing.T) {
	reg := NewRegistry()

	packets := []Packet{
		&SimpleMessage{Text: "hello, wörld"},
		&Login{ProtocolVersion: ProtocolVersion, Username: "alice", PasswordHash: "abc123"},
		&ServerInfo{ProtocolVersion: ProtocolVersion, UserCount: 3, PasswordRequired: true, ServerName: "WNSChat Server"},
		&Disconnect{Reason: "bye"},
		&Ping{
			SendingUser:     "alice",
			DestinationUser: "bob",
			State:           PingGoingBack,
			Hops:            []Hop{{Username: "alice", Timestamp: 1}, {Username: "bob", Timestamp: -5}},
		},
		&UserInfo{Username: "alice", PermissionLevel: user.LevelAdmin},
	}

	for _, p := range packets {
		t.Run(p.PacketName(), func(t *testing.T) {
			b, err := reg.Encode(p)
			require.NoError(t, err)

			got, err := reg.ReadPacket(bytes.NewReader(b))
			require.NoError(t, err)
			assert.Equal(t, p, got)

			got, err = reg.ReadPacket(onlyReader{bytes.NewReader(b)})
			require.NoError(t, err)
			assert.Equal(t, p, got)
		})
	}
}

func TestRegistrationOrder(t *testing.T) {
	reg := NewRegistry()

	for want, p := range []Packet{&SimpleMessage{}, &Login{}, &ServerInfo{}, &Disconnect{}, &Ping{}, &UserInfo{}} {
		id, ok := reg.ID(p)
		require.True(t, ok)
		assert.Equal(t, byte(want), id, p.PacketName())
	}
}

func TestStringEncoding(t *testing.T) {
	reg := NewRegistry()

	b, err := reg.Encode(&SimpleMessage{Text: strings.Repeat("x", 200)})
	require.NoError(t, err)

	// id, then 200 as a 7-bit varint (0xC8 0x01)
	assert.Equal(t, []byte{0x00, 0xC8, 0x01}, b[:3])
	assert.Len(t, b, 203)
}

func TestSequentialPacketsShareStream(t *testing.T) {
	reg := NewRegistry()
	var buf bytes.Buffer

	require.NoError(t, reg.WritePacket(&buf, &SimpleMessage{Text: "one"}))
	require.NoError(t, reg.WritePacket(&buf, &Disconnect{Reason: "two"}))

	r := onlyReader{&buf}
	first, err := reg.ReadPacket(r)
	require.NoError(t, err)
	second, err := reg.ReadPacket(r)
	require.NoError(t, err)

	assert.Equal(t, &SimpleMessage{Text: "one"}, first)
	assert.Equal(t, &Disconnect{Reason: "two"}, second)

	_, err = reg.ReadPacket(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestUnknownPacketID(t *testing.T) {
	_, err := NewRegistry().ReadPacket(bytes.NewReader([]byte{42}))

	require.Error(t, err)
	assert.True(t, errs.IsProtocol(err))
	assert.Equal(t, errs.ErrUnknownPacket, errs.CodeOf(err))
}

func TestTruncatedPacket(t *testing.T) {
	reg := NewRegistry()
	b, err := reg.Encode(&Login{ProtocolVersion: 1, Username: "alice", PasswordHash: ""})
	require.NoError(t, err)

	_, err = reg.ReadPacket(bytes.NewReader(b[:len(b)-3]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestOversizedFields(t *testing.T) {
	reg := NewRegistry()

	// empty usernames, GOING_TO, hop count of 1<<30
	b := []byte{4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x40}
	_, err := reg.ReadPacket(bytes.NewReader(b))
	require.Error(t, err)
	assert.Equal(t, errs.ErrFieldTooLarge, errs.CodeOf(err))

	// string length of 1<<21
	b = []byte{0, 0x80, 0x80, 0x80, 0x01}
	_, err = reg.ReadPacket(bytes.NewReader(b))
	require.Error(t, err)
	assert.Equal(t, errs.ErrFieldTooLarge, errs.CodeOf(err))
}

type unregistered struct{ SimpleMessage }

func TestEncodeUnregistered(t *testing.T) {
	_, err := NewRegistry().Encode(&unregistered{})
	assert.Equal(t, errs.ErrUnregisteredType, errs.CodeOf(err))
}

func TestRegisterDuplicatePanics(t *testing.T) {
	reg := NewRegistry()
	assert.Panics(t, func() { reg.Register(func() Packet { return &Ping{} }) })
}

func TestPingTrace(t *testing.T) {
	start := time.Unix(1700000000, 0)
	p := &Ping{SendingUser: "alice", DestinationUser: "bob"}

	p.AddHop("alice", start)
	p.AddHop("bob", start.Add(1500*time.Microsecond))

	assert.Equal(t, 1500*time.Microsecond, p.Elapsed())

	trace := p.Trace()
	assert.Contains(t, trace, "Ping Trace:")
	assert.Contains(t, trace, "alice")
	assert.Contains(t, trace, "1.500 ms")
	assert.Contains(t, trace, "Total time: 1.500 ms")
}
