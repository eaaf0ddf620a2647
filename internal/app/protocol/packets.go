package protocol

import (
	"wnschat/internal/app/user"
)

// ProtocolVersion is the version spoken by this build. Clients with a different version are rejected.
const ProtocolVersion uint32 = 1

// Packet is one self-describing unit on the wire. The set of packet types is closed.
type Packet interface {
	// PacketName is the human-readable packet type name used in logs and errors.
	PacketName() string

	encode(e *encoder)
	decode(d *decoder)
}

// SimpleMessage carries one line of chat text in either direction.
type SimpleMessage struct {
	Text string
}

func (*SimpleMessage) PacketName() string { return "SimpleMessage" }

func (p *SimpleMessage) encode(e *encoder) { e.string(p.Text) }

func (p *SimpleMessage) decode(d *decoder) { p.Text = d.string() }

// Login is the first packet a client sends.
type Login struct {
	ProtocolVersion uint32
	Username        string
	PasswordHash    string
}

func (*Login) PacketName() string { return "Login" }

func (p *Login) encode(e *encoder) {
	e.uint32(p.ProtocolVersion)
	e.string(p.Username)
	e.string(p.PasswordHash)
}

func (p *Login) decode(d *decoder) {
	p.ProtocolVersion = d.uint32()
	p.Username = d.string()
	p.PasswordHash = d.string()
}

// ServerInfo is sent on accept and again whenever the server settings change.
type ServerInfo struct {
	ProtocolVersion  uint32
	UserCount        int32
	PasswordRequired bool
	ServerName       string
}

func (*ServerInfo) PacketName() string { return "ServerInfo" }

func (p *ServerInfo) encode(e *encoder) {
	e.uint32(p.ProtocolVersion)
	e.int32(p.UserCount)
	e.bool(p.PasswordRequired)
	e.string(p.ServerName)
}

func (p *ServerInfo) decode(d *decoder) {
	p.ProtocolVersion = d.uint32()
	p.UserCount = d.int32()
	p.PasswordRequired = d.bool()
	p.ServerName = d.string()
}

// Disconnect announces that the sender is closing the connection.
type Disconnect struct {
	Reason string
}

func (*Disconnect) PacketName() string { return "Disconnect" }

func (p *Disconnect) encode(e *encoder) { e.string(p.Reason) }

func (p *Disconnect) decode(d *decoder) { p.Reason = d.string() }

// UserInfo tells a client its own username and permission level.
type UserInfo struct {
	Username        string
	PermissionLevel user.PermissionLevel
}

func (*UserInfo) PacketName() string { return "UserInfo" }

func (p *UserInfo) encode(e *encoder) {
	e.string(p.Username)
	e.int32(int32(p.PermissionLevel))
}

func (p *UserInfo) decode(d *decoder) {
	p.Username = d.string()
	p.PermissionLevel = user.PermissionLevel(d.int32())
}
