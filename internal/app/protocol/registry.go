package protocol

import (
	"fmt"
	"io"
	"reflect"

	"wnschat/internal/pkg/errs"
)

// Registry assigns one-byte ids to packet types in registration order.
// The order is part of the protocol: both ends must register the same types in the same order.
type Registry struct {
	factories []func() Packet
	ids       map[reflect.Type]byte
}

// NewRegistry returns a registry with the standard packet catalogue:
// SimpleMessage(0), Login(1), ServerInfo(2), Disconnect(3), Ping(4), UserInfo(5).
func NewRegistry() *Registry {
	r := &Registry{ids: make(map[reflect.Type]byte)}

	r.Register(func() Packet { return &SimpleMessage{} })
	r.Register(func() Packet { return &Login{} })
	r.Register(func() Packet { return &ServerInfo{} })
	r.Register(func() Packet { return &Disconnect{} })
	r.Register(func() Packet { return &Ping{} })
	r.Register(func() Packet { return &UserInfo{} })

	return r
}

// Register appends a packet type and returns its id. It panics on duplicates or when the id space is exhausted.
func (r *Registry) Register(factory func() Packet) byte {
	t := reflect.TypeOf(factory())

	if _, exists := r.ids[t]; exists {
		panic(fmt.Sprintf("protocol: packet type %s registered twice", t))
	}
	if len(r.factories) > 255 {
		panic("protocol: too many packet types")
	}

	id := byte(len(r.factories))
	r.factories = append(r.factories, factory)
	r.ids[t] = id
	return id
}

// ID returns the id assigned to the type of p.
func (r *Registry) ID(p Packet) (byte, bool) {
	id, ok := r.ids[reflect.TypeOf(p)]
	return id, ok
}

// Encode serializes p as its id byte followed by its fields.
func (r *Registry) Encode(p Packet) ([]byte, error) {
	id, ok := r.ID(p)
	if !ok {
		return nil, errs.NewError(errs.ErrUnregisteredType, reflect.TypeOf(p).String())
	}

	e := &encoder{buf: make([]byte, 0, 64)}
	e.byte(id)
	p.encode(e)
	return e.buf, nil
}

// WritePacket encodes p and writes it to w in a single Write call.
func (r *Registry) WritePacket(w io.Writer, p Packet) error {
	b, err := r.Encode(p)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadPacket blocks until one full packet has been read from rd.
// An unregistered id is a protocol error; a stream ending mid-packet is io.ErrUnexpectedEOF.
func (r *Registry) ReadPacket(rd io.Reader) (Packet, error) {
	d := newDecoder(rd)

	id, err := d.br.ReadByte()
	if err != nil {
		return nil, err
	}

	if int(id) >= len(r.factories) {
		return nil, errs.NewError(errs.ErrUnknownPacket, id)
	}

	p := r.factories[id]()
	p.decode(d)
	if err := d.finish(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.PacketName(), err)
	}
	return p, nil
}
