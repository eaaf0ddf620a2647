/*
Package protocol implements the binary wire codec shared by the chat server and its clients.

This file contains the low-level field encoder and decoder. Integers are little-endian and
fixed-width, booleans are a single byte, strings carry a 7-bit variable-length byte count
followed by UTF-8 bytes, and lists carry a 32-bit element count.
*/
package protocol

import (
	"encoding/binary"
	"errors"
	"io"

	"wnschat/internal/pkg/errs"
)

const (
	// MaxStringBytes is the largest string the decoder accepts.
	MaxStringBytes = 1 << 20

	// MaxHops is the largest hop list the decoder accepts in a Ping.
	MaxHops = 1024
)

// encoder appends fields to an in-memory buffer.
type encoder struct {
	buf []byte
}

func (e *encoder) byte(v byte) { e.buf = append(e.buf, v) }

func (e *encoder) bool(v bool) {
	if v {
		e.byte(1)
	} else {
		e.byte(0)
	}
}

func (e *encoder) uint32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

func (e *encoder) int32(v int32) { e.uint32(uint32(v)) }

func (e *encoder) int64(v int64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(v)) }

func (e *encoder) string(s string) {
	e.buf = binary.AppendUvarint(e.buf, uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// decoder reads fields from a stream. The first error sticks; later reads return zero values.
type decoder struct {
	r       io.Reader
	br      io.ByteReader
	err     error
	scratch [8]byte
}

func newDecoder(r io.Reader) *decoder {
	d := &decoder{r: r}
	if br, ok := r.(io.ByteReader); ok {
		d.br = br
	} else {
		d.br = singleByteReader{d}
	}
	return d
}

// singleByteReader reads one byte at a time so the decoder never consumes past the packet.
type singleByteReader struct{ d *decoder }

func (s singleByteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(s.d.r, s.d.scratch[:1]); err != nil {
		return 0, err
	}
	return s.d.scratch[0], nil
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *decoder) fixed(n int) []byte {
	if d.err != nil {
		return nil
	}
	if _, err := io.ReadFull(d.r, d.scratch[:n]); err != nil {
		d.fail(err)
		return nil
	}
	return d.scratch[:n]
}

func (d *decoder) byte() byte {
	b := d.fixed(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) bool() bool { return d.byte() != 0 }

func (d *decoder) uint32() uint32 {
	b := d.fixed(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) int32() int32 { return int32(d.uint32()) }

func (d *decoder) int64() int64 {
	b := d.fixed(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}

	n, err := binary.ReadUvarint(d.br)
	if err != nil {
		d.fail(err)
		return ""
	}
	if n > MaxStringBytes {
		d.fail(errs.NewError(errs.ErrFieldTooLarge, "string length exceeds limit"))
		return ""
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.fail(err)
		return ""
	}
	return string(buf)
}

// count reads a list length and validates it against limit.
func (d *decoder) count(limit int) int {
	n := d.int32()
	if d.err != nil {
		return 0
	}
	if n < 0 || int(n) > limit {
		d.fail(errs.NewError(errs.ErrFieldTooLarge, "list length out of range"))
		return 0
	}
	return int(n)
}

// finish reports the sticky error. A stream that ends inside a packet is an unexpected EOF.
func (d *decoder) finish() error {
	if errors.Is(d.err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return d.err
}
