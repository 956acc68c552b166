package protocol

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"
)

// Decoder walks a unit from the front.
//
// Reads never go past the end of the buffer: a read that needs more bytes
// than remain returns ErrBufferTooShort and leaves the position unchanged.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a Decoder positioned at the start of buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// EOF reports whether every byte has been consumed. Packet.Decode uses it
// to reject trailing bytes.
func (d *Decoder) EOF() bool {
	return d.pos >= len(d.buf)
}

// Position returns the offset of the next unread byte.
func (d *Decoder) Position() int {
	return d.pos
}

// take returns the next n bytes and advances past them.
func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || n > d.Remaining() {
		return nil, ErrBufferTooShort
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// Skip advances past n bytes without reading them.
func (d *Decoder) Skip(n int) error {
	_, err := d.take(n)
	return err
}

func (d *Decoder) ReadByte() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBytes returns the next n bytes. The slice aliases the unit; copy it
// before keeping it past the unit's lifetime.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	return d.take(n)
}

// PeekUint16 returns the next big-endian uint16 without consuming it.
// Measuring a varstring only needs its prefix.
func (d *Decoder) PeekUint16() (uint16, error) {
	if d.Remaining() < 2 {
		return 0, ErrBufferTooShort
	}
	return binary.BigEndian.Uint16(d.buf[d.pos:]), nil
}

func (d *Decoder) ReadUint16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) ReadUint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) ReadUint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadFloat16 reads a binary16. Every binary16 value is exact as float64.
func (d *Decoder) ReadFloat16() (float64, error) {
	v, err := d.ReadUint16()
	if err != nil {
		return 0, err
	}
	return float64(float16.Frombits(v).Float32()), nil
}

func (d *Decoder) ReadFloat32() (float32, error) {
	v, err := d.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (d *Decoder) ReadFloat64() (float64, error) {
	v, err := d.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}
