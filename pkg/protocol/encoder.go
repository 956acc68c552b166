package protocol

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"
)

// Encoder accumulates one unit (or a whole group) of wire bytes.
//
// It only knows fixed-width big-endian primitives and raw bytes; length
// prefixes, padding and range checks belong to the serializers. Write
// methods never fail.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder sized for a typical unit.
func NewEncoder() *Encoder {
	return NewEncoderWithCap(64)
}

// NewEncoderWithCap returns an Encoder whose buffer starts with capacity n.
// Packets with a fixed layout know n up front.
func NewEncoderWithCap(n int) *Encoder {
	return &Encoder{buf: make([]byte, 0, n)}
}

// Reset empties the encoder and keeps its buffer for reuse.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the bytes written so far. The slice aliases the encoder's
// buffer until the next Reset or Write.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes written.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// WriteByte appends b. Packet codes and Uint8 fields go through here.
func (e *Encoder) WriteByte(b byte) {
	e.buf = append(e.buf, b)
}

// WriteBytes appends b verbatim.
func (e *Encoder) WriteBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *Encoder) WriteUint16(v uint16) {
	e.buf = binary.BigEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) WriteUint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) WriteUint64(v uint64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
}

// WriteFloat16 appends v rounded to the nearest binary16 (ties to even).
// Magnitudes at or above 65520 become ±Inf.
func (e *Encoder) WriteFloat16(v float64) {
	e.WriteUint16(float16.Fromfloat32(narrowOdd(v)).Bits())
}

// narrowOdd narrows v to float32 rounding to odd: an inexact result is
// truncated toward zero and its last mantissa bit set. The 13 spare bits
// over binary16 keep the second rounding in WriteFloat16 from landing on
// a different value than rounding v directly.
func narrowOdd(v float64) float32 {
	f := float32(v)
	if float64(f) == v || math.IsNaN(v) || math.IsInf(float64(f), 0) {
		return f
	}
	bits := math.Float32bits(f)
	if math.Abs(float64(f)) > math.Abs(v) {
		bits--
	}
	return math.Float32frombits(bits | 1)
}

func (e *Encoder) WriteFloat32(v float32) {
	e.WriteUint32(math.Float32bits(v))
}

func (e *Encoder) WriteFloat64(v float64) {
	e.WriteUint64(math.Float64bits(v))
}
