package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Variable is the Len of a serializer whose encoded width depends on the value.
const Variable = -1

// MaxStringLen is the largest byte length a VarString can carry.
const MaxStringLen = math.MaxUint16

// Serializer encodes and decodes one field value.
//
// A fixed-width serializer always writes exactly Len bytes. A variable-width
// serializer (Len == Variable) must be self-describing: Skip has to be able
// to find the end of an encoded value without outside help.
type Serializer interface {
	// Name is a stable descriptor used in manifests and fingerprints.
	Name() string
	Kind() Kind
	Len() int
	EncodeTo(e *Encoder, v Value) error
	DecodeFrom(d *Decoder) (Value, error)
	// Skip advances d past one encoded value without materializing it.
	Skip(d *Decoder) error
}

// Encode encodes a single value with s.
func Encode(s Serializer, v Value) ([]byte, error) {
	n := s.Len()
	if n == Variable {
		n = 16
	}
	e := NewEncoderWithCap(n)
	if err := s.EncodeTo(e, v); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// Decode decodes a single value with s. Every byte of b must be consumed.
func Decode(s Serializer, b []byte) (Value, error) {
	d := NewDecoder(b)
	v, err := s.DecodeFrom(d)
	if err != nil {
		return Value{}, err
	}
	if !d.EOF() {
		return Value{}, ErrTrailingBytes
	}
	return v, nil
}

func checkKind(s Serializer, v Value) error {
	if v.kind != s.Kind() {
		return fmt.Errorf("%w: %s field given %s", ErrKindMismatch, s.Kind(), v.kind)
	}
	return nil
}

// =============================================================================
// Unsigned integers
// =============================================================================

type uintSerializer struct {
	name  string
	width int
}

// Fixed-width unsigned integers, big-endian.
var (
	Uint8  Serializer = uintSerializer{"uint8", 1}
	Uint16 Serializer = uintSerializer{"uint16", 2}
	Uint32 Serializer = uintSerializer{"uint32", 4}
	Uint64 Serializer = uintSerializer{"uint64", 8}
)

func (s uintSerializer) Name() string { return s.name }
func (s uintSerializer) Kind() Kind   { return KindUint }
func (s uintSerializer) Len() int     { return s.width }

func (s uintSerializer) max() uint64 {
	if s.width == 8 {
		return math.MaxUint64
	}
	return 1<<(8*uint(s.width)) - 1
}

func (s uintSerializer) EncodeTo(e *Encoder, v Value) error {
	if err := checkKind(s, v); err != nil {
		return err
	}
	if v.u > s.max() {
		return fmt.Errorf("%w: %d does not fit %s", ErrValueOutOfRange, v.u, s.name)
	}
	switch s.width {
	case 1:
		e.WriteByte(byte(v.u))
	case 2:
		e.WriteUint16(uint16(v.u))
	case 4:
		e.WriteUint32(uint32(v.u))
	default:
		e.WriteUint64(v.u)
	}
	return nil
}

func (s uintSerializer) DecodeFrom(d *Decoder) (Value, error) {
	var (
		u   uint64
		err error
	)
	switch s.width {
	case 1:
		var b byte
		b, err = d.ReadByte()
		u = uint64(b)
	case 2:
		var v uint16
		v, err = d.ReadUint16()
		u = uint64(v)
	case 4:
		var v uint32
		v, err = d.ReadUint32()
		u = uint64(v)
	default:
		u, err = d.ReadUint64()
	}
	if err != nil {
		return Value{}, err
	}
	return UintValue(u), nil
}

func (s uintSerializer) Skip(d *Decoder) error { return d.Skip(s.width) }

// =============================================================================
// Floats
// =============================================================================

type floatSerializer struct {
	name  string
	width int
	// overflow is the smallest magnitude that rounds to infinity at this
	// width: the largest finite value plus half an ulp.
	overflow float64
}

// IEEE 754 floats, big-endian, rounded to nearest (ties to even). A finite
// value that would round to infinity fails with ErrValueOutOfRange; ±Inf
// and NaN encode as themselves.
var (
	Float16 Serializer = floatSerializer{"float16", 2, 65520}
	Float32 Serializer = floatSerializer{"float32", 4, 0x1.ffffffp+127}
	Float64 Serializer = floatSerializer{"float64", 8, math.Inf(1)}
)

func (s floatSerializer) Name() string { return s.name }
func (s floatSerializer) Kind() Kind   { return KindFloat }
func (s floatSerializer) Len() int     { return s.width }

func (s floatSerializer) EncodeTo(e *Encoder, v Value) error {
	if err := checkKind(s, v); err != nil {
		return err
	}
	if !math.IsInf(v.f, 0) && math.Abs(v.f) >= s.overflow {
		return fmt.Errorf("%w: %g does not fit %s", ErrValueOutOfRange, v.f, s.name)
	}
	switch s.width {
	case 2:
		e.WriteFloat16(v.f)
	case 4:
		e.WriteFloat32(float32(v.f))
	default:
		e.WriteFloat64(v.f)
	}
	return nil
}

func (s floatSerializer) DecodeFrom(d *Decoder) (Value, error) {
	var (
		f   float64
		err error
	)
	switch s.width {
	case 2:
		f, err = d.ReadFloat16()
	case 4:
		var v float32
		v, err = d.ReadFloat32()
		f = float64(v)
	default:
		f, err = d.ReadFloat64()
	}
	if err != nil {
		return Value{}, err
	}
	return FloatValue(f), nil
}

func (s floatSerializer) Skip(d *Decoder) error { return d.Skip(s.width) }

// =============================================================================
// Bool
// =============================================================================

type boolSerializer struct{}

// Bool is a single byte, 0 or 1. Any other byte fails to decode.
var Bool Serializer = boolSerializer{}

func (boolSerializer) Name() string { return "bool" }
func (boolSerializer) Kind() Kind   { return KindBool }
func (boolSerializer) Len() int     { return 1 }

func (s boolSerializer) EncodeTo(e *Encoder, v Value) error {
	if err := checkKind(s, v); err != nil {
		return err
	}
	e.WriteByte(byte(v.u))
	return nil
}

func (boolSerializer) DecodeFrom(d *Decoder) (Value, error) {
	b, err := d.ReadByte()
	if err != nil {
		return Value{}, err
	}
	if b > 1 {
		return Value{}, fmt.Errorf("%w: 0x%02x", ErrInvalidBool, b)
	}
	return Value{kind: KindBool, u: uint64(b)}, nil
}

func (boolSerializer) Skip(d *Decoder) error { return d.Skip(1) }

// =============================================================================
// Strings
// =============================================================================

type varStringSerializer struct{}

// VarString is a uint16 byte count followed by the UTF-8 payload.
var VarString Serializer = varStringSerializer{}

func (varStringSerializer) Name() string { return "varstring" }
func (varStringSerializer) Kind() Kind   { return KindString }
func (varStringSerializer) Len() int     { return Variable }

func (s varStringSerializer) EncodeTo(e *Encoder, v Value) error {
	if err := checkKind(s, v); err != nil {
		return err
	}
	return writeVarString(e, v.s)
}

func (varStringSerializer) DecodeFrom(d *Decoder) (Value, error) {
	b, err := readVarString(d)
	if err != nil {
		return Value{}, err
	}
	return StringValue(string(b)), nil
}

func (varStringSerializer) Skip(d *Decoder) error {
	_, err := readVarString(d)
	return err
}

func writeVarString(e *Encoder, s string) error {
	if len(s) > MaxStringLen {
		return fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
	}
	e.WriteUint16(uint16(len(s)))
	e.WriteBytes([]byte(s))
	return nil
}

func readVarString(d *Decoder) ([]byte, error) {
	n, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	if int(n) > d.Remaining() {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrLengthExceedsBuffer, n, d.Remaining())
	}
	return d.ReadBytes(int(n))
}

type fixedStringSerializer struct {
	n int
}

// FixedString returns a serializer that always writes exactly n bytes.
// Shorter strings are padded with spaces. Longer strings are truncated to n
// bytes, and a UTF-8 sequence cut by the truncation is replaced with spaces.
// Decoding returns the padded or truncated text as written.
func FixedString(n int) Serializer {
	if n < 0 || n > MaxStringLen {
		panic(fmt.Sprintf("protocol: invalid fixed string length %d", n))
	}
	return fixedStringSerializer{n: n}
}

func (s fixedStringSerializer) Name() string { return fmt.Sprintf("string(%d)", s.n) }
func (fixedStringSerializer) Kind() Kind     { return KindString }
func (s fixedStringSerializer) Len() int     { return s.n }

func (s fixedStringSerializer) EncodeTo(e *Encoder, v Value) error {
	if err := checkKind(s, v); err != nil {
		return err
	}
	e.WriteBytes([]byte(fitString(v.s, s.n)))
	return nil
}

func (s fixedStringSerializer) DecodeFrom(d *Decoder) (Value, error) {
	b, err := d.ReadBytes(s.n)
	if err != nil {
		return Value{}, err
	}
	return StringValue(string(b)), nil
}

func (s fixedStringSerializer) Skip(d *Decoder) error { return d.Skip(s.n) }

// fitString pads or truncates s to exactly n bytes.
func fitString(s string, n int) string {
	if len(s) == n {
		return s
	}
	if len(s) < n {
		return s + strings.Repeat(" ", n-len(s))
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + strings.Repeat(" ", n-cut)
}

// =============================================================================
// JSON
// =============================================================================

type jsonSerializer struct{}

// JSON carries JSON text inside a VarString. Meant for low-frequency
// payloads; it is neither compact nor fast.
var JSON Serializer = jsonSerializer{}

func (jsonSerializer) Name() string { return "json" }
func (jsonSerializer) Kind() Kind   { return KindJSON }
func (jsonSerializer) Len() int     { return Variable }

func (s jsonSerializer) EncodeTo(e *Encoder, v Value) error {
	if err := checkKind(s, v); err != nil {
		return err
	}
	if !json.Valid([]byte(v.s)) {
		return ErrInvalidJSON
	}
	return writeVarString(e, v.s)
}

func (jsonSerializer) DecodeFrom(d *Decoder) (Value, error) {
	b, err := readVarString(d)
	if err != nil {
		return Value{}, err
	}
	if !json.Valid(b) {
		return Value{}, ErrInvalidJSON
	}
	return JSONValue(json.RawMessage(b)), nil
}

func (jsonSerializer) Skip(d *Decoder) error {
	_, err := readVarString(d)
	return err
}
