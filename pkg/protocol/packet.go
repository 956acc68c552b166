package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCodeMismatch is returned by Packet.Decode when the unit starts with
// another packet's code.
var ErrCodeMismatch = errors.New("protocol: unit code does not match packet")

// Field is one named, typed slot of a packet.
type Field struct {
	Name       string
	Serializer Serializer
}

// F is shorthand for building a Field.
func F(name string, s Serializer) Field {
	return Field{Name: name, Serializer: s}
}

// Packet is a message type: a one byte dispatch code followed by an ordered
// list of fields. Field order is part of the wire contract.
//
// A Packet is immutable once created and may be shared between registries.
type Packet struct {
	id     string // set on the copy held by a Registry
	code   string
	fields []Field
}

// NewPacket creates a packet with the given code and fields. The code and
// field list are validated when the packet is added to a Registry.
func NewPacket(code string, fields ...Field) *Packet {
	return &Packet{
		code:   code,
		fields: append([]Field(nil), fields...),
	}
}

// ID returns the id the packet is registered under, or "" for a packet
// that is not held by a Registry.
func (p *Packet) ID() string { return p.id }

// Code returns the packet's dispatch code.
func (p *Packet) Code() string { return p.code }

// Fields returns a copy of the field list.
func (p *Packet) Fields() []Field {
	return append([]Field(nil), p.fields...)
}

// FixedLen returns the encoded length including the code byte when every
// field is fixed-width, and Variable otherwise.
func (p *Packet) FixedLen() int {
	n := len(p.code)
	for _, f := range p.fields {
		l := f.Serializer.Len()
		if l == Variable {
			return Variable
		}
		n += l
	}
	return n
}

func (p *Packet) label() string {
	if p.id != "" {
		return p.id
	}
	return p.code
}

func (p *Packet) checkCode() error {
	if len(p.code) != 1 {
		return &SchemaError{IDs: idList(p.id), Code: p.code, Reason: "code must be exactly one byte"}
	}
	return nil
}

func idList(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}

// Encode encodes rec as one unit: the code byte, then each field in order.
// Keys of rec that are not fields are ignored.
func (p *Packet) Encode(rec Record) ([]byte, error) {
	e := NewEncoderWithCap(p.sizeHint())
	if err := p.EncodeTo(e, rec); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// EncodeTo appends the encoded unit to e.
func (p *Packet) EncodeTo(e *Encoder, rec Record) error {
	if err := p.checkCode(); err != nil {
		return err
	}
	e.WriteByte(p.code[0])
	for _, f := range p.fields {
		v, ok := rec[f.Name]
		if !ok {
			return &MalformedFieldError{Packet: p.label(), Field: f.Name, Err: ErrMissingField}
		}
		if err := f.Serializer.EncodeTo(e, v); err != nil {
			return &MalformedFieldError{Packet: p.label(), Field: f.Name, Err: err}
		}
	}
	return nil
}

func (p *Packet) sizeHint() int {
	if n := p.FixedLen(); n != Variable {
		return n
	}
	return 64
}

// Decode decodes one unit. The unit must start with the packet's code and
// contain nothing after the last field.
func (p *Packet) Decode(unit []byte) (Record, error) {
	d, err := p.openUnit(unit)
	if err != nil {
		return nil, err
	}
	rec := make(Record, len(p.fields))
	for _, f := range p.fields {
		v, err := f.Serializer.DecodeFrom(d)
		if err != nil {
			return nil, &MalformedFieldError{Packet: p.label(), Field: f.Name, Err: err}
		}
		rec[f.Name] = v
	}
	if !d.EOF() {
		return nil, &MalformedFieldError{
			Packet: p.label(),
			Err:    fmt.Errorf("%w: %d bytes", ErrTrailingBytes, d.Remaining()),
		}
	}
	return rec, nil
}

// PeekLength returns the length of the unit at the start of b, walking the
// field layout without decoding values. b may hold more data after the unit.
func (p *Packet) PeekLength(b []byte) (int, error) {
	d, err := p.openUnit(b)
	if err != nil {
		return 0, err
	}
	for _, f := range p.fields {
		if err := f.Serializer.Skip(d); err != nil {
			return 0, &MalformedFieldError{Packet: p.label(), Field: f.Name, Err: err}
		}
	}
	return d.Position(), nil
}

func (p *Packet) openUnit(b []byte) (*Decoder, error) {
	if err := p.checkCode(); err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, ErrEmptyUnit
	}
	if b[0] != p.code[0] {
		return nil, &MalformedFieldError{
			Packet: p.label(),
			Err:    fmt.Errorf("%w: got %q, want %q", ErrCodeMismatch, b[0], p.code),
		}
	}
	d := NewDecoder(b)
	d.pos = 1
	return d, nil
}

// RecordFromJSON builds a Record from a JSON object, converting each member
// to the kind of the matching field. Members that are not fields are ignored.
func (p *Packet) RecordFromJSON(data []byte) (Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	rec := make(Record, len(p.fields))
	for _, f := range p.fields {
		m, ok := raw[f.Name]
		if !ok {
			return nil, &MalformedFieldError{Packet: p.label(), Field: f.Name, Err: ErrMissingField}
		}
		v, err := valueFromJSON(f.Serializer.Kind(), m)
		if err != nil {
			return nil, &MalformedFieldError{Packet: p.label(), Field: f.Name, Err: err}
		}
		rec[f.Name] = v
	}
	return rec, nil
}

func valueFromJSON(k Kind, m json.RawMessage) (Value, error) {
	var err error
	switch k {
	case KindUint:
		var u uint64
		if err = json.Unmarshal(m, &u); err == nil {
			return UintValue(u), nil
		}
	case KindFloat:
		var f float64
		if err = json.Unmarshal(m, &f); err == nil {
			return FloatValue(f), nil
		}
	case KindBool:
		var b bool
		if err = json.Unmarshal(m, &b); err == nil {
			return BoolValue(b), nil
		}
	case KindString:
		var s string
		if err = json.Unmarshal(m, &s); err == nil {
			return StringValue(s), nil
		}
	case KindJSON:
		var buf bytes.Buffer
		if err = json.Compact(&buf, m); err == nil {
			return JSONValue(buf.Bytes()), nil
		}
	default:
		return Value{}, fmt.Errorf("%w: %s", ErrKindMismatch, k)
	}
	return Value{}, fmt.Errorf("%w: %s field: %v", ErrKindMismatch, k, err)
}
