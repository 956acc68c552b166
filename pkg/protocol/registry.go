package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/scylladb/go-set/strset"
)

// Delimiter separates units inside a group frame.
const Delimiter byte = '\n'

// Schema maps packet ids to packets.
type Schema map[string]*Packet

// Decoded is the result of decoding one unit.
type Decoded struct {
	ID    string
	Code  byte
	Value Record
}

// Item is an id and record pair for EncodeGroup.
type Item struct {
	ID     string
	Record Record
}

// Registry is an immutable set of packets indexed by id and by code.
// It holds no mutable state and is safe for concurrent use.
type Registry struct {
	packets     map[string]*Packet
	byCode      [256]*Packet
	ids         []string
	reserved    *strset.Set
	limits      Limits
	fingerprint string
}

// NewRegistry validates schema and builds a Registry from it.
//
// Every packet must have a one byte code other than Delimiter, no two ids
// may share a code, and field names must be non-empty and unique within a
// packet. Violations are reported as a *SchemaError naming the ids involved.
func NewRegistry(schema Schema, opts ...Option) (*Registry, error) {
	o := options{limits: DefaultLimits()}
	for _, opt := range opts {
		opt(&o)
	}

	ids := make([]string, 0, len(schema))
	for id := range schema {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	r := &Registry{
		packets:  make(map[string]*Packet, len(schema)),
		ids:      ids,
		reserved: strset.New(o.reserved...),
		limits:   o.limits,
	}

	owners := make(map[byte][]string, len(schema))
	for _, id := range ids {
		p := schema[id]
		if id == "" {
			return nil, &SchemaError{Reason: "empty packet id"}
		}
		if p == nil {
			return nil, &SchemaError{IDs: []string{id}, Reason: "nil packet"}
		}
		bound := &Packet{id: id, code: p.code, fields: p.fields}
		if err := bound.checkCode(); err != nil {
			return nil, err
		}
		if bound.code[0] == Delimiter {
			return nil, &SchemaError{IDs: []string{id}, Code: bound.code, Reason: "code is the group delimiter"}
		}
		if err := checkFields(bound); err != nil {
			return nil, err
		}
		owners[bound.code[0]] = append(owners[bound.code[0]], id)
		r.packets[id] = bound
	}

	for c := 0; c < len(r.byCode); c++ {
		owned := owners[byte(c)]
		if len(owned) > 1 {
			return nil, &SchemaError{IDs: owned, Code: string([]byte{byte(c)}), Reason: "code used by more than one packet"}
		}
		if len(owned) == 1 {
			r.byCode[c] = r.packets[owned[0]]
		}
	}

	r.fingerprint = fingerprint(r)
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
func MustRegistry(schema Schema, opts ...Option) *Registry {
	r, err := NewRegistry(schema, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

func checkFields(p *Packet) error {
	seen := strset.New()
	for i, f := range p.fields {
		switch {
		case f.Name == "":
			return &SchemaError{IDs: []string{p.id}, Reason: fmt.Sprintf("field %d has no name", i)}
		case f.Serializer == nil:
			return &SchemaError{IDs: []string{p.id}, Reason: fmt.Sprintf("field %q has no serializer", f.Name)}
		case seen.Has(f.Name):
			return &SchemaError{IDs: []string{p.id}, Reason: fmt.Sprintf("field %q declared twice", f.Name)}
		}
		seen.Add(f.Name)
	}
	return nil
}

// fingerprint hashes everything that shapes the wire format: ids, codes,
// field order, field names and serializers.
func fingerprint(r *Registry) string {
	h := sha256.New()
	for _, id := range r.ids {
		p := r.packets[id]
		var b strings.Builder
		fmt.Fprintf(&b, "%s %q", id, p.code)
		for _, f := range p.fields {
			fmt.Fprintf(&b, " %s:%s", f.Name, f.Serializer.Name())
		}
		b.WriteByte('\n')
		h.Write([]byte(b.String()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Encode encodes rec as a unit of packet id.
func (r *Registry) Encode(id string, rec Record) ([]byte, error) {
	p, ok := r.packets[id]
	if !ok {
		return nil, &UnknownPacketError{ID: id}
	}
	return p.Encode(rec)
}

// EncodeTo appends a unit of packet id to e.
func (r *Registry) EncodeTo(e *Encoder, id string, rec Record) error {
	p, ok := r.packets[id]
	if !ok {
		return &UnknownPacketError{ID: id}
	}
	return p.EncodeTo(e, rec)
}

// Decode decodes one unit, dispatching on its leading code byte.
func (r *Registry) Decode(unit []byte) (Decoded, error) {
	if len(unit) == 0 {
		return Decoded{}, ErrEmptyUnit
	}
	p := r.byCode[unit[0]]
	if p == nil {
		return Decoded{}, &UnregisteredCodeError{Code: unit[0]}
	}
	rec, err := p.Decode(unit)
	if err != nil {
		return Decoded{}, err
	}
	return Decoded{ID: p.id, Code: unit[0], Value: rec}, nil
}

// Lookup returns the packet registered for code.
func (r *Registry) Lookup(code byte) (*Packet, bool) {
	p := r.byCode[code]
	return p, p != nil
}

// Packet returns the packet registered under id.
func (r *Registry) Packet(id string) (*Packet, bool) {
	p, ok := r.packets[id]
	return p, ok
}

// Code returns the code of packet id.
func (r *Registry) Code(id string) (byte, bool) {
	p, ok := r.packets[id]
	if !ok {
		return 0, false
	}
	return p.code[0], true
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Len returns the number of registered packets.
func (r *Registry) Len() int { return len(r.ids) }

// IsReserved reports whether id is a protocol-owned packet of r.
func (r *Registry) IsReserved(id string) bool {
	return r.reserved.Has(id)
}

// Limits returns the group limits r enforces.
func (r *Registry) Limits() Limits { return r.limits }

// Fingerprint returns a hex SHA-256 digest of the wire contract. Two
// registries with the same fingerprint encode and decode identically.
func (r *Registry) Fingerprint() string { return r.fingerprint }
