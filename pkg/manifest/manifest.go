// Package manifest describes a protocol registry as JSON and publishes the
// description to S3.
//
// A manifest lists every packet id with its dispatch code and field layout,
// plus the registry fingerprint. Clients compare fingerprints to detect a
// schema that no longer matches the one they were built against.
//
// Example:
//
//	m := manifest.FromRegistry(packets.Registry())
//	data, err := m.JSON()
package manifest

import (
	"encoding/json"

	"github.com/mikedelcastillo/pip-pip/pkg/protocol"
)

// Field describes one field of a packet.
type Field struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Len        int    `json:"len"`
	Serializer string `json:"serializer"`
}

// Packet describes one registered packet.
type Packet struct {
	ID       string  `json:"id"`
	Code     string  `json:"code"`
	Reserved bool    `json:"reserved,omitempty"`
	FixedLen int     `json:"fixedLen"`
	Fields   []Field `json:"fields"`
}

// Manifest is the JSON description of a registry.
type Manifest struct {
	Fingerprint string   `json:"fingerprint"`
	Packets     []Packet `json:"packets"`
}

// FromRegistry builds the manifest of reg. Packets are sorted by id and
// fields keep their wire order. Len and FixedLen are -1 for variable width.
func FromRegistry(reg *protocol.Registry) Manifest {
	m := Manifest{
		Fingerprint: reg.Fingerprint(),
		Packets:     make([]Packet, 0, reg.Len()),
	}
	for _, id := range reg.IDs() {
		p, _ := reg.Packet(id)
		fields := p.Fields()
		mp := Packet{
			ID:       id,
			Code:     p.Code(),
			Reserved: reg.IsReserved(id),
			FixedLen: p.FixedLen(),
			Fields:   make([]Field, len(fields)),
		}
		for i, f := range fields {
			mp.Fields[i] = Field{
				Name:       f.Name,
				Kind:       f.Serializer.Kind().String(),
				Len:        f.Serializer.Len(),
				Serializer: f.Serializer.Name(),
			}
		}
		m.Packets = append(m.Packets, mp)
	}
	return m
}

// JSON returns the indented JSON encoding of the manifest.
func (m Manifest) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Packet returns the description of id.
func (m Manifest) Packet(id string) (Packet, bool) {
	for _, p := range m.Packets {
		if p.ID == id {
			return p, true
		}
	}
	return Packet{}, false
}
