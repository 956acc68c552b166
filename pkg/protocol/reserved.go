package protocol

import (
	"sort"

	"github.com/scylladb/go-set/strset"
)

// Ids of the protocol-owned packets every internal registry carries.
const (
	// IDConnectionReconcile tells a client the connection id it was assigned.
	IDConnectionReconcile = "connectionReconcile"

	// IDPing carries a round-trip counter for keepalive and latency.
	IDPing = "ping"
)

// Field names of the reserved packets.
const (
	FieldConnectionID = "connectionId"
	FieldPing         = "ping"
)

func reservedSchema() Schema {
	return Schema{
		IDConnectionReconcile: NewPacket("*", F(FieldConnectionID, VarString)),
		IDPing:                NewPacket("^", F(FieldPing, Uint32)),
	}
}

var reservedIDs = strset.New(IDConnectionReconcile, IDPing)

// ReservedIDs returns the ids of the protocol-owned packets, sorted.
func ReservedIDs() []string {
	ids := reservedIDs.List()
	sort.Strings(ids)
	return ids
}

// IsReserved reports whether id belongs to a protocol-owned packet.
func IsReserved(id string) bool {
	return reservedIDs.Has(id)
}

// NewInternalRegistry merges schema with the protocol-owned packets and
// builds a Registry from the result. An application packet may not reuse a
// reserved id; that is checked first. Reserved codes are then protected by
// the code uniqueness check of NewRegistry.
func NewInternalRegistry(schema Schema, opts ...Option) (*Registry, error) {
	app := strset.New()
	for id := range schema {
		app.Add(id)
	}
	if clash := strset.Intersection(app, reservedIDs); !clash.IsEmpty() {
		ids := clash.List()
		sort.Strings(ids)
		return nil, &SchemaError{IDs: ids, Reason: "id is reserved by the protocol"}
	}

	merged := make(Schema, len(schema)+reservedIDs.Size())
	for id, p := range schema {
		merged[id] = p
	}
	for id, p := range reservedSchema() {
		merged[id] = p
	}
	all := make([]Option, 0, len(opts)+1)
	all = append(all, opts...)
	return NewRegistry(merged, append(all, withReserved(reservedIDs.List()...))...)
}

// MustInternalRegistry is like NewInternalRegistry but panics on error.
func MustInternalRegistry(schema Schema, opts ...Option) *Registry {
	r, err := NewInternalRegistry(schema, opts...)
	if err != nil {
		panic(err)
	}
	return r
}
