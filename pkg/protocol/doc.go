// Package protocol implements the pip-pip packet wire protocol.
//
// Many strongly typed message kinds share one byte stream between a real-time
// client and server. Each kind is a Packet: a one byte dispatch code and an
// ordered list of fields, each encoded by a primitive Serializer. Packets are
// collected into an immutable Registry that encodes, decodes and groups units.
//
// The package never performs I/O and never interprets what a message means.
// Ordering, loss and reconnection belong to the transport.
//
// # Design Goals
//
//   - Small units: a code byte plus the raw field bytes, no tags or separators
//   - No reflection: fields are encoded by the serializer chosen in the schema
//   - Fail loudly: short buffers, bad lengths and unknown codes are errors
//   - Immutable registries: validated once, shared by every connection
//
// # Wire Format
//
// A unit is the code byte followed by each field in declared order:
//
//	┌──────────┬──────────────┬──────────────┬─────┐
//	│ Code     │ Field 1      │ Field 2      │ ... │
//	│ (1 byte) │ (serializer) │ (serializer) │     │
//	└──────────┴──────────────┴──────────────┴─────┘
//
// A group frame joins units with Delimiter ('\n'):
//
//	unit₁ '\n' unit₂ '\n' unit₃
//
// Group decoding does not search for the delimiter. The length of each unit
// is derived from its schema, and the byte after it must be a delimiter or the
// end of the frame. Payloads may therefore contain '\n'.
//
// # Serializers
//
// All fixed-width numbers are big-endian.
//
//   - Uint8, Uint16, Uint32, Uint64: unsigned integers of 1, 2, 4 and 8 bytes
//   - Float16, Float32, Float64: IEEE 754 binary16, binary32 and binary64
//   - Bool: one byte, 0 or 1
//   - VarString: uint16 byte count followed by UTF-8 bytes
//   - FixedString(n): exactly n bytes, space padded or truncated
//   - JSON: JSON text carried as a VarString
//
// # Values
//
// Field values are Values, a closed variant built with UintValue, FloatValue,
// BoolValue, StringValue and JSONValue. A Record maps field names to values.
// Serializers reject values of the wrong kind and numbers too large for the
// field width.
//
// # Reserved Packets
//
// NewInternalRegistry adds the protocol-owned packets to an application
// schema and refuses schemas that shadow them by id or by code:
//
//	connectionReconcile  '*'  connectionId: VarString
//	ping                 '^'  ping: Uint32
//
// # Usage Example
//
//	reg, err := protocol.NewInternalRegistry(protocol.Schema{
//	    "move": protocol.NewPacket("m",
//	        protocol.F("x", protocol.Float32),
//	        protocol.F("y", protocol.Float32),
//	    ),
//	    "chat": protocol.NewPacket("c", protocol.F("message", protocol.VarString)),
//	})
//	if err != nil {
//	    // Schema errors are fatal at startup
//	}
//
//	unit, err := reg.Encode("move", protocol.Record{
//	    "x": protocol.FloatValue(1.5),
//	    "y": protocol.FloatValue(-2.25),
//	})
//
//	decoded, err := reg.Decode(unit)
//	// decoded.ID == "move", decoded.Value.Float64("x") == 1.5
//
// # File Structure
//
//   - encoder.go, decoder.go: big-endian byte cursor
//   - value.go: Value and Record
//   - serializer.go: primitive serializers
//   - packet.go: Packet and Field
//   - registry.go: Registry construction, encode and decode
//   - group.go: group frames
//   - reserved.go: protocol-owned packets
//   - limits.go: group decoding limits and registry options
//   - error.go: error types and classification
package protocol
