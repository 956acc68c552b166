package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Decoding and encoding errors. Field-level failures are wrapped in a
// MalformedFieldError that names the packet and field.
var (
	ErrBufferTooShort      = fmt.Errorf("protocol: buffer too short: %w", io.ErrUnexpectedEOF)
	ErrLengthExceedsBuffer = errors.New("protocol: length prefix exceeds remaining buffer")
	ErrValueOutOfRange     = errors.New("protocol: value out of range for field width")
	ErrInvalidBool         = errors.New("protocol: invalid boolean value")
	ErrStringTooLong       = errors.New("protocol: string exceeds 65535 bytes")
	ErrTrailingBytes       = errors.New("protocol: trailing bytes after last field")
	ErrMissingField        = errors.New("protocol: missing field")
	ErrKindMismatch        = errors.New("protocol: value kind mismatch")
	ErrInvalidJSON         = errors.New("protocol: invalid JSON payload")
	ErrEmptyUnit           = errors.New("protocol: empty unit")
)

// SchemaError reports a schema that cannot be turned into a registry:
// a malformed code, a code shared by several ids, an id that shadows a
// reserved packet, or a bad field list. It only occurs at construction.
type SchemaError struct {
	IDs    []string // offending packet ids, sorted
	Code   string   // offending code, if the problem is code related
	Reason string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("protocol: schema")
	if len(e.IDs) > 0 {
		b.WriteString(": packets ")
		for i, id := range e.IDs {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%q", id)
		}
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": code %q", e.Code)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// UnregisteredCodeError is returned when a unit starts with a code that no
// registered packet owns. Transports decide whether to drop the unit or
// the connection.
type UnregisteredCodeError struct {
	Code byte
}

func (e *UnregisteredCodeError) Error() string {
	return fmt.Sprintf("protocol: code %q not registered", e.Code)
}

// MalformedFieldError reports a field that could not be encoded or decoded.
type MalformedFieldError struct {
	Packet string
	Field  string
	Err    error
}

func (e *MalformedFieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("protocol: packet %q: %v", e.Packet, e.Err)
	}
	return fmt.Sprintf("protocol: packet %q field %q: %v", e.Packet, e.Field, e.Err)
}

func (e *MalformedFieldError) Unwrap() error {
	return e.Err
}

// UnknownPacketError is returned when encoding with an id the registry
// does not contain.
type UnknownPacketError struct {
	ID string
}

func (e *UnknownPacketError) Error() string {
	return fmt.Sprintf("protocol: packet %q not registered", e.ID)
}

// ErrorClass is a coarse, low-cardinality classification of codec errors.
type ErrorClass uint8

const (
	ClassNone ErrorClass = iota
	ClassSchema
	ClassUnregisteredCode
	ClassMalformedField
	ClassUnknownPacket
	ClassGroup
	ClassLimit
	ClassOther
)

// String returns the string representation of the error class.
func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassSchema:
		return "schema"
	case ClassUnregisteredCode:
		return "unregistered_code"
	case ClassMalformedField:
		return "malformed_field"
	case ClassUnknownPacket:
		return "unknown_packet"
	case ClassGroup:
		return "group"
	case ClassLimit:
		return "limit"
	default:
		return "other"
	}
}

// Classify returns the ErrorClass of err.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	var (
		schemaErr *SchemaError
		codeErr   *UnregisteredCodeError
		fieldErr  *MalformedFieldError
		idErr     *UnknownPacketError
		groupErr  *GroupError
	)
	switch {
	case errors.As(err, &groupErr):
		return ClassGroup
	case errors.As(err, &schemaErr):
		return ClassSchema
	case errors.As(err, &codeErr):
		return ClassUnregisteredCode
	case errors.As(err, &fieldErr), errors.Is(err, ErrEmptyUnit):
		return ClassMalformedField
	case errors.As(err, &idErr):
		return ClassUnknownPacket
	case errors.Is(err, ErrFrameTooLarge), errors.Is(err, ErrTooManyUnits):
		return ClassLimit
	default:
		return ClassOther
	}
}

// ErrorKind returns the metric label for err.
func ErrorKind(err error) string {
	return Classify(err).String()
}
