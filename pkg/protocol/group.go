package protocol

import (
	"bytes"
	"fmt"
	"strings"
)

// UnitResult is the outcome of decoding one unit of a group frame.
// Exactly one of Decoded and Err is meaningful.
type UnitResult struct {
	Index   int
	Decoded Decoded
	Err     error
}

// GroupError lists the units of a frame that failed to decode.
// The units that did decode are still returned alongside it.
type GroupError struct {
	Units    int
	Failures []UnitResult
}

func (e *GroupError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "protocol: %d of %d units failed", len(e.Failures), e.Units)
	if len(e.Failures) > 0 {
		f := e.Failures[0]
		fmt.Fprintf(&b, " (unit %d: %v)", f.Index, f.Err)
	}
	return b.String()
}

// Unwrap exposes the per-unit errors to errors.Is and errors.As.
func (e *GroupError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Group joins encoded units into one frame.
func (r *Registry) Group(units ...[]byte) []byte {
	return bytes.Join(units, []byte{Delimiter})
}

// EncodeGroup encodes items and joins them into one frame.
func (r *Registry) EncodeGroup(items ...Item) ([]byte, error) {
	e := NewEncoder()
	for i, it := range items {
		if i > 0 {
			e.WriteByte(Delimiter)
		}
		if err := r.EncodeTo(e, it.ID, it.Record); err != nil {
			return nil, err
		}
	}
	return e.Bytes(), nil
}

// DecodeGroup decodes every unit of frame in order.
//
// Units are delimited by their encoded length, not by searching for
// Delimiter, so payload bytes equal to Delimiter are safe. A unit that
// cannot be measured is reported and the decoder resumes after the next
// Delimiter byte. Failed units appear in the result with Err set, and the
// returned error is a *GroupError. An empty frame has no units.
func (r *Registry) DecodeGroup(frame []byte) ([]UnitResult, error) {
	var (
		results  []UnitResult
		failures []UnitResult
	)
	err := r.scan(frame, func(unit []byte, err error) {
		res := UnitResult{Index: len(results)}
		if err == nil {
			res.Decoded, err = r.Decode(unit)
		}
		if err != nil {
			res.Err = err
			failures = append(failures, res)
		}
		results = append(results, res)
	})
	if err != nil {
		return results, err
	}
	if len(failures) > 0 {
		return results, &GroupError{Units: len(results), Failures: failures}
	}
	return results, nil
}

// SplitGroup splits frame into its raw units without decoding them. The
// returned slices alias frame. Units that could not be measured are still
// returned, and a *GroupError lists them.
func (r *Registry) SplitGroup(frame []byte) ([][]byte, error) {
	var (
		units    [][]byte
		failures []UnitResult
	)
	err := r.scan(frame, func(unit []byte, err error) {
		if err != nil {
			failures = append(failures, UnitResult{Index: len(units), Err: err})
		}
		units = append(units, unit)
	})
	if err != nil {
		return units, err
	}
	if len(failures) > 0 {
		return units, &GroupError{Units: len(units), Failures: failures}
	}
	return units, nil
}

// scan walks frame unit by unit. fn receives each unit with the error that
// stopped it from being measured, if any.
func (r *Registry) scan(frame []byte, fn func(unit []byte, err error)) error {
	if r.limits.MaxFrameSize > 0 && len(frame) > r.limits.MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	if len(frame) == 0 {
		return nil
	}
	pos, count := 0, 0
	for {
		if r.limits.MaxGroupUnits > 0 && count >= r.limits.MaxGroupUnits {
			return fmt.Errorf("%w: more than %d", ErrTooManyUnits, r.limits.MaxGroupUnits)
		}
		count++

		rest := frame[pos:]
		n, err := r.measure(rest)
		if err == nil && n < len(rest) && rest[n] != Delimiter {
			p := r.byCode[rest[0]]
			err = &MalformedFieldError{
				Packet: p.label(),
				Err:    fmt.Errorf("%w: unit not followed by delimiter", ErrTrailingBytes),
			}
		}
		if err != nil {
			// Resynchronize at the next delimiter.
			n = bytes.IndexByte(rest, Delimiter)
			if n < 0 {
				n = len(rest)
			}
		}
		fn(rest[:n], err)

		pos += n
		if pos >= len(frame) {
			return nil
		}
		pos++ // delimiter
	}
}

func (r *Registry) measure(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, ErrEmptyUnit
	}
	p := r.byCode[b[0]]
	if p == nil {
		return 0, &UnregisteredCodeError{Code: b[0]}
	}
	return p.PeekLength(b)
}
