package protocol

import "errors"

// Group decoding limits. A frame is hostile input, so the splitter refuses
// frames and unit counts beyond these bounds instead of allocating for them.
const (
	// DefaultMaxFrameSize bounds the byte length of one group frame.
	DefaultMaxFrameSize = 1 << 20

	// DefaultMaxGroupUnits bounds the number of units in one group frame.
	DefaultMaxGroupUnits = 4096
)

var (
	ErrFrameTooLarge = errors.New("protocol: group frame too large")
	ErrTooManyUnits  = errors.New("protocol: too many units in group frame")
)

// Limits configures the bounds a Registry enforces when decoding groups.
// Zero or negative fields disable the corresponding check.
type Limits struct {
	MaxFrameSize  int
	MaxGroupUnits int
}

// DefaultLimits returns the default group limits.
func DefaultLimits() Limits {
	return Limits{
		MaxFrameSize:  DefaultMaxFrameSize,
		MaxGroupUnits: DefaultMaxGroupUnits,
	}
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	limits   Limits
	reserved []string
}

// WithLimits replaces the group limits.
func WithLimits(l Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithMaxFrameSize sets the largest group frame DecodeGroup accepts.
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		o.limits.MaxFrameSize = n
	}
}

// WithMaxGroupUnits sets the largest number of units DecodeGroup accepts.
func WithMaxGroupUnits(n int) Option {
	return func(o *options) {
		o.limits.MaxGroupUnits = n
	}
}

func withReserved(ids ...string) Option {
	return func(o *options) {
		o.reserved = append(o.reserved, ids...)
	}
}
