// Package metrics instruments a protocol.Registry with Prometheus metrics.
//
// Metrics collected (with the default namespace):
//   - pipwire_packets_encoded_total: Counter of encoded units by packet
//   - pipwire_encoded_bytes_total: Counter of encoded bytes by packet
//   - pipwire_packets_decoded_total: Counter of decoded units by packet
//   - pipwire_encode_errors_total: Counter of encode failures by kind
//   - pipwire_decode_errors_total: Counter of decode failures by kind
//   - pipwire_group_units: Histogram of units per decoded group frame
//   - pipwire_active_connections: Gauge of open transport connections
//   - pipwire_transport_errors_total: Counter of transport errors by type
//
// Example:
//
//	codec := metrics.New(packets.Registry(),
//	    metrics.WithNamespace("game"),
//	    metrics.WithConstLabels(prometheus.Labels{"region": "sea"}),
//	)
//	frame, err := codec.EncodeGroup(items...)
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mikedelcastillo/pip-pip/pkg/protocol"
)

// Config configures the codec metrics.
type Config struct {
	// Namespace is the metrics namespace (default: "pipwire").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// UnitBuckets are the histogram buckets for units per group.
	UnitBuckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the codec metrics.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithUnitBuckets sets the units-per-group histogram buckets.
func WithUnitBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.UnitBuckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace:   "pipwire",
		UnitBuckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		Registry:    prometheus.DefaultRegisterer,
	}
}

type collectors struct {
	encoded       *prometheus.CounterVec
	encodedBytes  *prometheus.CounterVec
	decoded       *prometheus.CounterVec
	encodeErrors  *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	groupUnits    prometheus.Histogram
	connections   prometheus.Gauge
	transportErrs *prometheus.CounterVec
}

func newCollectors(config Config) *collectors {
	factory := promauto.With(config.Registry)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &collectors{
		encoded:       counter("packets_encoded_total", "Total number of units encoded", "packet"),
		encodedBytes:  counter("encoded_bytes_total", "Total number of bytes encoded", "packet"),
		decoded:       counter("packets_decoded_total", "Total number of units decoded", "packet"),
		encodeErrors:  counter("encode_errors_total", "Total number of encode failures", "kind"),
		decodeErrors:  counter("decode_errors_total", "Total number of decode failures", "kind"),
		transportErrs: counter("transport_errors_total", "Total transport errors by type", "type"),

		groupUnits: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "group_units",
			Help:        "Number of units per decoded group frame",
			ConstLabels: config.ConstLabels,
			Buckets:     config.UnitBuckets,
		}),

		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_connections",
			Help:        "Number of open transport connections",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Codec wraps a Registry and records metrics for every call.
// It is safe for concurrent use.
type Codec struct {
	reg *protocol.Registry
	m   *collectors
}

// New creates a Codec for reg. The collectors are registered with the
// configured Prometheus registry; registering twice with the same registry
// panics, as with promauto.
func New(reg *protocol.Registry, opts ...Option) *Codec {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Codec{reg: reg, m: newCollectors(config)}
}

// Registry returns the wrapped registry.
func (c *Codec) Registry() *protocol.Registry { return c.reg }

// Encode encodes rec as a unit of packet id.
func (c *Codec) Encode(id string, rec protocol.Record) ([]byte, error) {
	b, err := c.reg.Encode(id, rec)
	if err != nil {
		c.m.encodeErrors.WithLabelValues(protocol.ErrorKind(err)).Inc()
		return nil, err
	}
	c.observeEncoded(id, len(b))
	return b, nil
}

// EncodeGroup encodes items and joins them into one frame.
func (c *Codec) EncodeGroup(items ...protocol.Item) ([]byte, error) {
	units := make([][]byte, 0, len(items))
	for _, it := range items {
		b, err := c.Encode(it.ID, it.Record)
		if err != nil {
			return nil, err
		}
		units = append(units, b)
	}
	return c.reg.Group(units...), nil
}

func (c *Codec) observeEncoded(id string, n int) {
	c.m.encoded.WithLabelValues(id).Inc()
	c.m.encodedBytes.WithLabelValues(id).Add(float64(n))
}

// Group joins encoded units into one frame.
func (c *Codec) Group(units ...[]byte) []byte {
	return c.reg.Group(units...)
}

// Decode decodes one unit.
func (c *Codec) Decode(unit []byte) (protocol.Decoded, error) {
	d, err := c.reg.Decode(unit)
	if err != nil {
		c.m.decodeErrors.WithLabelValues(protocol.ErrorKind(err)).Inc()
		return d, err
	}
	c.m.decoded.WithLabelValues(d.ID).Inc()
	return d, nil
}

// DecodeGroup decodes every unit of frame. Failed units are counted by the
// kind of their own error.
func (c *Codec) DecodeGroup(frame []byte) ([]protocol.UnitResult, error) {
	results, err := c.reg.DecodeGroup(frame)
	for _, r := range results {
		if r.Err != nil {
			c.m.decodeErrors.WithLabelValues(protocol.ErrorKind(r.Err)).Inc()
			continue
		}
		c.m.decoded.WithLabelValues(r.Decoded.ID).Inc()
	}
	if err != nil && protocol.Classify(err) != protocol.ClassGroup {
		c.m.decodeErrors.WithLabelValues(protocol.ErrorKind(err)).Inc()
	}
	c.m.groupUnits.Observe(float64(len(results)))
	return results, err
}

// ConnectionOpened increments the active connection gauge.
func (c *Codec) ConnectionOpened() { c.m.connections.Inc() }

// ConnectionClosed decrements the active connection gauge.
func (c *Codec) ConnectionClosed() { c.m.connections.Dec() }

// TransportError counts a transport level error, e.g. "read", "write" or "upgrade".
func (c *Codec) TransportError(kind string) {
	c.m.transportErrs.WithLabelValues(kind).Inc()
}
