// Package transport carries protocol group frames over WebSocket.
//
// Every websocket message is one group frame. Inbound frames are decoded as
// a whole; units that fail to decode are logged and reported in the result
// so the caller can drop them without dropping the connection.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mikedelcastillo/pip-pip/pkg/protocol"
)

// Default tracer name for transport spans.
const defaultTracerName = "pipwire/transport"

// Codec is the part of a registry the transport needs.
// Both *protocol.Registry and *metrics.Codec implement it.
type Codec interface {
	Encode(id string, rec protocol.Record) ([]byte, error)
	Group(units ...[]byte) []byte
	DecodeGroup(frame []byte) ([]protocol.UnitResult, error)
}

// Config configures a Conn.
type Config struct {
	// ReadTimeout is how long Receive waits for a message.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single write.
	WriteTimeout time.Duration

	// MaxMessageSize is the largest inbound message in bytes.
	MaxMessageSize int64
}

// DefaultConfig returns the default connection configuration.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// Option configures a Conn.
type Option func(*Conn)

// WithConfig sets the connection configuration.
func WithConfig(c Config) Option {
	return func(conn *Conn) {
		conn.config = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(conn *Conn) {
		conn.logger = l
	}
}

// WithTracer sets the tracer used for decode spans.
func WithTracer(t trace.Tracer) Option {
	return func(conn *Conn) {
		conn.tracer = t
	}
}

// Conn is a websocket connection that speaks group frames.
//
// Receive must be called from a single goroutine. Send and SendPacket may
// be called concurrently with each other and with Receive.
type Conn struct {
	ws     *websocket.Conn
	codec  Codec
	config Config
	logger *slog.Logger
	tracer trace.Tracer

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// New wraps an established websocket connection.
func New(ws *websocket.Conn, codec Codec, opts ...Option) *Conn {
	c := &Conn{
		ws:     ws,
		codec:  codec,
		config: DefaultConfig(),
		logger: slog.Default().With("component", "transport"),
		tracer: otel.Tracer(defaultTracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.config.MaxMessageSize > 0 {
		ws.SetReadLimit(c.config.MaxMessageSize)
	}
	return c
}

// Dial connects to a websocket endpoint and wraps the connection.
func Dial(ctx context.Context, url string, codec Codec, opts ...Option) (*Conn, *http.Response, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, resp, err
	}
	return New(ws, codec, opts...), resp, nil
}

// Receive reads one message and decodes it as a group frame.
//
// Units that fail to decode are logged at Warn and returned with Err set;
// they do not make Receive fail. An error is returned for read failures and
// for frames the codec refuses as a whole, such as frames over its limits.
func (c *Conn) Receive(ctx context.Context) ([]protocol.UnitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.config.ReadTimeout > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
	_, msg, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}

	_, span := c.tracer.Start(ctx, "pipwire.decode_group",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.Int("pipwire.bytes", len(msg))),
	)
	defer span.End()

	results, err := c.codec.DecodeGroup(msg)

	failed := 0
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		failed++
		c.logger.Warn("dropping unit",
			"index", r.Index,
			"kind", protocol.ErrorKind(r.Err),
			"error", r.Err)
	}
	span.SetAttributes(
		attribute.Int("pipwire.units", len(results)),
		attribute.Int("pipwire.failed_units", failed),
	)

	var groupErr *protocol.GroupError
	if err != nil && !errors.As(err, &groupErr) {
		span.RecordError(err)
		span.SetStatus(codes.Error, protocol.ErrorKind(err))
		return results, err
	}
	if failed > 0 {
		span.SetStatus(codes.Error, "units failed to decode")
	}
	return results, nil
}

// Send joins units into one frame and writes it as a binary message.
func (c *Conn) Send(units ...[]byte) error {
	return c.write(websocket.BinaryMessage, c.codec.Group(units...))
}

// SendPacket encodes one packet and sends it as a single-unit frame.
func (c *Conn) SendPacket(id string, rec protocol.Record) error {
	unit, err := c.codec.Encode(id, rec)
	if err != nil {
		return err
	}
	return c.Send(unit)
}

func (c *Conn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.config.WriteTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	return c.ws.WriteMessage(messageType, data)
}

// Close sends a normal close message and closes the connection.
// It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		if c.config.WriteTimeout > 0 {
			deadline = time.Now().Add(c.config.WriteTimeout)
		}
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline)
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// IsUnexpectedClose reports whether err is a close frame from the peer with
// a code other than normal closure or going away.
func IsUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseNormalClosure)
}
