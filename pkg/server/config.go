package server

import (
	"net/http"
	"time"
)

// Config holds configuration for the relay server.
type Config struct {
	// Address is the listen address for Run.
	// Default: ":8080".
	Address string

	// ReadTimeout is the maximum time to wait for a message from a client.
	// Default: 30 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 5 seconds.
	WriteTimeout time.Duration

	// PingInterval is the time between reserved ping packets.
	// Must be shorter than ReadTimeout so that clients echoing pings stay
	// connected. Default: 2 seconds.
	PingInterval time.Duration

	// MaxMessageSize is the maximum size of an inbound group frame.
	// Default: 64KB.
	MaxMessageSize int64

	// ConnectionIDLength is the number of base-36 characters in an
	// assigned connection id.
	// Default: 2.
	ConnectionIDLength int

	// ReadBufferSize and WriteBufferSize are the websocket I/O buffer sizes.
	// Default: 1024 each.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates the Origin header of upgrade requests.
	// Default: nil (gorilla's same-origin check).
	CheckOrigin func(r *http.Request) bool

	// ShutdownTimeout bounds graceful shutdown in Run.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:            ":8080",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       5 * time.Second,
		PingInterval:       2 * time.Second,
		MaxMessageSize:     64 * 1024,
		ConnectionIDLength: 2,
		ReadBufferSize:     1024,
		WriteBufferSize:    1024,
		ShutdownTimeout:    10 * time.Second,
	}
}

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return DefaultConfig()
	}
	clone := *c
	return &clone
}
