package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// FileName is the default configuration file name.
	FileName = "pipwire.toml"

	// DefaultAddr is the default listen address of the relay server.
	DefaultAddr = ":8080"

	// DefaultNamespace is the default Prometheus namespace.
	DefaultNamespace = "pipwire"
)

// Environment variables that override file settings.
const (
	EnvAddr         = "PIPWIRE_ADDR"
	EnvLogLevel     = "PIPWIRE_LOG_LEVEL"
	EnvLogFormat    = "PIPWIRE_LOG_FORMAT"
	EnvPingInterval = "PIPWIRE_PING_INTERVAL"
	EnvS3Bucket     = "PIPWIRE_S3_BUCKET"
	EnvS3Region     = "PIPWIRE_S3_REGION"
)

// Config is the complete pipwire.toml configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Manifest ManifestConfig `toml:"manifest"`

	// path stores where the config was loaded from.
	path string
}

// ServerConfig configures the relay server and its connections.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `toml:"addr"`

	// ReadTimeout is how long a connection may stay silent before it is
	// closed. Pings from the server keep well-behaved clients talking.
	ReadTimeout time.Duration `toml:"read_timeout"`

	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration `toml:"write_timeout"`

	// PingInterval is the period of the reserved ping packet.
	PingInterval time.Duration `toml:"ping_interval"`

	// MaxMessageSize is the largest inbound group frame in bytes.
	MaxMessageSize int64 `toml:"max_message_size"`

	// ConnectionIDLength is the number of base-36 characters in an
	// assigned connection id.
	ConnectionIDLength int `toml:"connection_id_length"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`

	// Format is text or json.
	Format string `toml:"format"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

// ManifestConfig configures where schema manifests are published.
type ManifestConfig struct {
	Bucket string `toml:"bucket"`
	Region string `toml:"region"`
	Key    string `toml:"key"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               DefaultAddr,
			ReadTimeout:        30 * time.Second,
			WriteTimeout:       5 * time.Second,
			PingInterval:       2 * time.Second,
			MaxMessageSize:     64 * 1024,
			ConnectionIDLength: 2,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: DefaultNamespace,
		},
		Manifest: ManifestConfig{
			Region: "us-east-1",
			Key:    "pipwire/schema.json",
		},
	}
}

// Load reads the configuration file at path over the defaults, applies
// environment overrides and validates the result. An empty path skips the
// file. Unknown keys in the file are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("load config %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
		cfg.path = path
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOptional is like Load but treats a missing file as no file.
func LoadOptional(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return Load(path)
}

// ApplyEnv applies environment overrides using lookup, which has the
// signature of os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAddr); ok && strings.TrimSpace(v) != "" {
		c.Server.Addr = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		c.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvLogFormat); ok && strings.TrimSpace(v) != "" {
		c.Log.Format = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvPingInterval); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPingInterval, err)
		}
		c.Server.PingInterval = d
	}
	if v, ok := lookup(EnvS3Bucket); ok {
		c.Manifest.Bucket = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvS3Region); ok && strings.TrimSpace(v) != "" {
		c.Manifest.Region = strings.TrimSpace(v)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, errors.New("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}
	if c.Server.PingInterval <= 0 {
		errs = append(errs, errors.New("server.ping_interval must be positive"))
	}
	if c.Server.PingInterval >= c.Server.ReadTimeout {
		errs = append(errs, errors.New("server.ping_interval must be shorter than server.read_timeout"))
	}
	if c.Server.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("server.max_message_size must be positive"))
	}
	if c.Server.ConnectionIDLength < 1 || c.Server.ConnectionIDLength > 16 {
		errs = append(errs, fmt.Errorf("server.connection_id_length %d out of range [1,16]", c.Server.ConnectionIDLength))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errs = append(errs, errors.New("metrics.namespace must not be empty when metrics are enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Path returns the file the configuration was loaded from, or "".
func (c *Config) Path() string {
	return c.path
}
