// Package config loads pipwire configuration.
//
// The configuration is read from pipwire.toml, overlaid on defaults, and
// then overridden by PIPWIRE_* environment variables.
//
// # Configuration File Structure
//
//	[server]
//	addr = ":8080"
//	read_timeout = "30s"
//	write_timeout = "5s"
//	ping_interval = "2s"
//	max_message_size = 65536
//	connection_id_length = 2
//
//	[log]
//	level = "info"   # debug, info, warn, error
//	format = "text"  # text, json
//
//	[metrics]
//	enabled = true
//	namespace = "pipwire"
//
//	[manifest]
//	bucket = "my-bucket"
//	region = "us-east-1"
//	key = "pipwire/schema.json"
//
// # Environment Overrides
//
//   - PIPWIRE_ADDR: server.addr
//   - PIPWIRE_LOG_LEVEL: log.level
//   - PIPWIRE_LOG_FORMAT: log.format
//   - PIPWIRE_PING_INTERVAL: server.ping_interval
//   - PIPWIRE_S3_BUCKET: manifest.bucket
//   - PIPWIRE_S3_REGION: manifest.region
package config
