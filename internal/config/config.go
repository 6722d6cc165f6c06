// Package config holds the relay and endpoint configuration: defaults, YAML
// loading, and environment overrides.
package config

import "time"

// Config is the full configuration for both roles. Each subcommand reads
// only its own section plus Audio and Log.
type Config struct {
	Relay    RelayConfig    `yaml:"relay"`
	Endpoint EndpointConfig `yaml:"endpoint"`
	Audio    AudioConfig    `yaml:"audio"`
	Log      LogConfig      `yaml:"log"`
}

// RelayConfig configures the PC relay.
type RelayConfig struct {
	HTTPAddr         string        `yaml:"http_addr"`         // browser page, /ws, /rtc, status
	TCPAddr          string        `yaml:"tcp_addr"`          // embedded endpoint connections
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"` // identity token deadline

	// ICEServers for /rtc peers. Nil means the default public STUN servers;
	// an empty list means host candidates only.
	ICEServers []string `yaml:"ice_servers"`
}

// EndpointConfig configures the streaming endpoint.
type EndpointConfig struct {
	Server       string        `yaml:"server"`        // relay host:port
	RetryDelay   time.Duration `yaml:"retry_delay"`   // after a failed connect
	RedialDelay  time.Duration `yaml:"redial_delay"`  // after a dropped connection
	CaptureRetry time.Duration `yaml:"capture_retry"` // capture source not ready
}

// AudioConfig describes the PCM format and the synthetic device used when
// the endpoint runs on a PC.
type AudioConfig struct {
	SampleRate   int     `yaml:"sample_rate"`
	Channels     int     `yaml:"channels"`
	ToneHz       float64 `yaml:"tone_hz"`
	PlaybackFile string  `yaml:"playback_file"` // raw PCM16 sink, optional
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			HTTPAddr:         ":9000",
			TCPAddr:          ":9002",
			HandshakeTimeout: 5 * time.Second,
		},
		Endpoint: EndpointConfig{
			Server:       "127.0.0.1:9002",
			RetryDelay:   2 * time.Second,
			RedialDelay:  time.Second,
			CaptureRetry: 5 * time.Millisecond,
		},
		Audio: AudioConfig{
			SampleRate: 24000,
			Channels:   1,
			ToneHz:     440,
		},
		Log: LogConfig{Level: "info"},
	}
}
