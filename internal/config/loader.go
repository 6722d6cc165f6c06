package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"slices"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then the process environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()

		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg from environment variables:
//
//	HTTP_PORT           relay HTTP listen port
//	TCP_PORT            relay endpoint listen port
//	STREAM_SERVER_HOST  endpoint: relay host
//	STREAM_SERVER_PORT  endpoint: relay port
//	SAMPLE_RATE         PCM sample rate
//	LOG_LEVEL           log level
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	port := func(key string, apply func(p string)) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		if n, err := strconv.Atoi(v); err != nil || n <= 0 || n > 65535 {
			errs = append(errs, fmt.Errorf("%s %q is not a valid port", key, v))
			return
		}
		apply(v)
	}

	port("HTTP_PORT", func(p string) { cfg.Relay.HTTPAddr = replacePort(cfg.Relay.HTTPAddr, p) })
	port("TCP_PORT", func(p string) { cfg.Relay.TCPAddr = replacePort(cfg.Relay.TCPAddr, p) })
	port("STREAM_SERVER_PORT", func(p string) { cfg.Endpoint.Server = replacePort(cfg.Endpoint.Server, p) })

	if v, ok := lookup("STREAM_SERVER_HOST"); ok && v != "" {
		_, p, err := net.SplitHostPort(cfg.Endpoint.Server)
		if err != nil {
			p = "9002"
		}
		cfg.Endpoint.Server = net.JoinHostPort(v, p)
	}

	if v, ok := lookup("SAMPLE_RATE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SAMPLE_RATE %q is not a number", v))
		} else {
			cfg.Audio.SampleRate = n
		}
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = v
	}

	return errors.Join(errs...)
}

func replacePort(addr, port string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = ""
	}
	return net.JoinHostPort(host, port)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Relay
	if _, _, err := net.SplitHostPort(cfg.Relay.HTTPAddr); err != nil {
		errs = append(errs, fmt.Errorf("relay.http_addr %q: %w", cfg.Relay.HTTPAddr, err))
	}
	if _, _, err := net.SplitHostPort(cfg.Relay.TCPAddr); err != nil {
		errs = append(errs, fmt.Errorf("relay.tcp_addr %q: %w", cfg.Relay.TCPAddr, err))
	}
	if cfg.Relay.HandshakeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("relay.handshake_timeout must be positive, got %s", cfg.Relay.HandshakeTimeout))
	}

	// Endpoint
	if host, _, err := net.SplitHostPort(cfg.Endpoint.Server); err != nil {
		errs = append(errs, fmt.Errorf("endpoint.server %q: %w", cfg.Endpoint.Server, err))
	} else if host == "" {
		errs = append(errs, fmt.Errorf("endpoint.server %q has no host", cfg.Endpoint.Server))
	}
	for name, d := range map[string]int64{
		"endpoint.retry_delay":   int64(cfg.Endpoint.RetryDelay),
		"endpoint.redial_delay":  int64(cfg.Endpoint.RedialDelay),
		"endpoint.capture_retry": int64(cfg.Endpoint.CaptureRetry),
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 || cfg.Audio.SampleRate%50 != 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be a positive multiple of 50 (20 ms frames)", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 {
		errs = append(errs, fmt.Errorf("audio.channels %d is unsupported; only mono is carried", cfg.Audio.Channels))
	}
	if cfg.Audio.ToneHz < 0 || (cfg.Audio.SampleRate > 0 && cfg.Audio.ToneHz*2 > float64(cfg.Audio.SampleRate)) {
		errs = append(errs, fmt.Errorf("audio.tone_hz %.1f is out of range [0, sample_rate/2]", cfg.Audio.ToneHz))
	}
	if frame := cfg.Audio.SampleRate / 50 * 2; frame > 65535 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d yields %d-byte frames, above the 65535 limit", cfg.Audio.SampleRate, frame))
	}

	// Log
	if !slices.Contains(validLogLevels, cfg.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}

	return errors.Join(errs...)
}
