// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads bugjar settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	bugjarerrors "github.com/tombee/bugjar/pkg/errors"
)

// DefaultPort is the TCP port the engine listens on and the controller dials.
const DefaultPort = 3742

// Config is the root configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Controller ControllerConfig `yaml:"controller"`
	Engine     EngineConfig     `yaml:"engine"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// ListenConfig is where the engine accepts controllers.
type ListenConfig struct {
	// Host is the TCP bind address. Ignored when SocketPath is set.
	Host string `yaml:"host"`

	// Port is the TCP port.
	Port int `yaml:"port"`

	// SocketPath selects a unix socket instead of TCP.
	SocketPath string `yaml:"socket_path,omitempty"`

	// AllowRemote permits binding to non-loopback interfaces.
	AllowRemote bool `yaml:"allow_remote"`
}

// Addr returns the TCP address in host:port form.
func (l ListenConfig) Addr() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// ControllerConfig is how the console reaches an engine.
type ControllerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	SocketPath string `yaml:"socket_path,omitempty"`

	// DialTimeout bounds how long the controller keeps retrying to connect.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Network returns the dial network and address.
func (c ControllerConfig) Network() (string, string) {
	if c.SocketPath != "" {
		return "unix", c.SocketPath
	}
	return "tcp", net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// EngineConfig tunes the session engine.
type EngineConfig struct {
	// QueueSize is the command queue capacity per connection.
	QueueSize int `yaml:"queue_size"`

	// ReadChunk is the socket read size in bytes.
	ReadChunk int `yaml:"read_chunk"`

	// Skip lists doublestar patterns of files the engine never stops in.
	Skip []string `yaml:"skip,omitempty"`

	// WatchSources evicts cached source lines when files change on disk.
	WatchSources bool `yaml:"watch_sources"`
}

// LogConfig mirrors internal/log.Config for the file format.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the HTTP listen address for /metrics. Empty disables it.
	Addr string `yaml:"addr,omitempty"`
}

// TracingConfig enables OpenTelemetry spans.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is "stdout" or "otlp".
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP/HTTP collector address (host:port).
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure sends OTLP over plain HTTP.
	Insecure bool `yaml:"insecure"`

	// SampleRate keeps this fraction of runs. Zero keeps all.
	SampleRate float64 `yaml:"sample_rate,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Host: "localhost",
			Port: DefaultPort,
		},
		Controller: ControllerConfig{
			Host:        "localhost",
			Port:        DefaultPort,
			DialTimeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			QueueSize:    64,
			ReadChunk:    4096,
			WatchSources: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Exporter: "stdout",
		},
	}
}

// Load loads configuration from an optional YAML file, fills unset values
// with defaults, then applies environment overrides.
// If configPath is empty the default location is used when it exists.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	path := configPath
	if path == "" {
		if p, err := ConfigPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, &bugjarerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", path),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &bugjarerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values so minimal files work.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Listen.Host == "" && c.Listen.SocketPath == "" {
		c.Listen.Host = defaults.Listen.Host
	}
	if c.Listen.Port == 0 {
		c.Listen.Port = defaults.Listen.Port
	}
	if c.Controller.Host == "" {
		c.Controller.Host = defaults.Controller.Host
	}
	if c.Controller.Port == 0 {
		c.Controller.Port = defaults.Controller.Port
	}
	if c.Controller.DialTimeout == 0 {
		c.Controller.DialTimeout = defaults.Controller.DialTimeout
	}
	if c.Engine.QueueSize == 0 {
		c.Engine.QueueSize = defaults.Engine.QueueSize
	}
	if c.Engine.ReadChunk == 0 {
		c.Engine.ReadChunk = defaults.Engine.ReadChunk
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return bugjarerrors.Wrap(err, "failed to read config file")
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return bugjarerrors.Wrap(err, "failed to parse YAML")
	}

	return nil
}

// loadFromEnv applies BUGJAR_* overrides. Unparseable numbers are ignored.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("BUGJAR_HOST"); val != "" {
		c.Listen.Host = val
		c.Controller.Host = val
	}
	if val := os.Getenv("BUGJAR_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Listen.Port = port
			c.Controller.Port = port
		}
	}
	if val := os.Getenv("BUGJAR_SOCKET"); val != "" {
		c.Listen.SocketPath = val
		c.Controller.SocketPath = val
	}
	if val := os.Getenv("BUGJAR_ALLOW_REMOTE"); val != "" {
		c.Listen.AllowRemote = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("BUGJAR_QUEUE_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Engine.QueueSize = n
		}
	}
	if val := os.Getenv("BUGJAR_SKIP"); val != "" {
		patterns := strings.Split(val, ",")
		for i, p := range patterns {
			patterns[i] = strings.TrimSpace(p)
		}
		c.Engine.Skip = patterns
	}
	if val := os.Getenv("BUGJAR_METRICS_ADDR"); val != "" {
		c.Metrics.Addr = val
	}
	if val := os.Getenv("BUGJAR_TRACING"); val != "" {
		c.Tracing.Enabled = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Listen.SocketPath == "" && (c.Listen.Port < 1 || c.Listen.Port > 65535) {
		errs = append(errs, fmt.Sprintf("listen.port must be between 1 and 65535, got %d", c.Listen.Port))
	}
	if c.Controller.SocketPath == "" && (c.Controller.Port < 1 || c.Controller.Port > 65535) {
		errs = append(errs, fmt.Sprintf("controller.port must be between 1 and 65535, got %d", c.Controller.Port))
	}
	if c.Controller.DialTimeout < 0 {
		errs = append(errs, fmt.Sprintf("controller.dial_timeout must not be negative, got %v", c.Controller.DialTimeout))
	}
	if c.Engine.QueueSize < 1 {
		errs = append(errs, fmt.Sprintf("engine.queue_size must be positive, got %d", c.Engine.QueueSize))
	}
	if c.Engine.ReadChunk < 1 {
		errs = append(errs, fmt.Sprintf("engine.read_chunk must be positive, got %d", c.Engine.ReadChunk))
	}
	for _, p := range c.Engine.Skip {
		if p == "" {
			errs = append(errs, "engine.skip must not contain empty patterns")
			break
		}
	}

	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level must be one of trace, debug, info, warn, error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or text, got %q", c.Log.Format))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate))
	}
	switch c.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
			errs = append(errs, "tracing.endpoint is required for the otlp exporter")
		}
	default:
		errs = append(errs, fmt.Sprintf("tracing.exporter must be stdout or otlp, got %q", c.Tracing.Exporter))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
