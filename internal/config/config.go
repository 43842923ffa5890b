// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/Thermoquad/parhelion/pkg/ccsds"
	"github.com/Thermoquad/parhelion/pkg/framing"
	"github.com/Thermoquad/parhelion/pkg/pus"
)

// Environment variables
const (
	EnvConfig    = "PARHELION_CONFIG"
	EnvAPID      = "PARHELION_APID"
	EnvTransport = "PARHELION_TRANSPORT"
	EnvAddress   = "PARHELION_ADDRESS"
	EnvPassword  = "PARHELION_PASSWORD"
)

// Transport kinds
const (
	KindTCP         = "tcp"
	KindUDP         = "udp"
	KindSerialFixed = "serial-fixed"
	KindSerialASCII = "serial-ascii"
	KindVirtual     = "virtual"
	KindDummy       = "dummy"
	KindWebSocket   = "websocket"
)

var kinds = []string{KindTCP, KindUDP, KindSerialFixed, KindSerialASCII, KindVirtual, KindDummy, KindWebSocket}

// Config is a ground station profile
type Config struct {
	APID       uint16          `yaml:"apid"`
	SourceID   uint16          `yaml:"sourceId"`
	PUSVersion string          `yaml:"pusVersion"`
	Transport  TransportConfig `yaml:"transport"`
	Timing     TimingConfig    `yaml:"timing"`
	Logging    LoggingConfig   `yaml:"logging"`
	Capture    CaptureConfig   `yaml:"capture"`
}

// TransportConfig selects and parameterizes the communication interface
type TransportConfig struct {
	Kind        string        `yaml:"kind"`
	Address     string        `yaml:"address"` // host:port for tcp/udp, path for virtual
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	FrameSize   int           `yaml:"frameSize"`
	Fill        uint8         `yaml:"fill"`
	Framing     FramingConfig `yaml:"framing"`
	URL         string        `yaml:"url"`
	Username    string        `yaml:"username"`
	NoSSLVerify bool          `yaml:"noSslVerify"`
	QueueSize   int           `yaml:"queueSize"`
}

// FramingConfig holds the ASCII framing markers
type FramingConfig struct {
	Start        uint8 `yaml:"start"`
	Stop         uint8 `yaml:"stop"`
	Escape       uint8 `yaml:"escape"`
	EscXor       uint8 `yaml:"escXor"`
	MaxFrameSize int   `yaml:"maxFrameSize"`
}

// TimingConfig holds command and polling timing
type TimingConfig struct {
	CommandTimeoutSec int `yaml:"commandTimeoutSec"`
	PollIntervalMs    int `yaml:"pollIntervalMs"`
	SendRetries       int `yaml:"sendRetries"`
	RetryDelayMs      int `yaml:"retryDelayMs"`
	WriteTimeoutMs    int `yaml:"writeTimeoutMs"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Verbose    bool   `yaml:"verbose"`
}

// CaptureConfig holds the frame capture settings
type CaptureConfig struct {
	File string `yaml:"file"`
}

// Default returns the built-in profile: PUS-C over TCP to a local target
func Default() *Config {
	ascii := framing.DefaultASCIIConfig()
	return &Config{
		APID:       0x001,
		SourceID:   0,
		PUSVersion: "c",
		Transport: TransportConfig{
			Kind:      KindTCP,
			Address:   "127.0.0.1:7301",
			Baud:      115200,
			FrameSize: 256,
			Framing: FramingConfig{
				Start:        ascii.Start,
				Stop:         ascii.Stop,
				Escape:       ascii.Escape,
				EscXor:       ascii.EscXor,
				MaxFrameSize: ascii.MaxFrameSize,
			},
			QueueSize: 256,
		},
		Timing: TimingConfig{
			CommandTimeoutSec: 10,
			PollIntervalMs:    50,
			SendRetries:       0,
			RetryDelayMs:      200,
			WriteTimeoutMs:    5000,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load builds a profile from defaults, the YAML file at path (or
// PARHELION_CONFIG when path is empty) and environment overrides. The caller
// applies command line flags and then calls Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile merges a YAML file over cfg
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvAPID); v != "" {
		apid, err := strconv.ParseUint(v, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvAPID, v, err)
		}
		cfg.APID = uint16(apid)
	}
	if v := os.Getenv(EnvTransport); v != "" {
		cfg.Transport.Kind = v
	}
	if v := os.Getenv(EnvAddress); v != "" {
		cfg.Transport.Address = v
	}
	return nil
}

// Validate checks the profile for the selected transport
func (c *Config) Validate() error {
	if c.APID > ccsds.MaxAPID {
		return fmt.Errorf("apid 0x%X exceeds 0x%X", c.APID, ccsds.MaxAPID)
	}
	version, err := c.Version()
	if err != nil {
		return err
	}
	if version == pus.VersionA && c.SourceID > 0xFF {
		return fmt.Errorf("sourceId %d does not fit a PUS-A header", c.SourceID)
	}

	if err := c.Transport.validate(); err != nil {
		return err
	}

	t := c.Timing
	if t.CommandTimeoutSec <= 0 || t.CommandTimeoutSec > 3600 {
		return fmt.Errorf("command timeout %d seconds is outside reasonable range [1, 3600]", t.CommandTimeoutSec)
	}
	if t.PollIntervalMs <= 0 || t.PollIntervalMs > 10000 {
		return fmt.Errorf("poll interval %d ms is outside reasonable range [1, 10000]", t.PollIntervalMs)
	}
	if t.SendRetries < 0 || t.SendRetries > 10 {
		return fmt.Errorf("send retries %d is outside reasonable range [0, 10]", t.SendRetries)
	}
	if t.RetryDelayMs < 0 || t.WriteTimeoutMs < 0 {
		return fmt.Errorf("retry delay and write timeout must not be negative")
	}

	l := c.Logging
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits must not be negative")
	}
	return nil
}

func (t TransportConfig) validate() error {
	switch t.Kind {
	case KindTCP, KindUDP:
		if _, _, err := net.SplitHostPort(t.Address); err != nil {
			return fmt.Errorf("invalid %s address %q: %v", t.Kind, t.Address, err)
		}
	case KindSerialFixed, KindSerialASCII:
		if t.Device == "" {
			return fmt.Errorf("%s transport needs a device", t.Kind)
		}
		if t.Baud <= 0 {
			return fmt.Errorf("invalid baud rate %d", t.Baud)
		}
	case KindVirtual:
		if t.Address == "" {
			return fmt.Errorf("virtual transport needs a path or tcp:// address")
		}
	case KindDummy:
	case KindWebSocket:
		u, err := url.Parse(t.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("invalid WebSocket URL %q (use ws:// or wss://)", t.URL)
		}
	default:
		return fmt.Errorf("invalid transport kind %q, must be one of: %v", t.Kind, kinds)
	}

	if t.Kind == KindSerialFixed && (t.FrameSize <= 0 || t.FrameSize > ccsds.MaxPacketSize) {
		return fmt.Errorf("frame size %d is outside range [1, %d]", t.FrameSize, ccsds.MaxPacketSize)
	}
	if t.Kind == KindSerialASCII || t.Kind == KindVirtual {
		if err := t.ASCII().Validate(); err != nil {
			return fmt.Errorf("invalid framing: %w", err)
		}
	}
	if t.QueueSize < 0 {
		return fmt.Errorf("queue size must not be negative")
	}
	return nil
}

// ASCII returns the framing markers as a framer configuration
func (t TransportConfig) ASCII() framing.ASCIIConfig {
	return framing.ASCIIConfig{
		Start:        t.Framing.Start,
		Stop:         t.Framing.Stop,
		Escape:       t.Framing.Escape,
		EscXor:       t.Framing.EscXor,
		MaxFrameSize: t.Framing.MaxFrameSize,
	}
}

// Version returns the selected PUS version
func (c *Config) Version() (pus.Version, error) {
	switch c.PUSVersion {
	case "a", "A":
		return pus.VersionA, nil
	case "c", "C", "":
		return pus.VersionC, nil
	}
	return 0, fmt.Errorf("invalid pusVersion %q, must be a or c", c.PUSVersion)
}

// CommandTimeout is how long a command may go without a report
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Timing.CommandTimeoutSec) * time.Second
}

// PollInterval is the pause between two polls
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Timing.PollIntervalMs) * time.Millisecond
}

// RetryDelay is the pause before a send is repeated
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Timing.RetryDelayMs) * time.Millisecond
}

// WriteTimeout bounds a single transport write
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Timing.WriteTimeoutMs) * time.Millisecond
}
