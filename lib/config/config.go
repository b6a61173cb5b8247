// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/privbridge/lib/netutil"
	"github.com/bureau-foundation/privbridge/wire"
)

// EnvironmentVariable names the variable Load reads the config path from.
const EnvironmentVariable = "PRIVBRIDGE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the privbridge configuration.
type Config struct {
	Environment Environment   `yaml:"environment"`
	Peer        PeerConfig    `yaml:"peer"`
	Log         LogConfig     `yaml:"log"`
	Metrics     MetricsConfig `yaml:"metrics"`

	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the sections an environment block may replace. Only
// non-zero fields take effect.
type Overrides struct {
	Peer    *PeerOverrides `yaml:"peer,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// PeerOverrides mirrors PeerConfig for an environment block.
type PeerOverrides struct {
	Address        string           `yaml:"address,omitempty"`
	DialTimeout    time.Duration    `yaml:"dial_timeout,omitempty"`
	MaxFrameLength int              `yaml:"max_frame_length,omitempty"`
	Redial         *RedialOverrides `yaml:"redial,omitempty"`
}

// RedialOverrides mirrors RedialConfig. Enabled is a pointer so that
// "enabled: false" is distinguishable from an absent key.
type RedialOverrides struct {
	Enabled      *bool         `yaml:"enabled,omitempty"`
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
	MaxDelay     time.Duration `yaml:"max_delay,omitempty"`
}

// PeerConfig describes how to reach the privileged peer.
type PeerConfig struct {
	// Address is host:port of the peer. Must be loopback.
	Address string `yaml:"address"`

	DialTimeout time.Duration `yaml:"dial_timeout"`

	// MaxFrameLength bounds inbound frame payloads in bytes.
	MaxFrameLength int `yaml:"max_frame_length"`

	Redial RedialConfig `yaml:"redial"`
}

// RedialConfig controls reconnection after the connection drops. With
// Enabled false a lost connection stays lost.
type RedialConfig struct {
	Enabled      bool          `yaml:"enabled"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint. An empty
// ListenAddress disables it.
type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// DefaultPeerAddress is where the privileged peer listens.
const DefaultPeerAddress = "127.0.0.1:1720"

// Default returns the configuration used before any file is applied.
func Default() *Config {
	return &Config{
		Environment: Development,
		Peer: PeerConfig{
			Address:        DefaultPeerAddress,
			DialTimeout:    5 * time.Second,
			MaxFrameLength: wire.DefaultMaxFrameLength,
			Redial: RedialConfig{
				Enabled:      true,
				InitialDelay: 250 * time.Millisecond,
				MaxDelay:     30 * time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads the file named by PRIVBRIDGE_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of a privbridge config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path on top of Default, applies the
// matching environment section, and expands variables. It does not
// validate; callers apply flag overrides first and then call Validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the same decoder (and its
		// duration handling) serves both once comments are stripped.
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.Peer.Address = expandVars(cfg.Peer.Address)
	cfg.Metrics.ListenAddress = expandVars(cfg.Metrics.ListenAddress)
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if peer := overrides.Peer; peer != nil {
		if peer.Address != "" {
			c.Peer.Address = peer.Address
		}
		if peer.DialTimeout != 0 {
			c.Peer.DialTimeout = peer.DialTimeout
		}
		if peer.MaxFrameLength != 0 {
			c.Peer.MaxFrameLength = peer.MaxFrameLength
		}
		if redial := peer.Redial; redial != nil {
			if redial.Enabled != nil {
				c.Peer.Redial.Enabled = *redial.Enabled
			}
			if redial.InitialDelay != 0 {
				c.Peer.Redial.InitialDelay = redial.InitialDelay
			}
			if redial.MaxDelay != 0 {
				c.Peer.Redial.MaxDelay = redial.MaxDelay
			}
		}
	}

	if log := overrides.Log; log != nil {
		if log.Level != "" {
			c.Log.Level = log.Level
		}
		if log.Format != "" {
			c.Log.Format = log.Format
		}
	}

	if metrics := overrides.Metrics; metrics != nil && metrics.ListenAddress != "" {
		c.Metrics.ListenAddress = metrics.ListenAddress
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the process
// environment. An unset or empty variable without a default expands to
// the empty string.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	if c.Peer.Address == "" {
		errs = append(errs, errors.New("peer.address is required"))
	} else if err := netutil.RequireLoopback(c.Peer.Address); err != nil {
		errs = append(errs, fmt.Errorf("peer.address: %w", err))
	}
	if c.Peer.DialTimeout < 0 {
		errs = append(errs, errors.New("peer.dial_timeout must not be negative"))
	}
	if c.Peer.MaxFrameLength < 0 {
		errs = append(errs, errors.New("peer.max_frame_length must not be negative"))
	}
	if redial := c.Peer.Redial; redial.Enabled {
		if redial.InitialDelay <= 0 {
			errs = append(errs, errors.New("peer.redial.initial_delay must be positive"))
		}
		if redial.MaxDelay < redial.InitialDelay {
			errs = append(errs, errors.New("peer.redial.max_delay must be at least initial_delay"))
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json; got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
