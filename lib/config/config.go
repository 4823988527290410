// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config path from.
const EnvironmentVariable = "GATEKEEPER_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for deployed services.
	Production Environment = "production"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Prompt modes.
const (
	// PromptTerminal asks the operator on a terminal.
	PromptTerminal = "terminal"
	// PromptDeny denies every client not already stored.
	PromptDeny = "deny"
	// PromptAllow grants every client not already stored. Development
	// only.
	PromptAllow = "allow"
)

// Config is the master configuration for gatekeeper.
type Config struct {
	// Environment identifies the deployment type (development, production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory and socket locations.
	Paths PathsConfig `yaml:"paths"`

	// Store configures where permission selections persist.
	Store StoreConfig `yaml:"store"`

	// Heartbeat configures liveness probing of connected clients.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Prompt configures how undecided clients are resolved.
	Prompt PromptConfig `yaml:"prompt"`

	// KnownApps is the path to the known applications registry. Empty
	// means every client is presented as unknown.
	KnownApps string `yaml:"known_apps"`

	// Transport configures the wire format.
	Transport TransportConfig `yaml:"transport"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Store     *StoreConfig     `yaml:"store,omitempty"`
	Heartbeat *HeartbeatConfig `yaml:"heartbeat,omitempty"`
	Prompt    *PromptConfig    `yaml:"prompt,omitempty"`
	Transport *TransportConfig `yaml:"transport,omitempty"`
}

// PathsConfig configures directory and socket locations.
type PathsConfig struct {
	// State is where runtime state is stored.
	State string `yaml:"state"`

	// Socket is the Unix socket the service listens on.
	// Default: ${GATEKEEPER_STATE}/gatekeeper.sock
	Socket string `yaml:"socket"`
}

// StoreConfig configures the selection store.
type StoreConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the store directory (file) or database file (sqlite).
	// Default: ${GATEKEEPER_STATE}/selections or
	// ${GATEKEEPER_STATE}/gatekeeper.db
	Path string `yaml:"path"`

	// SealIdentity is the age identity file used to decrypt stored
	// values. Setting it encrypts the store at rest.
	SealIdentity string `yaml:"seal_identity"`

	// SealRecipients are extra age recipients every stored value is
	// also encrypted to, for escrow.
	SealRecipients []string `yaml:"seal_recipients"`
}

// HeartbeatConfig configures liveness probing.
type HeartbeatConfig struct {
	// InitialInterval is the delay before the first ping.
	// Default: 1s
	InitialInterval string `yaml:"initial_interval"`

	// Interval is the delay between subsequent pings.
	// Default: 5s
	Interval string `yaml:"interval"`

	// MaxMissed is how many unanswered pings fail the channel.
	// Default: 3
	MaxMissed int `yaml:"max_missed"`
}

// PromptConfig configures operator prompting.
type PromptConfig struct {
	// Mode is "terminal", "deny" or "allow".
	Mode string `yaml:"mode"`

	// TTY is the terminal device the prompt is drawn on.
	// Default: /dev/tty
	TTY string `yaml:"tty"`
}

// TransportConfig configures the wire format.
type TransportConfig struct {
	// Codec is "cbor" or "json".
	Codec string `yaml:"codec"`

	// Compression is "none", "lz4" or "zstd". Both ends must agree.
	Compression string `yaml:"compression"`

	// MaxMessageSize bounds one message in bytes.
	// Default: 4 MiB
	MaxMessageSize int `yaml:"max_message_size"`

	// WriteTimeout bounds one write to a stream socket.
	// Default: 10s
	WriteTimeout string `yaml:"write_timeout"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			State:  filepath.Join(homeDir, ".local", "state", "gatekeeper"),
			Socket: "${GATEKEEPER_STATE}/gatekeeper.sock",
		},
		Store: StoreConfig{
			Backend: BackendFile,
		},
		Heartbeat: HeartbeatConfig{
			InitialInterval: "1s",
			Interval:        "5s",
			MaxMissed:       3,
		},
		Prompt: PromptConfig{
			Mode: PromptTerminal,
			TTY:  "/dev/tty",
		},
		Transport: TransportConfig{
			Codec:          "cbor",
			Compression:    "none",
			MaxMessageSize: 4 << 20,
			WriteTimeout:   "10s",
		},
	}
}

// Load loads configuration from the GATEKEEPER_CONFIG environment
// variable. There are no fallbacks: if it is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your gatekeeper.yaml config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values. The only expansion performed is ${HOME} and similar
// path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{
				Store: &StoreConfig{Backend: BackendSQLite},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
		if overrides.Paths.Socket != "" {
			c.Paths.Socket = overrides.Paths.Socket
		}
	}

	if overrides.Store != nil {
		if overrides.Store.Backend != "" {
			c.Store.Backend = overrides.Store.Backend
		}
		if overrides.Store.Path != "" {
			c.Store.Path = overrides.Store.Path
		}
		if overrides.Store.SealIdentity != "" {
			c.Store.SealIdentity = overrides.Store.SealIdentity
		}
		if len(overrides.Store.SealRecipients) > 0 {
			c.Store.SealRecipients = overrides.Store.SealRecipients
		}
	}

	if overrides.Heartbeat != nil {
		if overrides.Heartbeat.InitialInterval != "" {
			c.Heartbeat.InitialInterval = overrides.Heartbeat.InitialInterval
		}
		if overrides.Heartbeat.Interval != "" {
			c.Heartbeat.Interval = overrides.Heartbeat.Interval
		}
		if overrides.Heartbeat.MaxMissed != 0 {
			c.Heartbeat.MaxMissed = overrides.Heartbeat.MaxMissed
		}
	}

	if overrides.Prompt != nil {
		if overrides.Prompt.Mode != "" {
			c.Prompt.Mode = overrides.Prompt.Mode
		}
		if overrides.Prompt.TTY != "" {
			c.Prompt.TTY = overrides.Prompt.TTY
		}
	}

	if overrides.Transport != nil {
		if overrides.Transport.Codec != "" {
			c.Transport.Codec = overrides.Transport.Codec
		}
		if overrides.Transport.Compression != "" {
			c.Transport.Compression = overrides.Transport.Compression
		}
		if overrides.Transport.MaxMessageSize != 0 {
			c.Transport.MaxMessageSize = overrides.Transport.MaxMessageSize
		}
		if overrides.Transport.WriteTimeout != "" {
			c.Transport.WriteTimeout = overrides.Transport.WriteTimeout
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"GATEKEEPER_STATE": c.Paths.State,
		"HOME":             os.Getenv("HOME"),
	}

	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["GATEKEEPER_STATE"] = c.Paths.State // Update for dependent paths.

	c.Paths.Socket = expandVars(c.Paths.Socket, vars)
	c.Store.Path = expandVars(c.Store.Path, vars)
	c.Store.SealIdentity = expandVars(c.Store.SealIdentity, vars)
	c.KnownApps = expandVars(c.KnownApps, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Every problem found is
// reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.State == "" {
		errs = append(errs, errors.New("paths.state is required"))
	}
	if c.Paths.Socket == "" {
		errs = append(errs, errors.New("paths.socket is required"))
	}

	backends := []string{BackendFile, BackendSQLite}
	if !slices.Contains(backends, c.Store.Backend) {
		errs = append(errs, fmt.Errorf("store.backend must be one of: %v", backends))
	}
	if len(c.Store.SealRecipients) > 0 && c.Store.SealIdentity == "" {
		errs = append(errs, errors.New("store.seal_recipients requires store.seal_identity"))
	}

	initial, interval, err := c.Heartbeat.Durations()
	if err != nil {
		errs = append(errs, err)
	} else {
		if initial <= 0 {
			errs = append(errs, errors.New("heartbeat.initial_interval must be positive"))
		}
		if interval <= 0 {
			errs = append(errs, errors.New("heartbeat.interval must be positive"))
		}
	}
	if c.Heartbeat.MaxMissed < 1 {
		errs = append(errs, errors.New("heartbeat.max_missed must be at least 1"))
	}

	modes := []string{PromptTerminal, PromptDeny, PromptAllow}
	if !slices.Contains(modes, c.Prompt.Mode) {
		errs = append(errs, fmt.Errorf("prompt.mode must be one of: %v", modes))
	}
	if c.Environment == Production && c.Prompt.Mode == PromptAllow {
		errs = append(errs, errors.New("prompt.mode allow is not permitted in production"))
	}
	if c.Prompt.Mode == PromptTerminal && c.Prompt.TTY == "" {
		errs = append(errs, errors.New("prompt.tty is required for terminal mode"))
	}

	codecs := []string{"cbor", "json"}
	if !slices.Contains(codecs, c.Transport.Codec) {
		errs = append(errs, fmt.Errorf("transport.codec must be one of: %v", codecs))
	}
	compressions := []string{"none", "lz4", "zstd"}
	if !slices.Contains(compressions, c.Transport.Compression) {
		errs = append(errs, fmt.Errorf("transport.compression must be one of: %v", compressions))
	}
	if c.Transport.MaxMessageSize < 1024 {
		errs = append(errs, errors.New("transport.max_message_size must be at least 1024"))
	}
	if _, err := c.Transport.WriteTimeoutDuration(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// StorePath returns Store.Path, or the backend's default location
// under Paths.State when it is empty.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	if c.Store.Backend == BackendSQLite {
		return filepath.Join(c.Paths.State, "gatekeeper.db")
	}
	return filepath.Join(c.Paths.State, "selections")
}

// EnsurePaths creates the state directory and the socket's parent
// directory if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.State,
		filepath.Dir(c.Paths.Socket),
	}

	for _, path := range paths {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

// Durations parses InitialInterval and Interval.
func (h HeartbeatConfig) Durations() (initial, interval time.Duration, err error) {
	initial, err = time.ParseDuration(h.InitialInterval)
	if err != nil {
		return 0, 0, fmt.Errorf("heartbeat.initial_interval: %w", err)
	}
	interval, err = time.ParseDuration(h.Interval)
	if err != nil {
		return 0, 0, fmt.Errorf("heartbeat.interval: %w", err)
	}
	return initial, interval, nil
}

// WriteTimeoutDuration parses WriteTimeout. Empty means zero, which
// disables the timeout.
func (t TransportConfig) WriteTimeoutDuration() (time.Duration, error) {
	if t.WriteTimeout == "" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(t.WriteTimeout)
	if err != nil {
		return 0, fmt.Errorf("transport.write_timeout: %w", err)
	}
	if timeout < 0 {
		return 0, errors.New("transport.write_timeout must not be negative")
	}
	return timeout, nil
}
