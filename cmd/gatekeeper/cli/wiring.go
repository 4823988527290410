// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bureau-foundation/gatekeeper/heartbeat"
	"github.com/bureau-foundation/gatekeeper/knownapps"
	"github.com/bureau-foundation/gatekeeper/lib/config"
	"github.com/bureau-foundation/gatekeeper/lib/kvstore"
	"github.com/bureau-foundation/gatekeeper/lib/sealed"
	"github.com/bureau-foundation/gatekeeper/message"
	"github.com/bureau-foundation/gatekeeper/permission"
	"github.com/bureau-foundation/gatekeeper/prompt"
	"github.com/bureau-foundation/gatekeeper/transport"
)

// LoadConfig loads path, or GATEKEEPER_CONFIG when path is empty, and
// validates the result.
func LoadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// OpenStore opens the configured selection store, sealed when a seal
// identity is configured.
func OpenStore(cfg *config.Config, logger *slog.Logger) (kvstore.Store, error) {
	options := kvstore.Options{
		Backend: kvstore.Backend(cfg.Store.Backend),
		Path:    cfg.StorePath(),
		Logger:  logger,
	}
	if cfg.Store.SealIdentity != "" {
		identity, err := sealed.LoadIdentity(cfg.Store.SealIdentity)
		if err != nil {
			return nil, fmt.Errorf("loading seal identity: %w", err)
		}
		options.SealIdentity = identity
		options.SealRecipients = cfg.Store.SealRecipients
	}
	store, err := kvstore.Open(options)
	if err != nil {
		if options.SealIdentity != nil {
			options.SealIdentity.Close()
		}
		return nil, fmt.Errorf("opening %s store at %s: %w", cfg.Store.Backend, options.Path, err)
	}
	return store, nil
}

// Codec returns the configured message codec.
func Codec(cfg *config.Config) (message.Codec, error) {
	return message.ByName(cfg.Transport.Codec)
}

// StreamOptions returns the configured stream framing limits.
func StreamOptions(cfg *config.Config) (transport.StreamOptions, error) {
	writeTimeout, err := cfg.Transport.WriteTimeoutDuration()
	if err != nil {
		return transport.StreamOptions{}, err
	}
	return transport.StreamOptions{
		MaxMessageSize: cfg.Transport.MaxMessageSize,
		WriteTimeout:   writeTimeout,
	}, nil
}

// Compression returns the configured per-message compression.
func Compression(cfg *config.Config) (transport.Compression, error) {
	return transport.ParseCompression(cfg.Transport.Compression)
}

// DialUnix connects to the configured socket and applies the
// configured compression.
func DialUnix(ctx context.Context, cfg *config.Config, socketPath string) (transport.Conn, error) {
	options, err := StreamOptions(cfg)
	if err != nil {
		return nil, err
	}
	compression, err := Compression(cfg)
	if err != nil {
		return nil, err
	}
	stream, err := transport.DialUnix(ctx, socketPath, options)
	if err != nil {
		return nil, err
	}
	conn, err := transport.Compress(stream, compression, options.MaxMessageSize)
	if err != nil {
		stream.Close()
		return nil, err
	}
	return conn, nil
}

// Heartbeat returns the configured probe schedule.
func Heartbeat(cfg *config.Config, logger *slog.Logger) (heartbeat.Config, error) {
	initial, interval, err := cfg.Heartbeat.Durations()
	if err != nil {
		return heartbeat.Config{}, err
	}
	return heartbeat.Config{
		InitialInterval: initial,
		Interval:        interval,
		MaxMissed:       cfg.Heartbeat.MaxMissed,
		Logger:          logger,
	}, nil
}

// KnownApps loads the configured registry. No file configured yields
// an empty registry.
func KnownApps(cfg *config.Config) (*knownapps.Registry, error) {
	if cfg.KnownApps == "" {
		return knownapps.New()
	}
	registry, err := knownapps.Load(cfg.KnownApps)
	if err != nil {
		return nil, fmt.Errorf("loading known apps: %w", err)
	}
	return registry, nil
}

// Prompter builds the configured prompter. The returned Closer
// releases the terminal, if one was opened.
func Prompter(cfg *config.Config, logger *slog.Logger) (permission.Prompter, io.Closer, error) {
	switch cfg.Prompt.Mode {
	case config.PromptDeny:
		return prompt.Fixed(prompt.AnswerDeny), noTerminal{}, nil
	case config.PromptAllow:
		logger.Warn("prompt mode is allow: every undecided client will be granted and persisted")
		return prompt.Fixed(prompt.AnswerGrant), noTerminal{}, nil
	case config.PromptTerminal:
		tty, err := os.OpenFile(cfg.Prompt.TTY, os.O_RDWR, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("opening prompt terminal: %w", err)
		}
		terminal, err := prompt.NewTerminal(prompt.TerminalConfig{
			Input:  tty,
			Output: tty,
			Logger: logger,
		})
		if err != nil {
			tty.Close()
			return nil, nil, fmt.Errorf("%s: %w", cfg.Prompt.TTY, err)
		}
		return terminal, tty, nil
	default:
		return nil, nil, fmt.Errorf("unknown prompt mode %q", cfg.Prompt.Mode)
	}
}

type noTerminal struct{}

func (noTerminal) Close() error { return nil }
