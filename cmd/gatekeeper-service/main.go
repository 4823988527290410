// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Gatekeeper-service listens on a Unix socket and admits clients only
// after the operator has granted them, once. Grants are stored; a
// stored grant admits the client on every later connection without
// asking again. Admitted clients get a heartbeat-monitored message
// channel offering the echo and gate.status services.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gatekeeper/cmd/gatekeeper/cli"
	"github.com/bureau-foundation/gatekeeper/gate"
	"github.com/bureau-foundation/gatekeeper/lib/process"
	"github.com/bureau-foundation/gatekeeper/lib/version"
	"github.com/bureau-foundation/gatekeeper/permission"
	"github.com/bureau-foundation/gatekeeper/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var socketOverride string
	var logLevel string
	var showVersion bool

	flagSet := pflag.NewFlagSet("gatekeeper-service", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $GATEKEEPER_CONFIG)")
	flagSet.StringVar(&socketOverride, "socket", "", "listen on this socket instead of paths.socket")
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		version.Fprint(os.Stdout, "gatekeeper-service")
		return nil
	}

	level, err := cli.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger := cli.NewCommandLogger(level)
	slog.SetDefault(logger)

	cfg, err := cli.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if socketOverride != "" {
		cfg.Paths.Socket = socketOverride
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger.Info("starting gatekeeper-service",
		"version", version.Info(),
		"environment", cfg.Environment,
		"socket", cfg.Paths.Socket,
		"store", cfg.Store.Backend,
		"prompt", cfg.Prompt.Mode,
	)

	store, err := cli.OpenStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	registry, err := cli.KnownApps(cfg)
	if err != nil {
		return err
	}
	logger.Info("known apps loaded", "count", registry.Len())

	prompter, terminal, err := cli.Prompter(cfg, logger)
	if err != nil {
		return err
	}
	defer terminal.Close()

	checker, err := permission.New(permission.Config{
		Store:    store,
		Prompter: prompter,
		Registry: registry,
		OnStoredRejection: func(clientID string) {
			logger.Info("client refused by stored denial", "client_id", clientID)
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer checker.Close()

	codec, err := cli.Codec(cfg)
	if err != nil {
		return err
	}
	streamOptions, err := cli.StreamOptions(cfg)
	if err != nil {
		return err
	}
	compression, err := cli.Compression(cfg)
	if err != nil {
		return err
	}
	heartbeatConfig, err := cli.Heartbeat(cfg, logger)
	if err != nil {
		return err
	}

	unixListener, err := transport.ListenUnix(cfg.Paths.Socket, streamOptions)
	if err != nil {
		return err
	}
	listener := transport.CompressListener(unixListener, compression, streamOptions.MaxMessageSize)
	defer listener.Close()

	server := &gate.Server{
		Listener:  listener,
		Checker:   checker,
		Codec:     codec,
		Heartbeat: heartbeatConfig,
		Services: map[string]gate.Handler{
			"echo": echo(logger),
		},
		Logger: logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// echo replies with the request payload unchanged.
func echo(logger *slog.Logger) gate.Handler {
	return func(session *gate.Session, data any) {
		if err := session.Reply("echo", data); err != nil {
			logger.Debug("echo reply failed", "client_id", session.ClientID, "error", err)
		}
	}
}
