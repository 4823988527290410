// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Gatekeeper-client connects to gatekeeper-service as --client-id,
// waits to be admitted, sends --message to the echo service and
// prints the reply. With --stay it then remains connected, answering
// heartbeats, until the service closes the channel or the process is
// interrupted.
//
// Exit status is 2 when the service rejects the client.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gatekeeper/channel"
	"github.com/bureau-foundation/gatekeeper/cmd/gatekeeper/cli"
	"github.com/bureau-foundation/gatekeeper/gate"
	"github.com/bureau-foundation/gatekeeper/lib/process"
	"github.com/bureau-foundation/gatekeeper/lib/version"
	"github.com/bureau-foundation/gatekeeper/message"
)

// exitRejected is the exit status when the service rejects the client.
const exitRejected = 2

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var socketOverride string
	var clientID string
	var text string
	var stay bool
	var status bool
	var replyTimeout time.Duration
	var logLevel string
	var showVersion bool

	flagSet := pflag.NewFlagSet("gatekeeper-client", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $GATEKEEPER_CONFIG)")
	flagSet.StringVar(&socketOverride, "socket", "", "connect to this socket instead of paths.socket")
	flagSet.StringVar(&clientID, "client-id", "", "identity to present to the gate (required)")
	flagSet.StringVar(&text, "message", "hello", "text to send to the echo service")
	flagSet.BoolVar(&stay, "stay", false, "stay connected after the reply, answering heartbeats")
	flagSet.BoolVar(&status, "status", false, "also request gate.status and print it")
	flagSet.DurationVar(&replyTimeout, "reply-timeout", 10*time.Second, "how long to wait for each reply")
	flagSet.StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		version.Fprint(os.Stdout, "gatekeeper-client")
		return nil
	}
	if clientID == "" {
		return errors.New("--client-id is required")
	}

	level, err := cli.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger := cli.NewCommandLogger(level).With("client_id", clientID)

	cfg, err := cli.LoadConfig(configPath)
	if err != nil {
		return err
	}
	socketPath := cfg.Paths.Socket
	if socketOverride != "" {
		socketPath = socketOverride
	}
	codec, err := cli.Codec(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := cli.DialUnix(ctx, cfg, socketPath)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", socketPath, err)
	}

	echoes := make(chan any, 1)
	statuses := make(chan any, 1)
	client, err := gate.Dial(ctx, conn, clientID, gate.ClientConfig{
		Codec: codec,
		Services: map[string]channel.Handler{
			"echo":             func(data any) { echoes <- data },
			gate.StatusService: func(data any) { statuses <- data },
		},
		Logger: logger,
	})
	if err != nil {
		var rejected *gate.RejectedError
		if errors.As(err, &rejected) {
			return &process.ExitError{Code: exitRejected, Err: err}
		}
		return err
	}
	defer client.Close()
	logger.Info("admitted", "channel", client.ID())

	if err := client.Send("echo", text); err != nil {
		return err
	}
	reply, err := await(ctx, client, echoes, replyTimeout)
	if err != nil {
		return fmt.Errorf("waiting for echo: %w", err)
	}
	fmt.Println(reply)

	if status {
		if err := client.Send(gate.StatusService, nil); err != nil {
			return err
		}
		raw, err := await(ctx, client, statuses, replyTimeout)
		if err != nil {
			return fmt.Errorf("waiting for status: %w", err)
		}
		var report gate.Status
		if err := message.DecodeData(raw, &report); err != nil {
			return err
		}
		fmt.Printf("channel %s: %d open channels, service up %s\n", report.ChannelID, report.Channels, report.Uptime)
	}

	if !stay {
		return nil
	}
	select {
	case <-client.Done():
		if cause := client.Err(); cause != nil {
			return fmt.Errorf("channel closed: %w", cause)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

// await returns the next value from replies, failing if the channel
// closes, ctx ends, or timeout passes first.
func await(ctx context.Context, client *channel.Channel, replies <-chan any, timeout time.Duration) (any, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-replies:
		return reply, nil
	case <-client.Done():
		cause := client.Err()
		if cause == nil {
			cause = channel.ErrDisposed
		}
		return nil, fmt.Errorf("channel closed: %w", cause)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("no reply within %s", timeout)
	}
}
