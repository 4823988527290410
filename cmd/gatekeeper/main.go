// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Gatekeeper is the administration CLI for a gatekeeper-service store.
//
//	gatekeeper selections list
//	gatekeeper selections revoke <client-id>
//	gatekeeper identity generate <path>
//
// Revoking removes a stored decision so the client is asked about
// again. A running service keeps its in-memory decisions; the change
// takes effect when it next starts.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gatekeeper/cmd/gatekeeper/cli"
	"github.com/bureau-foundation/gatekeeper/lib/process"
	"github.com/bureau-foundation/gatekeeper/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

const usage = `usage:
  gatekeeper [--config path] selections list
  gatekeeper [--config path] selections revoke <client-id>
  gatekeeper identity generate <path>
  gatekeeper version
`

func run(args []string, stdout io.Writer) error {
	var configPath string
	var logLevel string

	flagSet := pflag.NewFlagSet("gatekeeper", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $GATEKEEPER_CONFIG)")
	flagSet.StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
	flagSet.SetInterspersed(false)
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			fmt.Fprint(stdout, usage)
			return nil
		}
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		return errors.New("no command given\n" + usage)
	}

	level, err := cli.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger := cli.NewCommandLogger(level)
	ctx := context.Background()

	switch rest[0] {
	case "version":
		version.Fprint(stdout, "gatekeeper")
		return nil

	case "identity":
		if len(rest) != 3 || rest[1] != "generate" {
			return errors.New("usage: gatekeeper identity generate <path>")
		}
		return generateIdentity(rest[2], stdout)

	case "selections":
		if len(rest) < 2 {
			return errors.New("usage: gatekeeper selections list|revoke")
		}
		cfg, err := cli.LoadConfig(configPath)
		if err != nil {
			return err
		}
		store, err := cli.OpenStore(cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		switch rest[1] {
		case "list":
			if len(rest) != 2 {
				return errors.New("usage: gatekeeper selections list")
			}
			return listSelections(ctx, store, logger, stdout)
		case "revoke":
			if len(rest) != 3 {
				return errors.New("usage: gatekeeper selections revoke <client-id>")
			}
			return revokeSelection(ctx, store, rest[2], logger, stdout)
		default:
			return fmt.Errorf("unknown selections command %q", rest[1])
		}

	default:
		return fmt.Errorf("unknown command %q\n%s", rest[0], usage)
	}
}
