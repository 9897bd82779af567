// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package main is the secretd command: it runs the daemon and talks to it.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/urfave/cli/v3"

	"github.com/carabiner-dev/secretd/options"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout, os.Stderr).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// newApp builds the command tree. Flags carry state, so every run needs a
// fresh tree.
func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.Command {
	defaults := options.DefaultClient

	return &cli.Command{
		Name:      "secretd",
		Usage:     "Hold short-lived secrets in memory behind a master password",
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "socket",
				Aliases: []string{"s"},
				Value:   defaults.SocketPath,
				Usage:   "Unix socket path of the daemon",
				Sources: cli.EnvVars(defaults.EnvVarSocket),
			},
			&cli.StringFlag{
				Name:  "admin-socket",
				Value: defaults.AdminSocketPath,
				Usage: "Unix socket path of the admin health endpoint, empty disables it",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug output",
				Sources: cli.EnvVars(defaults.EnvVarDebug),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := slog.LevelWarn
			if cmd.Bool("debug") {
				level = slog.LevelDebug
			}
			logger := clog.NewLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))
			return clog.WithLogger(ctx, logger), nil
		},
		Commands: []*cli.Command{
			serverCommand(),
			setCommand(),
			getCommand(),
			unlockCommand(),
			lockCommand(),
			pingCommand(),
		},
	}
}

// commonOptions reads the global flags.
func commonOptions(cmd *cli.Command) options.Common {
	common := options.DefaultClient.Common
	common.SocketPath = cmd.String("socket")
	common.AdminSocketPath = cmd.String("admin-socket")
	common.Debug = cmd.Bool("debug")
	return common
}
