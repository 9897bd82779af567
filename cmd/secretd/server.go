// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/urfave/cli/v3"

	"github.com/carabiner-dev/secretd/internal/common"
	"github.com/carabiner-dev/secretd/internal/server"
	"github.com/carabiner-dev/secretd/options"
)

func serverCommand() *cli.Command {
	defaults := options.DefaultServer

	return &cli.Command{
		Name:  "server",
		Usage: "Run the daemon in the foreground",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "ttl",
				Value: int(defaults.TTL / time.Second),
				Usage: "Lifetime of every stored secret, in seconds",
			},
			&cli.DurationFlag{
				Name:  "reap-interval",
				Value: defaults.ReapInterval,
				Usage: "How often expired secrets are swept from memory",
			},
			&cli.DurationFlag{
				Name:  "read-timeout",
				Value: defaults.ReadTimeout,
				Usage: "How long a client has to send its request, 0 disables the deadline",
			},
			&cli.DurationFlag{
				Name:  "write-timeout",
				Value: defaults.WriteTimeout,
				Usage: "How long writing a response may take, 0 disables the deadline",
			},
			&cli.DurationFlag{
				Name:  "inactivity-timeout",
				Value: defaults.InactivityTimeout,
				Usage: "Shut down after this long without connections, 0 runs forever",
			},
			&cli.IntFlag{
				Name:  "max-secrets",
				Value: defaults.MaxSecrets,
				Usage: "Maximum number of stored secrets, 0 is unlimited",
			},
			&cli.IntFlag{
				Name:  "max-secret-size",
				Value: int(defaults.MaxSecretSize),
				Usage: "Maximum size of a secret in bytes, 0 uses the protocol maximum",
			},
			&cli.FloatFlag{
				Name:  "unlock-rate",
				Value: defaults.UnlockRate,
				Usage: "Unlock attempts allowed per second, 0 is unlimited",
			},
			&cli.IntFlag{
				Name:  "unlock-burst",
				Value: defaults.UnlockBurst,
				Usage: "Unlock attempts allowed in a burst",
			},
			&cli.StringFlag{
				Name:  "metrics-socket",
				Usage: "Serve Prometheus metrics over HTTP on this Unix socket",
			},
			&cli.BoolFlag{
				Name:  "keyring",
				Usage: "Keep sealed secrets in the Linux kernel keyring",
			},
			&cli.BoolFlag{
				Name:  "purge-on-lock",
				Usage: "Forget every secret when the store is locked",
			},
			&cli.BoolFlag{
				Name:  "allow-other-users",
				Usage: "Accept connections from processes running as other users",
			},
		},
		Action: runServer,
	}
}

func serverOptions(cmd *cli.Command) *options.Server {
	opts := *options.DefaultServer
	opts.Common = commonOptions(cmd)
	opts.TTL = time.Duration(cmd.Int("ttl")) * time.Second
	opts.ReapInterval = cmd.Duration("reap-interval")
	opts.ReadTimeout = cmd.Duration("read-timeout")
	opts.WriteTimeout = cmd.Duration("write-timeout")
	opts.InactivityTimeout = cmd.Duration("inactivity-timeout")
	opts.MaxSecrets = cmd.Int("max-secrets")
	opts.MaxSecretSize = int64(cmd.Int("max-secret-size"))
	opts.UnlockRate = cmd.Float("unlock-rate")
	opts.UnlockBurst = cmd.Int("unlock-burst")
	opts.MetricsSocketPath = cmd.String("metrics-socket")
	opts.Keyring = cmd.Bool("keyring")
	opts.PurgeOnLock = cmd.Bool("purge-on-lock")
	opts.RequireSameUser = !cmd.Bool("allow-other-users")
	return &opts
}

func runServer(ctx context.Context, cmd *cli.Command) error {
	opts := serverOptions(cmd)

	password := secretFromEnv(opts.EnvVarPassword)
	if password == nil {
		var err error
		password, err = newPrompter(cmd.Root().Reader, cmd.Root().ErrWriter).
			ReadSecretConfirm("Master password: ", "Confirm master password: ")
		if err != nil {
			return err
		}
	}
	if len(password) == 0 {
		return errors.New("master password must not be empty")
	}

	srv, err := server.NewServer(ctx, opts, password)
	common.ZeroBytes(password)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clog.FromContext(ctx).Infof("Starting secretd server...")

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
