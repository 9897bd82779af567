// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/carabiner-dev/secretd"
	"github.com/carabiner-dev/secretd/internal/common"
	"github.com/carabiner-dev/secretd/options"
)

// errSecretNotFound makes an absent get exit non-zero.
var errSecretNotFound = errors.New("secret not found")

func newClient(cmd *cli.Command) *secretd.Client {
	opts := *options.DefaultClient
	opts.Common = commonOptions(cmd)
	return secretd.NewClient(&opts)
}

func requireKey(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("usage: secretd %s KEY", cmd.Name)
	}
	return cmd.Args().First(), nil
}

func setCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Store a secret, the value is read from a hidden prompt or stdin",
		ArgsUsage: "KEY",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			key, err := requireKey(cmd)
			if err != nil {
				return err
			}

			value, err := newPrompter(cmd.Root().Reader, cmd.Root().ErrWriter).ReadSecret("Value: ")
			if err != nil {
				return err
			}
			defer common.ZeroBytes(value)

			if err := newClient(cmd).Set(ctx, key, string(value)); err != nil {
				return fmt.Errorf("failed to store secret: %w", err)
			}

			fmt.Fprintf(cmd.Root().ErrWriter, "Secret %q stored successfully\n", key)
			return nil
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print a secret on stdout",
		ArgsUsage: "KEY",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			key, err := requireKey(cmd)
			if err != nil {
				return err
			}

			value, found, err := newClient(cmd).Get(ctx, key)
			if err != nil {
				return fmt.Errorf("failed to get secret: %w", err)
			}
			if !found {
				return fmt.Errorf("%w: %q", errSecretNotFound, key)
			}

			fmt.Fprintln(cmd.Root().Writer, value)
			return nil
		},
	}
}

func unlockCommand() *cli.Command {
	return &cli.Command{
		Name:  "unlock",
		Usage: "Unlock the store with the master password",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			password, err := newPrompter(cmd.Root().Reader, cmd.Root().ErrWriter).ReadSecret("Master password: ")
			if err != nil {
				return err
			}
			defer common.ZeroBytes(password)

			if err := newClient(cmd).Unlock(ctx, string(password)); err != nil {
				return fmt.Errorf("failed to unlock: %w", err)
			}

			fmt.Fprintln(cmd.Root().ErrWriter, "Unlocked")
			return nil
		},
	}
}

func lockCommand() *cli.Command {
	return &cli.Command{
		Name:  "lock",
		Usage: "Lock the store",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := newClient(cmd).Lock(ctx); err != nil {
				return fmt.Errorf("failed to lock: %w", err)
			}

			fmt.Fprintln(cmd.Root().ErrWriter, "Locked")
			return nil
		},
	}
}

func pingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "Check that the daemon is serving",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c := newClient(cmd)
			defer c.Close() //nolint:errcheck

			if err := c.Ping(ctx); err != nil {
				return fmt.Errorf("server is not responding: %w", err)
			}

			fmt.Fprintln(cmd.Root().Writer, "Server is alive")
			return nil
		},
	}
}
