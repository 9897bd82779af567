// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/carabiner-dev/secretd/internal/common"
)

// prompter reads secrets without echo from a terminal, or one line at a
// time when input is piped.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int // terminal file descriptor, -1 when input is not a terminal
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec
		p.fd = int(f.Fd()) //nolint:gosec
	}
	return p
}

// ReadSecret shows prompt and reads a value.
func (p *prompter) ReadSecret(prompt string) ([]byte, error) {
	if p.fd >= 0 {
		fmt.Fprint(p.out, prompt)
		secret, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out) // New line after the hidden input
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		return secret, nil
	}

	line, err := p.in.ReadBytes('\n')
	if err != nil && (!errors.Is(err, io.EOF) || len(line) == 0) {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no input on stdin")
		}
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

// ReadSecretConfirm reads a value twice on a terminal and ensures both
// match. Piped input is read once.
func (p *prompter) ReadSecretConfirm(prompt, confirm string) ([]byte, error) {
	first, err := p.ReadSecret(prompt)
	if err != nil {
		return nil, err
	}
	if p.fd < 0 {
		return first, nil
	}

	second, err := p.ReadSecret(confirm)
	if err != nil {
		common.ZeroBytes(first)
		return nil, err
	}
	defer common.ZeroBytes(second)

	if !common.ConstantTimeEqual(first, second) {
		common.ZeroBytes(first)
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}

// secretFromEnv returns a copy of the named variable, nil when unset.
func secretFromEnv(name string) []byte {
	if name == "" {
		return nil
	}
	value := os.Getenv(name)
	if value == "" {
		return nil
	}
	return []byte(value)
}
