// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package options

import "time"

// Common options for client and server options
type Common struct {
	SocketPath      string `json:"socket_path"`
	AdminSocketPath string `json:"admin_socket_path"` // gRPC health endpoint, empty disables it
	Debug           bool   `json:"debug"`
	EnvVarSocket    string `json:"envar_socket"`
	EnvVarDebug     string `json:"envar_debug"`
}

// Server options set
type Server struct {
	Common

	TTL               time.Duration `json:"ttl"`                // Lifetime applied to every write
	ReapInterval      time.Duration `json:"reap_interval"`      // How often expired secrets are swept
	ReadTimeout       time.Duration `json:"read_timeout"`       // Deadline for a peer to send its request
	WriteTimeout      time.Duration `json:"write_timeout"`      // Deadline for writing the response
	InactivityTimeout time.Duration `json:"inactivity_timeout"` // Shut down after this long without connections, 0 = never
	MaxSecrets        int           `json:"max_secrets"`        // Maximum number of secrets that can be stored
	MaxSecretSize     int64         `json:"max_secret_size"`    // Maximum size of a single secret in bytes, 0 = protocol maximum
	PurgeOnLock       bool          `json:"purge_on_lock"`      // Drop every secret when the store is locked
	RequireSameUser   bool          `json:"require_same_user"`  // Drop peers running as a different UID
	UnlockRate        float64       `json:"unlock_rate"`        // Unlock attempts per second, 0 = unlimited
	UnlockBurst       int           `json:"unlock_burst"`       // Unlock attempts allowed in a burst
	MetricsSocketPath string        `json:"metrics_socket_path"`
	Keyring           bool          `json:"keyring"` // Keep sealed secrets in the kernel keyring
	EnvVarPassword    string        `json:"envar_password"`
}

// Client options set
type Client struct {
	Common

	Timeout time.Duration `json:"timeout"` // Per-request deadline
}

// defaultCommon default common options shared by default server and client sets
var defaultCommon = Common{
	SocketPath:      "/tmp/secretd.sock",
	AdminSocketPath: "/tmp/secretd.admin.sock",
	Debug:           false,
	EnvVarSocket:    "SECRETD_SOCKET",
	EnvVarDebug:     "SECRETD_DEBUG",
}

// DefaultClient default client options
var DefaultClient = &Client{
	Common:  defaultCommon,
	Timeout: 5 * time.Second,
}

// DefaultServer default server options
var DefaultServer = &Server{
	Common:            defaultCommon,
	TTL:               300 * time.Second,
	ReapInterval:      5 * time.Second,
	ReadTimeout:       10 * time.Second,
	WriteTimeout:      10 * time.Second,
	InactivityTimeout: 0,
	MaxSecrets:        100,
	MaxSecretSize:     1024 * 1024, // 1 MB per secret
	PurgeOnLock:       false,
	RequireSameUser:   true,
	UnlockRate:        1,
	UnlockBurst:       5,
	MetricsSocketPath: "",
	Keyring:           false,
	EnvVarPassword:    "SECRETD_PASSWORD",
}
