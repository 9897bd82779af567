// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus collectors exported by the daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for Requests.
const (
	OutcomeOk           = "ok"
	OutcomeError        = "error"
	OutcomeUnauthorized = "unauthorized"
	OutcomeThrottled    = "throttled"
)

// Drop reasons for Dropped.
const (
	DropMalformed = "malformed"
	DropRead      = "read"
	DropWrite     = "write"
	DropPeer      = "peer"
)

// Metrics is the set of collectors the server updates.
type Metrics struct {
	registry *prometheus.Registry

	Connections    prometheus.Counter
	Requests       *prometheus.CounterVec
	Dropped        *prometheus.CounterVec
	Reaped         prometheus.Counter
	UnlockFailures prometheus.Counter
}

// New registers the daemon collectors in a private registry. stored reports
// the current number of entries for the stored-secrets gauge.
func New(namespace string, stored func() float64) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connections accepted on the daemon socket.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests dispatched, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_connections_total",
			Help:      "Connections closed without a response, by reason.",
		}, []string{"reason"}),
		Reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaped_secrets_total",
			Help:      "Expired secrets removed by the background reaper.",
		}),
		UnlockFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unlock_failures_total",
			Help:      "Unlock attempts with a wrong password.",
		}),
	}

	registry.MustRegister(
		m.Connections,
		m.Requests,
		m.Dropped,
		m.Reaped,
		m.UnlockFailures,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_secrets",
			Help:      "Secrets currently held, including expired ones not yet reaped.",
		}, stored),
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
