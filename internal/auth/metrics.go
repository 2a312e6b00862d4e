// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels.
const (
	OpRegister  = "register"
	OpAuthorize = "authorize"
	OpRefresh   = "refresh"
	OpLogout    = "logout"
)

// Metrics records credential protocol outcomes. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Operations       *prometheus.CounterVec
	Duration         *prometheus.HistogramVec
	RegistryFailures *prometheus.CounterVec
}

// NewMetrics creates the credential metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lawdesk_auth_operations_total",
				Help: "Total credential operations by operation and outcome class",
			},
			[]string{"operation", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lawdesk_auth_operation_duration_seconds",
				Help:    "Credential operation latency, including password hashing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RegistryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lawdesk_session_registry_failures_total",
				Help: "Session registry calls that failed after retries, by call",
			},
			[]string{"op"},
		),
	}

	reg.MustRegister(m.Operations, m.Duration, m.RegistryFailures)
	return m
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = Classify(err).String()
	}
	m.Operations.WithLabelValues(op, status).Inc()
	m.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) registryFailure(op string) {
	if m == nil {
		return
	}
	m.RegistryFailures.WithLabelValues(op).Inc()
}
