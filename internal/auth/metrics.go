// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the auth subsystem's Prometheus metrics.
type Metrics struct {
	LoginsTotal       *prometheus.CounterVec
	RotationsTotal    *prometheus.CounterVec
	ReplaysSuppressed prometheus.Counter
	SessionsPurged    prometheus.Counter
}

// Metric label values for operation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeInvalid = "invalid"
)

// NewMetrics creates and registers auth metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftline_auth_logins_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		RotationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftline_auth_rotations_total",
				Help: "Total number of refresh rotations by outcome",
			},
			[]string{"outcome"},
		),
		ReplaysSuppressed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "driftline_auth_replays_suppressed_total",
				Help: "Total number of refresh attempts rejected on a terminal session",
			},
		),
		SessionsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "driftline_auth_sessions_purged_total",
				Help: "Total number of terminal refresh sessions removed by the sweeper",
			},
		),
	}

	reg.MustRegister(m.LoginsTotal, m.RotationsTotal, m.ReplaysSuppressed, m.SessionsPurged)
	return m
}

// loginObserved increments the login counter if metrics are wired.
func (m *Metrics) loginObserved(outcome string) {
	if m != nil {
		m.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

// rotationObserved increments the rotation counter if metrics are wired.
func (m *Metrics) rotationObserved(outcome string) {
	if m != nil {
		m.RotationsTotal.WithLabelValues(outcome).Inc()
	}
}

// replayObserved increments the replay counter if metrics are wired.
func (m *Metrics) replayObserved() {
	if m != nil {
		m.ReplaysSuppressed.Inc()
	}
}

// purgeObserved adds to the purge counter if metrics are wired.
func (m *Metrics) purgeObserved(n int64) {
	if m != nil && n > 0 {
		m.SessionsPurged.Add(float64(n))
	}
}
