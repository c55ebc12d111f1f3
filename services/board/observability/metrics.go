// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the board
// orchestrator. Metrics are exposed on /metrics; all operations are
// thread-safe via Prometheus's internal locking, and every recording
// method is a no-op on a nil receiver so tests can skip wiring them.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "boardroom"
const boardSubsystem = "board"

// BoardMetrics holds all Prometheus metrics for board deliberations.
// Initialize once at startup via InitMetrics.
type BoardMetrics struct {
	// SessionsTotal counts finished sessions by terminal status (done, failed).
	SessionsTotal *prometheus.CounterVec

	// SessionDurationSeconds measures wall time from ANALYSIS dispatch to
	// the terminal event, by terminal status.
	SessionDurationSeconds *prometheus.HistogramVec

	// ActiveSessions tracks currently running deliberations.
	ActiveSessions prometheus.Gauge

	// MemberCallsTotal counts settled member model calls by outcome
	// (succeeded, failed).
	MemberCallsTotal *prometheus.CounterVec

	// CreditRefundsTotal counts compensating refunds issued for failed
	// sessions.
	CreditRefundsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance, set by InitMetrics.
var DefaultMetrics *BoardMetrics

// InitMetrics creates and registers all board metrics. Call once at startup;
// a second call panics on duplicate registration.
func InitMetrics() *BoardMetrics {
	DefaultMetrics = &BoardMetrics{
		SessionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: boardSubsystem,
				Name:      "sessions_total",
				Help:      "Finished board sessions by terminal status",
			},
			[]string{"status"},
		),
		SessionDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: boardSubsystem,
				Name:      "session_duration_seconds",
				Help:      "Board session wall time by terminal status",
				Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"status"},
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: boardSubsystem,
				Name:      "active_sessions",
				Help:      "Currently running board deliberations",
			},
		),
		MemberCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: boardSubsystem,
				Name:      "member_calls_total",
				Help:      "Settled member model calls by outcome",
			},
			[]string{"outcome"},
		),
		CreditRefundsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: boardSubsystem,
				Name:      "credit_refunds_total",
				Help:      "Compensating credit refunds issued for failed sessions",
			},
		),
	}
	return DefaultMetrics
}

// SessionStarted records a deliberation entering ANALYSIS.
func (m *BoardMetrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionFinished records a terminal session outcome.
func (m *BoardMetrics) SessionFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionsTotal.WithLabelValues(status).Inc()
	m.SessionDurationSeconds.WithLabelValues(status).Observe(elapsed.Seconds())
}

// MemberCall records one settled member model call.
func (m *BoardMetrics) MemberCall(outcome string) {
	if m == nil {
		return
	}
	m.MemberCallsTotal.WithLabelValues(outcome).Inc()
}

// Refund records a compensating credit refund.
func (m *BoardMetrics) Refund() {
	if m == nil {
		return
	}
	m.CreditRefundsTotal.Inc()
}
