// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the orchestrator.
//
// # Description
//
// Metrics cover the streaming chat surface: request counters by transport
// and status, active stream gauges, stream duration histograms, tool
// invocation counters, and knowledge retrieval latency.
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "smartbot"

const chatSubsystem = "chat"

// ChatMetrics holds all Prometheus metrics for chat turn processing.
// Initialize once at startup via InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type ChatMetrics struct {
	// RequestsTotal counts chat turns by transport and status.
	// Labels: transport (sse, websocket), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// ActiveStreams tracks currently open streaming connections.
	// Labels: transport (sse, websocket)
	ActiveStreams *prometheus.GaugeVec

	// StreamDurationSeconds measures full turn duration.
	// Labels: transport, status (success, error)
	StreamDurationSeconds *prometheus.HistogramVec

	// ToolInvocationsTotal counts tool executions observed in the event
	// stream. Labels: tool (get_weather, calculator, ...)
	ToolInvocationsTotal *prometheus.CounterVec

	// RetrievalDurationSeconds measures knowledge index query latency.
	RetrievalDurationSeconds prometheus.Histogram

	// ErrorsTotal counts turn failures by error kind.
	// Labels: transport, kind (tool_loop_exceeded, model_call_failure,
	// client_disconnect)
	ErrorsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of ChatMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ChatMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup; a second call panics on duplicate registration.
func InitMetrics() *ChatMetrics {
	DefaultMetrics = &ChatMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Total chat turns by transport and status",
			},
			[]string{"transport", "status"},
		),

		ActiveStreams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently open streaming connections",
			},
			[]string{"transport"},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Full turn duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"transport", "status"},
		),

		ToolInvocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "tool_invocations_total",
				Help:      "Total tool executions by tool name",
			},
			[]string{"tool"},
		),

		RetrievalDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "retrieval_duration_seconds",
				Help:      "Knowledge index query latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "errors_total",
				Help:      "Total turn failures by transport and error kind",
			},
			[]string{"transport", "kind"},
		),
	}

	return DefaultMetrics
}

// Transport labels a chat transport for metrics.
type Transport string

const (
	// TransportSSE is the Server-Sent Events streaming endpoint.
	TransportSSE Transport = "sse"

	// TransportWebSocket is the WebSocket streaming endpoint.
	TransportWebSocket Transport = "websocket"
)

// ErrorKindClientDisconnect labels turns aborted by the client. The turn
// error kinds from the event stream (tool_loop_exceeded,
// model_call_failure) are used verbatim as the other label values.
const ErrorKindClientDisconnect = "client_disconnect"

// RecordRequest records a completed chat turn.
func (m *ChatMetrics) RecordRequest(transport Transport, success bool) {
	m.RequestsTotal.WithLabelValues(string(transport), statusLabel(success)).Inc()
}

// RecordError records a turn failure by kind.
func (m *ChatMetrics) RecordError(transport Transport, kind string) {
	m.ErrorsTotal.WithLabelValues(string(transport), kind).Inc()
}

// RecordToolInvocation counts one tool execution.
func (m *ChatMetrics) RecordToolInvocation(tool string) {
	m.ToolInvocationsTotal.WithLabelValues(tool).Inc()
}

// StreamStarted increments the active streams gauge.
func (m *ChatMetrics) StreamStarted(transport Transport) {
	m.ActiveStreams.WithLabelValues(string(transport)).Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *ChatMetrics) StreamEnded(transport Transport) {
	m.ActiveStreams.WithLabelValues(string(transport)).Dec()
}

// RecordStreamDuration records the full turn duration.
func (m *ChatMetrics) RecordStreamDuration(transport Transport, seconds float64, success bool) {
	m.StreamDurationSeconds.WithLabelValues(string(transport), statusLabel(success)).Observe(seconds)
}

// RecordRetrievalDuration records one knowledge query's latency.
func (m *ChatMetrics) RecordRetrievalDuration(seconds float64) {
	m.RetrievalDurationSeconds.Observe(seconds)
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
