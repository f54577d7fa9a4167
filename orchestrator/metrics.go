// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "multitree"

// Metrics records the progress of builds.
// A nil *Metrics records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	stageResults  *prometheus.CounterVec
	buildDuration prometheus.Histogram
	buildResults  *prometheus.CounterVec
	invocations   *prometheus.CounterVec
	stubLibraries prometheus.Gauge
}

// NewMetrics returns a new set of metrics registered with reg.
// If reg is nil, a new registry is created.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		stageResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stage_results_total",
			Help:      "Pipeline stage results by outcome",
		}, []string{"stage", "result"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prometheus.DefBuckets,
		}),
		buildResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "build_results_total",
			Help:      "Build results by outcome",
		}, []string{"result"}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sandbox_invocations_total",
			Help:      "Sandboxed child processes started by stage",
		}, []string{"stage"}),
		stubLibraries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "stub_libraries",
			Help:      "Stub libraries assembled in the last build",
		}),
	}
	reg.MustRegister(
		m.stageDuration,
		m.stageResults,
		m.buildDuration,
		m.buildResults,
		m.invocations,
		m.stubLibraries,
	)
	return m
}

// Gatherer returns the registry the metrics are registered with.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteFile writes the metrics to path in the text exposition format,
// suitable for the node exporter's textfile collector.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *Metrics) observeStage(stage Stage, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
	m.stageResults.WithLabelValues(string(stage), resultLabel(err)).Inc()
}

func (m *Metrics) observeBuild(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.buildDuration.Observe(d.Seconds())
	m.buildResults.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) countInvocation(stage Stage) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) setStubLibraries(n int) {
	if m == nil {
		return
	}
	m.stubLibraries.Set(float64(n))
}
