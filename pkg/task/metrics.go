// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type taskMetrics struct {
	once sync.Once

	runsTotal *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

var metrics taskMetrics

func (m *taskMetrics) init() {
	m.once.Do(func() {
		m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alto_task_runs_total",
			Help: "Task executions by outcome (uptodate, success, failed, blocked).",
		}, []string{"task", "result"})
		m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alto_task_duration_seconds",
			Help:    "Task execution duration in seconds, excluding up-to-date skips.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"})
		prometheus.MustRegister(m.runsTotal, m.duration)
	})
}

func recordTaskRun(name, result string) {
	metrics.init()
	metrics.runsTotal.WithLabelValues(name, result).Inc()
}

func recordTaskDuration(name string, seconds float64) {
	metrics.init()
	metrics.duration.WithLabelValues(name).Observe(seconds)
}
