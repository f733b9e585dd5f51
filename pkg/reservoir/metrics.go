// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: Apache-2.0

package reservoir

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// reservoirMetrics holds the Prometheus metrics for the reservoir
// subsystem: ingest, emit, and compaction.
type reservoirMetrics struct {
	once sync.Once

	batchesFlushed  prometheus.Counter
	recordsIngested prometheus.Counter
	recordsEmitted  prometheus.Counter
	lockContention  prometheus.Counter
	compactionsRun  prometheus.Counter
	filesCompacted  prometheus.Counter
	compactFailures prometheus.Counter

	flushDuration prometheus.Histogram
	emitDuration  prometheus.Histogram
}

var resMetrics reservoirMetrics

func (m *reservoirMetrics) init() {
	m.once.Do(func() {
		m.batchesFlushed = prometheus.NewCounter(prometheus.CounterOpts{Name: "alto_reservoir_batches_flushed_total", Help: "Gzip batches flushed by the ingestor"})
		m.recordsIngested = prometheus.NewCounter(prometheus.CounterOpts{Name: "alto_reservoir_records_ingested_total", Help: "Records written into reservoir batches"})
		m.recordsEmitted = prometheus.NewCounter(prometheus.CounterOpts{Name: "alto_reservoir_records_emitted_total", Help: "Records replayed from the reservoir into a target"})
		m.lockContention = prometheus.NewCounter(prometheus.CounterOpts{Name: "alto_reservoir_lock_contention_total", Help: "Attempts to acquire an already-held reservoir lock"})
		m.compactionsRun = prometheus.NewCounter(prometheus.CounterOpts{Name: "alto_reservoir_compactions_total", Help: "Compactor runs that changed at least one file"})
		m.filesCompacted = prometheus.NewCounter(prometheus.CounterOpts{Name: "alto_reservoir_files_compacted_total", Help: "Batch files removed by merging during compaction"})
		m.compactFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "alto_reservoir_compact_failures_total", Help: "Compaction merges that failed and triggered an index rebuild"})

		buckets := []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60}
		m.flushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "alto_reservoir_flush_seconds", Help: "Duration of a single batch flush", Buckets: buckets})
		m.emitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "alto_reservoir_emit_seconds", Help: "Duration of a full emitter run", Buckets: buckets})

		prometheus.MustRegister(
			m.batchesFlushed, m.recordsIngested, m.recordsEmitted,
			m.lockContention, m.compactionsRun, m.filesCompacted, m.compactFailures,
			m.flushDuration, m.emitDuration,
		)
	})
}

func recordBatchFlushed()   { resMetrics.init(); resMetrics.batchesFlushed.Inc() }
func recordRecordIngested() { resMetrics.init(); resMetrics.recordsIngested.Inc() }
func recordRecordEmitted()  { resMetrics.init(); resMetrics.recordsEmitted.Inc() }
func recordLockContention() { resMetrics.init(); resMetrics.lockContention.Inc() }
func recordCompactionRun()  { resMetrics.init(); resMetrics.compactionsRun.Inc() }
func recordFilesCompacted(n int) {
	resMetrics.init()
	resMetrics.filesCompacted.Add(float64(n))
}
func recordCompactFailure() { resMetrics.init(); resMetrics.compactFailures.Inc() }
