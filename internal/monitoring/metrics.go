// Package monitoring records pipeline metrics on a dedicated Prometheus
// registry and exports them through a textfile, a Pushgateway or an HTTP
// endpoint.
//
// Every method is safe on a nil *Metrics, so callers never need to check
// whether monitoring is enabled.
package monitoring

import (
	"database/sql"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StageTiming records one executed pipeline stage.
type StageTiming struct {
	Stage      string        `json:"stage"`
	Duration   time.Duration `json:"duration"`
	MemoryUsed int64         `json:"memory_used"`
	Failed     bool          `json:"failed"`
}

// Metrics bundles the Prometheus collectors of a run.
type Metrics struct {
	Registry          *prometheus.Registry
	StageDuration     *prometheus.HistogramVec
	StageFailures     *prometheus.CounterVec
	TableRows         *prometheus.GaugeVec
	TotalRevenue      prometheus.Gauge
	AverageOrderValue prometheus.Gauge
	RunsTotal         *prometheus.CounterVec
	LastRunTimestamp  prometheus.Gauge

	mu     sync.RWMutex
	stages []StageTiming
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecomlake_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"stage"},
	)
	stageFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecomlake_stage_failures_total",
			Help: "Pipeline stages that returned an error.",
		},
		[]string{"stage"},
	)
	tableRows := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ecomlake_table_rows",
			Help: "Row count of each table after the stage that produced it.",
		},
		[]string{"table"},
	)
	totalRevenue := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ecomlake_total_revenue",
		Help: "Sum of item prices over delivered orders.",
	})
	aov := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ecomlake_average_order_value",
		Help: "Average item price over all integrated rows.",
	})
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecomlake_runs_total",
			Help: "Pipeline runs by final status.",
		},
		[]string{"status"},
	)
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ecomlake_last_run_timestamp_seconds",
		Help: "Unix time the last run finished.",
	})

	registry.MustRegister(stageDuration, stageFailures, tableRows, totalRevenue, aov, runs, lastRun)

	return &Metrics{
		Registry:          registry,
		StageDuration:     stageDuration,
		StageFailures:     stageFailures,
		TableRows:         tableRows,
		TotalRevenue:      totalRevenue,
		AverageOrderValue: aov,
		RunsTotal:         runs,
		LastRunTimestamp:  lastRun,
	}
}

// RecordStage runs fn and records its duration, approximate heap growth and
// failure.
func (m *Metrics) RecordStage(stage string, fn func() error) error {
	if m == nil {
		return fn()
	}

	var before runtime.MemStats
	runtime.ReadMemStats(&before)
	start := time.Now()

	err := fn()

	duration := time.Since(start)
	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if err != nil {
		m.StageFailures.WithLabelValues(stage).Inc()
	}

	m.mu.Lock()
	m.stages = append(m.stages, StageTiming{
		Stage:      stage,
		Duration:   duration,
		MemoryUsed: int64(after.HeapAlloc) - int64(before.HeapAlloc), //nolint:gosec // heap sizes fit in int64
		Failed:     err != nil,
	})
	m.mu.Unlock()
	return err
}

// ObserveRows records the row count of table.
func (m *Metrics) ObserveRows(table string, rows int) {
	if m == nil {
		return
	}
	m.TableRows.WithLabelValues(table).Set(float64(rows))
}

// SetScalars records the scalar results. Null values leave the gauges
// untouched.
func (m *Metrics) SetScalars(totalRevenue, averageOrderValue sql.NullFloat64) {
	if m == nil {
		return
	}
	if totalRevenue.Valid {
		m.TotalRevenue.Set(totalRevenue.Float64)
	}
	if averageOrderValue.Valid {
		m.AverageOrderValue.Set(averageOrderValue.Float64)
	}
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(status string, finished time.Time) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.LastRunTimestamp.Set(float64(finished.Unix()))
}

// Stages returns a copy of the recorded stage timings in execution order.
func (m *Metrics) Stages() []StageTiming {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]StageTiming, len(m.stages))
	copy(result, m.stages)
	return result
}

// Summary provides aggregate statistics over the recorded stages.
type Summary struct {
	TotalStages   int           `json:"total_stages"`
	TotalDuration time.Duration `json:"total_duration"`
	Failures      int           `json:"failures"`
	Slowest       string        `json:"slowest"`
}

// Summary returns aggregate statistics over the recorded stages.
func (m *Metrics) Summary() Summary {
	var s Summary
	var slowest time.Duration
	for _, st := range m.Stages() {
		s.TotalStages++
		s.TotalDuration += st.Duration
		if st.Failed {
			s.Failures++
		}
		if st.Duration >= slowest {
			slowest = st.Duration
			s.Slowest = st.Stage
		}
	}
	return s
}
