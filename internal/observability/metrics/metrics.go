package metrics

import "github.com/prometheus/client_golang/prometheus"

// RecordsMetrics exposes counters/histograms for record operations.
type RecordsMetrics struct {
	operationsTotal  *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	importedTotal    *prometheus.CounterVec
}

func NewRecordsMetrics(reg prometheus.Registerer) *RecordsMetrics {
	m := &RecordsMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "practice",
			Subsystem: "records",
			Name:      "operations_total",
			Help:      "Total record and patient operations by outcome",
		}, []string{"operation", "status"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "practice",
			Subsystem: "records",
			Name:      "operation_latency_seconds",
			Help:      "Latency of record repository operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		importedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "practice",
			Subsystem: "records",
			Name:      "imported_total",
			Help:      "Rows added by backup imports",
		}, []string{"mode", "kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.operationLatency, m.importedTotal)
	return m
}

func (m *RecordsMetrics) ObserveOperation(operation string, err error, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *RecordsMetrics) ObserveImport(mode string, records, patients int) {
	if m == nil {
		return
	}
	m.importedTotal.WithLabelValues(mode, "records").Add(float64(records))
	m.importedTotal.WithLabelValues(mode, "patients").Add(float64(patients))
}

// SyncMetrics tracks reconciliation passes and connectivity.
type SyncMetrics struct {
	runsTotal    *prometheus.CounterVec
	recordsTotal *prometheus.CounterVec
	online       prometheus.Gauge
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "practice",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Reconciliation passes by result",
		}, []string{"result"}),
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "practice",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Local-only records pushed during reconciliation by outcome",
		}, []string{"outcome"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "practice",
			Subsystem: "sync",
			Name:      "online",
			Help:      "1 when the remote store is reachable",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.recordsTotal, m.online)
	return m
}

func (m *SyncMetrics) ObserveRun(synced, failed int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case failed > 0:
		result = "partial"
	}
	m.runsTotal.WithLabelValues(result).Inc()
	m.recordsTotal.WithLabelValues("synced").Add(float64(synced))
	m.recordsTotal.WithLabelValues("failed").Add(float64(failed))
}

func (m *SyncMetrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}
