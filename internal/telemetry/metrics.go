// Package telemetry provides the Prometheus metrics exported by casewatch.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains every collector casewatch exports. It owns a private
// registry so tests can create as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	casesLoaded     prometheus.Gauge
	tablesFetched   prometheus.Gauge

	caseWrites *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	exportsTotal *prometheus.CounterVec
	importedRows *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casewatch_refresh_total",
			Help: "Fetch-and-reconcile runs by result",
		},
		[]string{"result"}, // result: ok, error
	)
	m.refreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "casewatch_refresh_duration_seconds",
		Help:    "Time taken by a fetch-and-reconcile run",
		Buckets: prometheus.DefBuckets,
	})
	m.casesLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "casewatch_cases",
		Help: "Cases currently held in the case store",
	})
	m.tablesFetched = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "casewatch_tables_fetched",
		Help: "Tables returned by the last successful fetch",
	})
	m.caseWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casewatch_case_writes_total",
			Help: "Case create, update and delete operations by result",
		},
		[]string{"action", "result"},
	)
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casewatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)
	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "casewatch_http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	m.exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casewatch_exports_total",
			Help: "Exports written by format",
		},
		[]string{"format"}, // format: csv, png
	)
	m.importedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casewatch_imported_rows_total",
			Help: "Rows imported from CSV files by table",
		},
		[]string{"table"},
	)

	m.registry.MustRegister(
		m.refreshTotal, m.refreshDuration, m.casesLoaded, m.tablesFetched,
		m.caseWrites, m.httpRequestsTotal, m.httpRequestDuration,
		m.exportsTotal, m.importedRows,
	)
	return m
}

// Registry exposes the registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRefresh records one refresh run. A nil receiver is a no-op so
// components can run without metrics.
func (m *Metrics) RecordRefresh(d time.Duration, tables, cases int, err error) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(d.Seconds())
	if err != nil {
		m.refreshTotal.WithLabelValues("error").Inc()
		return
	}
	m.refreshTotal.WithLabelValues("ok").Inc()
	m.tablesFetched.Set(float64(tables))
	m.casesLoaded.Set(float64(cases))
}

// SetCases updates the case gauge after a local write.
func (m *Metrics) SetCases(n int) {
	if m == nil {
		return
	}
	m.casesLoaded.Set(float64(n))
}

// RecordCaseWrite counts a case service operation.
func (m *Metrics) RecordCaseWrite(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.caseWrites.WithLabelValues(action, result).Inc()
}

// RecordHTTPRequest counts one HTTP request. path should be the route
// pattern, not the raw URL, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordExport counts an export by format.
func (m *Metrics) RecordExport(format string) {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(format).Inc()
}

// RecordImport counts rows imported into table.
func (m *Metrics) RecordImport(table string, rows int) {
	if m == nil {
		return
	}
	m.importedRows.WithLabelValues(table).Add(float64(rows))
}
