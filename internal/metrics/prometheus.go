package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for pdr-utils
type PrometheusMetrics struct {
	// Subgraph metrics
	SubgraphQueriesTotal  *prometheus.CounterVec
	SubgraphQueryDuration prometheus.Histogram

	// Discovery metrics
	DiscoveryRunsTotal     *prometheus.CounterVec
	DiscoveryPagesTotal    prometheus.Counter
	DiscoveryDuration      prometheus.Histogram
	ContractsDiscovered    prometheus.Gauge
	LastDiscoveryTimestamp prometheus.Gauge

	// Contract call metrics
	RPCRequestsTotal      *prometheus.CounterVec
	RPCRequestDuration    *prometheus.HistogramVec
	ConnectionErrorsTotal *prometheus.CounterVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates all Prometheus metrics and registers them on reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		// Subgraph metrics
		SubgraphQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdr_subgraph_queries_total",
				Help: "Total number of subgraph page queries",
			},
			[]string{"status"},
		),

		SubgraphQueryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pdr_subgraph_query_duration_seconds",
				Help:    "Duration of subgraph page queries",
				Buckets: prometheus.DefBuckets,
			},
		),

		// Discovery metrics
		DiscoveryRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdr_discovery_runs_total",
				Help: "Total number of contract discovery runs",
			},
			[]string{"result"},
		),

		DiscoveryPagesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pdr_discovery_pages_total",
				Help: "Total number of subgraph pages fetched by discovery",
			},
		),

		DiscoveryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pdr_discovery_duration_seconds",
				Help:    "Duration of a full discovery run",
				Buckets: prometheus.DefBuckets,
			},
		),

		ContractsDiscovered: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdr_contracts_discovered",
				Help: "Number of contracts returned by the last discovery run",
			},
		),

		LastDiscoveryTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdr_last_discovery_timestamp_seconds",
				Help: "Unix time of the last finished discovery run",
			},
		),

		// Contract call metrics
		RPCRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdr_rpc_requests_total",
				Help: "Total number of contract calls and transactions",
			},
			[]string{"contract", "method", "status"},
		),

		RPCRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdr_rpc_request_duration_seconds",
				Help:    "Duration of contract calls and transactions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"contract", "method"},
		),

		ConnectionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdr_connection_errors_total",
				Help: "Total number of JSON-RPC connection errors",
			},
			[]string{"endpoint", "error_type"},
		),

		// Storage metrics
		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdr_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdr_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		// API metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdr_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdr_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Application health metrics
		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdr_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pdr_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdr_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdr_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// RecordSubgraphQuery records one subgraph page query
func (m *PrometheusMetrics) RecordSubgraphQuery(status string, duration time.Duration) {
	m.SubgraphQueriesTotal.WithLabelValues(status).Inc()
	m.SubgraphQueryDuration.Observe(duration.Seconds())
}

// RecordDiscoveryPage records a page consumed by discovery
func (m *PrometheusMetrics) RecordDiscoveryPage() {
	m.DiscoveryPagesTotal.Inc()
}

// RecordDiscoveryRun records a finished discovery run
func (m *PrometheusMetrics) RecordDiscoveryRun(result string, contracts int, duration time.Duration) {
	m.DiscoveryRunsTotal.WithLabelValues(result).Inc()
	m.DiscoveryDuration.Observe(duration.Seconds())
	m.ContractsDiscovered.Set(float64(contracts))
	m.LastDiscoveryTimestamp.SetToCurrentTime()
}

// RecordRPCRequest records a contract call or transaction
func (m *PrometheusMetrics) RecordRPCRequest(contract, method, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(contract, method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(contract, method).Observe(duration.Seconds())
}

// RecordConnectionError records a connection error
func (m *PrometheusMetrics) RecordConnectionError(endpoint, errorType string) {
	m.ConnectionErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
