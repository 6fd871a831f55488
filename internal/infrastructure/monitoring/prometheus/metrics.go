package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every metric the fragmenter exports.
type AppMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// gRPC layer
	GRPCRequestsTotal   CounterVec
	GRPCRequestDuration HistogramVec

	// Fragmentation
	MoleculesTotal          CounterVec
	FragmentationDuration   HistogramVec
	FragmentsPerMolecule    HistogramVec
	CombinationsPerMolecule HistogramVec
	RotorsPerMolecule       HistogramVec
	ActiveWorkers           GaugeVec

	// Infrastructure
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	DBQueryDuration        HistogramVec
	MessageProcessDuration HistogramVec
	MessagesTotal          CounterVec
	ErrorsTotal            CounterVec
}

var (
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultFragDurationBuckets = []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15, 60}
	DefaultCountBuckets        = []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256, 1024}
	DefaultDBDurationBuckets   = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// Molecule outcome labels.
const (
	StatusFragmented = "fragmented"
	StatusSkipped    = "skipped"
	StatusCached     = "cached"
	StatusFailed     = "failed"
)

// NewAppMetrics registers all metrics on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "HTTP requests", "method", "path", "status")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request latency", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "In-flight HTTP requests", "method")

	m.GRPCRequestsTotal = collector.RegisterCounter("grpc_requests_total", "gRPC requests", "method", "code")
	m.GRPCRequestDuration = collector.RegisterHistogram("grpc_request_duration_seconds", "gRPC request latency", DefaultHTTPDurationBuckets, "method")

	m.MoleculesTotal = collector.RegisterCounter("molecules_total", "Molecules processed by outcome", "status")
	m.FragmentationDuration = collector.RegisterHistogram("fragmentation_duration_seconds", "Time to fragment one molecule", DefaultFragDurationBuckets, "mode")
	m.FragmentsPerMolecule = collector.RegisterHistogram("fragments_per_molecule", "Unique fragments per molecule", DefaultCountBuckets, "mode")
	m.CombinationsPerMolecule = collector.RegisterHistogram("combinations_per_molecule", "Assembled fragment combinations per molecule", DefaultCountBuckets)
	m.RotorsPerMolecule = collector.RegisterHistogram("rotors_per_molecule", "Rotatable bonds per molecule", DefaultCountBuckets)
	m.ActiveWorkers = collector.RegisterGauge("active_workers", "Molecules being fragmented right now", "source")

	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Result cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Result cache misses", "cache")
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Store query latency", DefaultDBDurationBuckets, "db", "operation")
	m.MessageProcessDuration = collector.RegisterHistogram("message_process_duration_seconds", "Broker message handling latency", DefaultFragDurationBuckets, "topic")
	m.MessagesTotal = collector.RegisterCounter("messages_total", "Broker messages handled", "topic", "result")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Errors by component and code", "component", "code")

	return m
}

// RecordHTTPRequest counts a finished HTTP request.
func (m *AppMetrics) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (m *AppMetrics) RecordGRPCRequest(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveMolecule records one molecule's outcome.  mode is "torsion" or "cut".
func (m *AppMetrics) ObserveMolecule(status, mode string, rotors, combinations, fragments int, d time.Duration) {
	if m == nil {
		return
	}
	m.MoleculesTotal.WithLabelValues(status).Inc()
	if status != StatusFragmented {
		return
	}
	m.FragmentationDuration.WithLabelValues(mode).Observe(d.Seconds())
	m.FragmentsPerMolecule.WithLabelValues(mode).Observe(float64(fragments))
	m.RotorsPerMolecule.WithLabelValues().Observe(float64(rotors))
	m.CombinationsPerMolecule.WithLabelValues().Observe(float64(combinations))
}

func (m *AppMetrics) RecordCacheAccess(cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func (m *AppMetrics) RecordDBQuery(db, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(db, operation).Observe(d.Seconds())
	if err != nil {
		m.ErrorsTotal.WithLabelValues(db, "query").Inc()
	}
}

func (m *AppMetrics) RecordMessage(topic string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.MessagesTotal.WithLabelValues(topic, result).Inc()
	m.MessageProcessDuration.WithLabelValues(topic).Observe(d.Seconds())
}

func (m *AppMetrics) RecordError(component, code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, code).Inc()
}
