package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database metrics
	dbQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evmindexer_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"db", "operation"},
	)

	dbQueryTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evmindexer_db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"db", "operation"},
	)

	dbErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evmindexer_db_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"db", "error_type"},
	)

	// Pipeline metrics, labeled by "indexer" ("catchup" or
	// "realtime").
	LastIndexedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evmindexer_last_indexed_block",
			Help: "The last block number successfully imported",
		},
		[]string{"indexer"},
	)

	BlocksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evmindexer_blocks_processed_total",
			Help: "Total number of blocks fetched and imported",
		},
		[]string{"indexer"},
	)

	ReceiptsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evmindexer_receipts_processed_total",
			Help: "Total number of transaction receipts fetched and imported",
		},
		[]string{"indexer"},
	)

	LogsIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evmindexer_logs_indexed_total",
			Help: "Total number of logs indexed",
		},
		[]string{"indexer"},
	)

	BlockProcessingTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evmindexer_block_processing_duration_seconds",
			Help:    "Time taken to fetch and import one block range",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"indexer"},
	)

	IndexingRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evmindexer_indexing_rate_blocks_per_second",
			Help: "Current indexing rate in blocks per second",
		},
		[]string{"indexer"},
	)

	// Importer metrics, labeled by runner step ("addresses",
	// "blocks", "transactions", "logs", ...).
	RunnerRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evmindexer_importer_rows_written_total",
			Help: "Total number of rows written by each importer runner",
		},
		[]string{"step"},
	)

	RunnerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evmindexer_importer_runner_errors_total",
			Help: "Total number of importer runner failures",
		},
		[]string{"step"},
	)

	// Async fetcher metrics, labeled by fetcher ("balance",
	// "internal_transaction", "token_balance") and, for batches,
	// outcome ("ok" or "retry").
	AsyncFetchBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evmindexer_async_fetch_batches_total",
			Help: "Total number of async fetcher batch runs by outcome",
		},
		[]string{"fetcher", "outcome"},
	)

	AsyncFetchItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evmindexer_async_fetch_items_total",
			Help: "Total number of entries processed by async fetcher batch runs",
		},
		[]string{"fetcher"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "evmindexer_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evmindexer_errors_total",
			Help: "Total number of errors by component and severity",
		},
		[]string{"component", "severity"},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evmindexer_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "evmindexer_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evmindexer_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func DBQueryInc(db string, operation string) {
	dbQueries.WithLabelValues(db, operation).Inc()
}

func DBQueryDuration(db string, operation string, duration time.Duration) {
	dbQueryTime.WithLabelValues(db, operation).Observe(duration.Seconds())
}

func DBErrorsInc(db string, errorType string) {
	dbErrors.WithLabelValues(db, errorType).Inc()
}

func BlockProcessingTimeLog(indexer string, duration time.Duration) {
	BlockProcessingTime.WithLabelValues(indexer).Observe(duration.Seconds())
}

func LastIndexedBlockInc(indexer string, blockNum uint64) {
	LastIndexedBlock.WithLabelValues(indexer).Set(float64(blockNum))
}

func BlocksProcessedInc(indexer string, count uint64) {
	BlocksProcessed.WithLabelValues(indexer).Add(float64(count))
}

func ReceiptsProcessedInc(indexer string, count uint64) {
	ReceiptsProcessed.WithLabelValues(indexer).Add(float64(count))
}

func LogsIndexedInc(indexer string, count int) {
	LogsIndexed.WithLabelValues(indexer).Add(float64(count))
}

func IndexingRateLog(indexer string, rate float64) {
	IndexingRate.WithLabelValues(indexer).Set(rate)
}

// RunnerRowsWrittenAdd records rows written by an importer step.
func RunnerRowsWrittenAdd(step string, count int) {
	if count <= 0 {
		return
	}
	RunnerRowsWritten.WithLabelValues(step).Add(float64(count))
}

// RunnerErrorInc records an importer step failure.
func RunnerErrorInc(step string) {
	RunnerErrors.WithLabelValues(step).Inc()
}

// AsyncFetchBatchInc records one buffered-task batch run outcome.
func AsyncFetchBatchInc(fetcher string, outcome string) {
	AsyncFetchBatches.WithLabelValues(fetcher, outcome).Inc()
}

// AsyncFetchItemsAdd records entries processed by a buffered-task
// batch run.
func AsyncFetchItemsAdd(fetcher string, count int) {
	AsyncFetchItems.WithLabelValues(fetcher).Add(float64(count))
}

func ComponentHealthSet(component string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}

	ComponentHealth.WithLabelValues(component).Set(boolAsFloat)
}

func RecordError(component string, severity string) {
	Errors.WithLabelValues(component, severity).Inc()
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	// Update uptime
	Uptime.Set(time.Since(startTime).Seconds())

	// Update goroutine count
	Goroutines.Set(float64(runtime.NumGoroutine()))

	// Update memory statistics
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
