package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreOperationsTotal tracks document store operations
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bigfoot_store_operations_total",
			Help: "Total number of document store operations",
		},
		[]string{"driver", "operation", "status"}, // "list", "get", "add", ... / "success", "error"
	)

	// StoreOperationDuration tracks document store latency
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bigfoot_store_operation_duration_seconds",
			Help:    "Duration of document store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver", "operation"},
	)

	// SeedDocumentsTotal tracks seeded reports per dataset
	SeedDocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bigfoot_seed_documents_total",
			Help: "Total number of normalized reports produced for seeding",
		},
		[]string{"dataset"},
	)

	// SeedRunsTotal tracks seeding attempts by outcome
	SeedRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bigfoot_seed_runs_total",
			Help: "Total number of seeding runs",
		},
		[]string{"result"}, // "seeded", "skipped", "failed"
	)

	// SeedDuration tracks end-to-end seeding time
	SeedDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bigfoot_seed_duration_seconds",
			Help:    "Duration of seeding runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SourceFetchTotal tracks dataset loads from files or URLs
	SourceFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bigfoot_source_fetch_total",
			Help: "Total number of source dataset loads",
		},
		[]string{"dataset", "status"},
	)

	// SourceFetchDuration tracks dataset load time
	SourceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bigfoot_source_fetch_duration_seconds",
			Help:    "Duration of source dataset loads in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dataset"},
	)

	// ReportVotesTotal tracks accepted votes
	ReportVotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bigfoot_report_votes_total",
			Help: "Total number of votes cast on reports",
		},
		[]string{"direction", "change"}, // "up", "down" / "new", "switched", "repeated"
	)

	// ReportSubmissionsTotal tracks user submissions
	ReportSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bigfoot_report_submissions_total",
			Help: "Total number of report submissions",
		},
		[]string{"result"}, // "success", "validation_failed", "error"
	)

	// TriageUpdatesTotal tracks triage transitions
	TriageUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bigfoot_triage_updates_total",
			Help: "Total number of triage updates by resulting status",
		},
		[]string{"status"},
	)

	// ReportExportsTotal tracks exports by format
	ReportExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bigfoot_report_exports_total",
			Help: "Total number of report exports",
		},
		[]string{"format"},
	)
)

// RecordStoreOperation records one document store call
func RecordStoreOperation(driver, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreOperationsTotal.WithLabelValues(driver, operation, status).Inc()
	StoreOperationDuration.WithLabelValues(driver, operation).Observe(time.Since(start).Seconds())
}

// RecordSeedDocuments records how many reports a dataset contributed
func RecordSeedDocuments(dataset string, count int) {
	SeedDocumentsTotal.WithLabelValues(dataset).Add(float64(count))
}

// RecordSeedRun records the outcome of a seeding run
func RecordSeedRun(result string, start time.Time) {
	SeedRunsTotal.WithLabelValues(result).Inc()
	SeedDuration.Observe(time.Since(start).Seconds())
}

// RecordSourceFetch records one dataset load
func RecordSourceFetch(dataset, status string, duration time.Duration) {
	SourceFetchTotal.WithLabelValues(dataset, status).Inc()
	SourceFetchDuration.WithLabelValues(dataset).Observe(duration.Seconds())
}

// RecordVote records an accepted vote
func RecordVote(direction, change string) {
	ReportVotesTotal.WithLabelValues(direction, change).Inc()
}

// RecordSubmission records a submission outcome
func RecordSubmission(result string) {
	ReportSubmissionsTotal.WithLabelValues(result).Inc()
}

// RecordTriageUpdate records a triage transition
func RecordTriageUpdate(status string) {
	TriageUpdatesTotal.WithLabelValues(status).Inc()
}

// RecordExport records a completed export
func RecordExport(format string) {
	ReportExportsTotal.WithLabelValues(format).Inc()
}
