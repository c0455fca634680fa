package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	AssessmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "malnutrition_assessments_total",
			Help: "Assessments produced, by primary diagnosis and risk level",
		},
		[]string{"primary_diagnosis", "risk_level", "partial"},
	)

	AssessmentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "malnutrition_assessment_failures_total",
			Help: "Assessments rejected or failed, by error code",
		},
		[]string{"error_code"},
	)

	AssessmentCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "malnutrition_assessment_cache_hits_total",
			Help: "Assessments served from the result cache",
		},
	)

	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "malnutrition_alerts_total",
			Help: "Alert notifications by outcome",
		},
		[]string{"status"},
	)
)

// JobStarted marks a job active and returns the function that records its outcome.
// An empty errorCode counts as success.
func JobStarted(taskType string) func(errorCode string) {
	start := time.Now()
	WorkerJobsActive.WithLabelValues(taskType).Inc()
	return func(errorCode string) {
		WorkerJobsActive.WithLabelValues(taskType).Dec()
		WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
		if errorCode == "" {
			WorkerJobsCompleted.WithLabelValues(taskType).Inc()
			return
		}
		WorkerJobsFailed.WithLabelValues(taskType, errorCode).Inc()
	}
}

func RecordAssessment(primaryDiagnosis, riskLevel string, partial bool) {
	AssessmentsTotal.WithLabelValues(primaryDiagnosis, riskLevel, strconv.FormatBool(partial)).Inc()
}

func RecordAssessmentFailure(errorCode string) {
	AssessmentFailures.WithLabelValues(errorCode).Inc()
}
